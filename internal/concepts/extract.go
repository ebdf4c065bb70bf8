package concepts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoStocks is returned when no stock list can be recovered from a
// model answer.
var ErrNoStocks = errors.New("no stock list found in response")

var (
	fencePattern  = regexp.MustCompile("(?i)```(json)?\\s*")
	objectPattern = regexp.MustCompile(`(?s)\{.*"stocks".*\}`)
	arrayPattern  = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
)

// ExtractStocks recovers the stock list from a model answer. Models do not
// always honour the JSON response format, so several shapes are tried in
// order: the whole answer with code fences stripped, the bodies of fenced
// code blocks, the outermost object that mentions "stocks", and finally a
// bare array of objects. The first candidate holding a non-empty list wins
// and its items are filtered with IsValidStock, so one malformed item never
// discards the rest.
func ExtractStocks(content string) ([]Stock, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoStocks
	}

	for _, candidate := range candidatePayloads(content) {
		stocks, ok := decodeStocks(candidate)
		if ok {
			return FilterValid(stocks), nil
		}
	}
	return nil, ErrNoStocks
}

func candidatePayloads(content string) []string {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
	candidates := []string{cleaned}
	candidates = append(candidates, fencedBlocks([]byte(content))...)
	if m := objectPattern.FindString(cleaned); m != "" {
		candidates = append(candidates, m)
	}
	if m := arrayPattern.FindString(cleaned); m != "" {
		candidates = append(candidates, m)
	}
	return candidates
}

// fencedBlocks returns the bodies of fenced code blocks tagged json or
// left untagged.
func fencedBlocks(source []byte) []string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		if lang != "" && lang != "json" {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		blocks = append(blocks, buf.String())
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// decodeStocks parses candidate as JSON, checks the envelope against the
// stocks schema and converts the items. Items that are not objects are
// skipped and fields of the wrong type read as empty. ok is false unless the
// list had at least one item.
func decodeStocks(candidate string) ([]Stock, bool) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(candidate))
	if err != nil {
		return nil, false
	}
	if arr, isArray := doc.([]any); isArray {
		doc = map[string]any{"stocks": arr}
	}
	if errs := validatePayload(doc); len(errs) > 0 {
		slog.Debug("stock payload failed schema validation", "errors", errs)
		return nil, false
	}

	items, _ := doc.(map[string]any)["stocks"].([]any)
	if len(items) == 0 {
		return nil, false
	}

	stocks := make([]Stock, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		stocks = append(stocks, Stock{
			Code:   codeString(m["code"]),
			Name:   stringField(m["name"]),
			Market: stringField(m["market"]),
			Reason: stringField(m["reason"]),
		})
	}
	return stocks, true
}

// codeString accepts codes sent as strings or as bare integers, restoring
// the leading zeros an integer loses.
func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case json.Number:
		if n, err := c.Int64(); err == nil && n >= 0 {
			return fmt.Sprintf("%06d", n)
		}
		return c.String()
	default:
		return ""
	}
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}
