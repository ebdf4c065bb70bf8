package concepts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conceptlab/conceptci/internal/chat"
)

// DefaultSearchModel is the model used for constituent searches.
const DefaultSearchModel = "glm-4.5"

// ErrEmptyName is returned when a concept name is blank.
var ErrEmptyName = errors.New("concept name must not be empty")

const researcherPrompt = "你是一位严谨的中国A股研究员。你的工作方法是：通过联网搜索券商研报、公司公告、权威媒体报道来挖掘概念股。" +
	"你只输出在搜索结果中明确看到股票代码的公司，如果搜索结果中没有明确代码，你绝不猜测或编造。" +
	"你深知错误的股票代码会给投资者带来严重损失，因此你对代码准确性要求极高。"

const searchPromptTemplate = `
请搜索并返回【%s】概念股的中国A股核心上市公司。

要求：
1. 只返回中国A股市场（上海、深圳证券交易所）的股票
2. 股票代码必须是6位数字
3. 返回四个字段：code（代码）、name（中文名称）、market（SH/SZ）、reason（选中理由，简要说明该公司与概念的关联性，不超过50字）
4. 返回%d只左右该概念相关的近期热门强势股票

返回JSON格式：
{
  "stocks": [
    {"code": "300136", "name": "信维通信", "market": "SZ", "reason": "是星链卫星互联网地面终端设备中核心连接器的独家供应商"}
  ]
}`

// SearchOptions tunes the constituent search request.
type SearchOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxStocks   int
	// Tools replaces the default web_search tool when non-empty.
	Tools []chat.Tool
}

// Searcher finds concept constituents by asking a chat model with web
// search enabled.
type Searcher struct {
	completer chat.Completer
	opts      SearchOptions
	logger    *slog.Logger
}

// NewSearcher creates a Searcher. Zero options take the defaults used for
// low-hallucination answers (temperature 0.1, top_p 0.8, about ten stocks).
func NewSearcher(completer chat.Completer, opts SearchOptions, logger *slog.Logger) *Searcher {
	if opts.Model == "" {
		opts.Model = DefaultSearchModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.TopP == 0 {
		opts.TopP = 0.8
	}
	if opts.MaxStocks == 0 {
		opts.MaxStocks = 10
	}
	if len(opts.Tools) == 0 {
		opts.Tools = []chat.Tool{chat.WebSearchTool(chat.WebSearch{SearchResult: true})}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{completer: completer, opts: opts, logger: logger}
}

// BuildRequest returns the chat request used to search for name.
func (s *Searcher) BuildRequest(name string) *chat.Request {
	return &chat.Request{
		Model: s.opts.Model,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: researcherPrompt},
			{Role: chat.RoleUser, Content: fmt.Sprintf(searchPromptTemplate, name, s.opts.MaxStocks)},
		},
		Thinking:       &chat.Thinking{Type: "disabled"},
		Tools:          s.opts.Tools,
		Temperature:    chat.Float(s.opts.Temperature),
		TopP:           chat.Float(s.opts.TopP),
		ResponseFormat: chat.JSONObject,
	}
}

// Search returns the valid constituents the model reports for name.
func (s *Searcher) Search(ctx context.Context, name string) ([]Stock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	s.logger.Info("searching concept constituents", "concept", name, "model", s.opts.Model)

	resp, err := s.completer.Complete(ctx, s.BuildRequest(name))
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", name, err)
	}
	content, err := resp.Content()
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", name, err)
	}

	stocks, err := ExtractStocks(content)
	if err != nil {
		s.logger.Debug("unparsable search answer", "concept", name, "content", content)
		return nil, fmt.Errorf("searching %q: %w", name, err)
	}
	if len(stocks) == 0 {
		return nil, fmt.Errorf("searching %q: %w", name, ErrNoStocks)
	}

	s.logger.Info("concept search finished", "concept", name, "stocks", len(stocks))
	return stocks, nil
}
