package concepts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Markets of the Shanghai and Shenzhen exchanges.
const (
	MarketSH = "SH"
	MarketSZ = "SZ"
)

// Stock is a constituent of a concept board.
type Stock struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
	Reason string `json:"reason,omitempty"`
}

var (
	codePattern    = regexp.MustCompile(`^\d{6}$`)
	numericPattern = regexp.MustCompile(`^[\d.,]+$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F.,]+$`)
)

// Words that show up in search snippets but never in a listed company name.
var excludedNameWords = []string{"价格", "指数", "代码", "公告", "资讯", "新闻", "有限"}

// IsValidStock reports whether code and name look like a tradable A-share
// listing: a six-digit code on a main, ChiNext, STAR or BSE board and a
// short Chinese company name that is not under special treatment.
func IsValidStock(code, name string) bool {
	if code == "" || name == "" {
		return false
	}
	if !codePattern.MatchString(code) {
		return false
	}
	switch code[0] {
	case '0', '3', '6', '8':
	default:
		return false
	}

	if strings.Contains(name, "ST") || strings.Contains(name, "退") || strings.Contains(name, "*") {
		return false
	}
	for _, w := range excludedNameWords {
		if strings.Contains(name, w) {
			return false
		}
	}

	n := utf8.RuneCountInString(name)
	if n < 2 || n > 7 {
		return false
	}
	if numericPattern.MatchString(name) {
		return false
	}
	if hexPattern.MatchString(name) && n <= 6 {
		return false
	}

	for _, r := range name {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// MarketFor infers the exchange from a stock code.
func MarketFor(code string) string {
	if code == "" {
		return MarketSZ
	}
	switch code[0] {
	case '6', '8', '9':
		return MarketSH
	default:
		return MarketSZ
	}
}

// normalize trims fields and fills or corrects the market.
func (s Stock) normalize() Stock {
	s.Code = strings.TrimSpace(s.Code)
	s.Name = strings.TrimSpace(s.Name)
	s.Reason = strings.TrimSpace(s.Reason)
	s.Market = strings.ToUpper(strings.TrimSpace(s.Market))
	if s.Market != MarketSH && s.Market != MarketSZ {
		s.Market = MarketFor(s.Code)
	}
	return s
}

// FilterValid normalizes stocks and keeps the valid ones, dropping
// duplicate codes.
func FilterValid(stocks []Stock) []Stock {
	seen := make(map[string]bool, len(stocks))
	out := make([]Stock, 0, len(stocks))
	for _, s := range stocks {
		s = s.normalize()
		if !IsValidStock(s.Code, s.Name) || seen[s.Code] {
			continue
		}
		seen[s.Code] = true
		out = append(out, s)
	}
	return out
}
