package chat

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// ToolTypeWebSearch is the only tool type the provider offers for
// retrieval-augmented answers.
const ToolTypeWebSearch = "web_search"

// Tool is one entry of Request.Tools.
type Tool struct {
	Type      string     `json:"type" mapstructure:"type"`
	WebSearch *WebSearch `json:"web_search,omitempty" mapstructure:"web_search"`
}

// WebSearch configures the provider-side web search tool.
type WebSearch struct {
	SearchEngine        string `json:"search_engine,omitempty" mapstructure:"search_engine"`
	Enable              bool   `json:"enable" mapstructure:"enable"`
	SearchIntent        string `json:"search_intent,omitempty" mapstructure:"search_intent"`
	Count               int    `json:"count,omitempty" mapstructure:"count"`
	SearchRecencyFilter string `json:"search_recency_filter,omitempty" mapstructure:"search_recency_filter"`
	SearchResult        bool   `json:"search_result,omitempty" mapstructure:"search_result"`
}

// DefaultSearchEngine is the provider's standard search engine.
const DefaultSearchEngine = "search_std"

// Recency filters accepted by the web search tool.
var recencyFilters = map[string]bool{
	"oneDay":   true,
	"oneWeek":  true,
	"oneMonth": true,
	"oneYear":  true,
	"noLimit":  true,
}

// WebSearchTool returns an enabled web_search tool with opts applied.
// An empty SearchEngine falls back to DefaultSearchEngine.
func WebSearchTool(opts WebSearch) Tool {
	opts.Enable = true
	if opts.SearchEngine == "" {
		opts.SearchEngine = DefaultSearchEngine
	}
	return Tool{Type: ToolTypeWebSearch, WebSearch: &opts}
}

// DecodeTools converts loosely-typed tool maps (as read from YAML) into
// Tools. Unknown keys are rejected so typos in config files surface early.
func DecodeTools(raw []map[string]any) ([]Tool, error) {
	tools := make([]Tool, 0, len(raw))
	for i, m := range raw {
		var t Tool
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &t,
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(m); err != nil {
			return nil, fmt.Errorf("tools[%d]: %w", i, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tools[%d]: %w", i, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Validate checks that t is a tool the provider accepts.
func (t Tool) Validate() error {
	switch t.Type {
	case ToolTypeWebSearch:
		if t.WebSearch == nil {
			return fmt.Errorf("web_search tool requires a web_search block")
		}
		if f := t.WebSearch.SearchRecencyFilter; f != "" && !recencyFilters[f] {
			return fmt.Errorf("unknown search_recency_filter %q", f)
		}
		if t.WebSearch.Count < 0 || t.WebSearch.Count > 50 {
			return fmt.Errorf("web_search count must be between 0 and 50, got %d", t.WebSearch.Count)
		}
		return nil
	case "":
		return fmt.Errorf("tool type is required")
	default:
		return fmt.Errorf("unsupported tool type %q", t.Type)
	}
}
