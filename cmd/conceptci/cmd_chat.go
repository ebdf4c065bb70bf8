package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/spinner"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	system       string
	model        string
	temperature  float64
	topP         float64
	webSearch    bool
	searchEngine string
	searchCount  int
	recency      string
	searchResult bool
	jsonOutput   bool
	noThinking   bool
	params       []string
}

func newChatCommand(app *appContext) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one chat-completion request and print the raw response",
		Long: `Send a single non-streaming chat-completion request and print the
response body exactly as the provider returned it.

The API key is read from the variable named by api.api_key_env in
.conceptci.yaml (GLM_API_KEY by default). Tools configured under chat.tools
are sent unless --web-search builds one from flags.`,
		Example: `  conceptci chat "有哪些低空经济概念股" --web-search --recency oneMonth --json-output
  conceptci chat "hello" --model glm-4.5 --no-thinking --param max_tokens=512`,
		Args: inputArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, app, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.system, "system", "", "System message sent before the prompt")
	f.StringVar(&opts.model, "model", "", "Model name (default from config)")
	f.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature")
	f.Float64Var(&opts.topP, "top-p", 0, "Nucleus sampling probability")
	f.BoolVar(&opts.webSearch, "web-search", false, "Enable the web_search tool")
	f.StringVar(&opts.searchEngine, "search-engine", chat.DefaultSearchEngine, "Search engine for --web-search")
	f.IntVar(&opts.searchCount, "search-count", 0, "Number of search results for --web-search")
	f.StringVar(&opts.recency, "recency", "", "Search recency filter (oneDay, oneWeek, oneMonth, oneYear, noLimit)")
	f.BoolVar(&opts.searchResult, "search-result", false, "Ask the provider to return search results")
	f.BoolVar(&opts.jsonOutput, "json-output", false, "Request a json_object response format")
	f.BoolVar(&opts.noThinking, "no-thinking", false, "Disable model thinking")
	f.StringArrayVar(&opts.params, "param", nil, "Extra request parameter as key=value; JSON values are sent as-is (repeatable)")

	return cmd
}

func runChat(cmd *cobra.Command, app *appContext, opts *chatOptions, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return inputError(errors.New("prompt must not be empty"))
	}
	cfg, err := app.config()
	if err != nil {
		return err
	}
	if cfg.APIKey() == "" {
		return inputError(fmt.Errorf("%w: set %s", chat.ErrMissingAPIKey, cfg.API.APIKeyEnv))
	}

	req, err := buildChatRequest(cmd, opts, cfg.API.Model, cfg.Chat.Temperature, cfg.Chat.TopP, cfg.Chat.Tools)
	if err != nil {
		return err
	}
	req.Messages = append(req.Messages, chat.Message{Role: chat.RoleUser, Content: prompt})

	stop := spinner.Start(cmd.ErrOrStderr(), "waiting for "+req.Model)
	resp, err := app.chatClient(cfg).Complete(cmd.Context(), req)
	stop()

	// The body is printed even for error statuses.
	if resp != nil {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Text()) //nolint:errcheck
	}
	return err
}

func buildChatRequest(cmd *cobra.Command, opts *chatOptions, defaultModel string, temperature, topP *float64, tools []map[string]any) (*chat.Request, error) {
	req := &chat.Request{
		Model:       defaultModel,
		Temperature: temperature,
		TopP:        topP,
	}
	if opts.model != "" {
		req.Model = opts.model
	}
	if cmd.Flags().Changed("temperature") {
		if opts.temperature < 0 || opts.temperature > 1 {
			return nil, inputError(fmt.Errorf("temperature must be in [0, 1], got %g", opts.temperature))
		}
		req.Temperature = chat.Float(opts.temperature)
	}
	if cmd.Flags().Changed("top-p") {
		if opts.topP <= 0 || opts.topP > 1 {
			return nil, inputError(fmt.Errorf("top-p must be in (0, 1], got %g", opts.topP))
		}
		req.TopP = chat.Float(opts.topP)
	}
	if opts.system != "" {
		req.Messages = append(req.Messages, chat.Message{Role: chat.RoleSystem, Content: opts.system})
	}
	if opts.noThinking {
		req.Thinking = &chat.Thinking{Type: "disabled"}
	}
	if opts.jsonOutput {
		req.ResponseFormat = chat.JSONObject
	}
	extra, err := parseParams(opts.params)
	if err != nil {
		return nil, inputError(err)
	}
	req.Extra = extra

	if opts.webSearch {
		tool := chat.WebSearchTool(chat.WebSearch{
			SearchEngine:        opts.searchEngine,
			Count:               opts.searchCount,
			SearchRecencyFilter: opts.recency,
			SearchResult:        opts.searchResult,
		})
		if err := tool.Validate(); err != nil {
			return nil, inputError(err)
		}
		req.Tools = []chat.Tool{tool}
		return req, nil
	}
	if len(tools) > 0 {
		decoded, err := chat.DecodeTools(tools)
		if err != nil {
			return nil, fmt.Errorf("chat.tools in config: %w", err)
		}
		req.Tools = decoded
	}
	return req, nil
}

// parseParams turns key=value pairs into raw JSON values. Values that are
// not valid JSON are sent as strings.
func parseParams(params []string) (map[string]json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}
	extra := make(map[string]json.RawMessage, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		if json.Valid([]byte(value)) {
			extra[key] = json.RawMessage(value)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		extra[key] = raw
	}
	return extra, nil
}
