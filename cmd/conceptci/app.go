package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/conceptlab/conceptci/internal/cache"
	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/concepts"
	"github.com/conceptlab/conceptci/internal/projectconfig"
	"github.com/conceptlab/conceptci/internal/quotes"
)

// appContext carries state shared by subcommands. Configuration is loaded
// on first use so that commands which never need it do not fail on a broken
// config file.
type appContext struct {
	configDir string
	cfg       *projectconfig.ProjectConfig
}

func (a *appContext) config() (*projectconfig.ProjectConfig, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := projectconfig.Load(a.configDir)
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", "dir", cfg.Dir, "store", cfg.StorePath())
	a.cfg = cfg
	return cfg, nil
}

func (a *appContext) chatClient(cfg *projectconfig.ProjectConfig) *chat.Client {
	return chat.NewClient(chat.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.APIKey(),
		Timeout: time.Duration(cfg.API.Timeout) * time.Second,
	})
}

func (a *appContext) store(cfg *projectconfig.ProjectConfig) *concepts.FileStore {
	return concepts.NewFileStore(cfg.StorePath())
}

// searcher returns a constituent searcher, or an error naming the missing
// key variable when none is set.
func (a *appContext) searcher(cfg *projectconfig.ProjectConfig) (*concepts.Searcher, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("%w: set %s", chat.ErrMissingAPIKey, cfg.API.APIKeyEnv)
	}
	opts := concepts.SearchOptions{
		Model:     cfg.Search.Model,
		MaxStocks: cfg.Search.MaxStocks,
	}
	if cfg.Search.Temperature != nil {
		opts.Temperature = *cfg.Search.Temperature
	}
	if cfg.Search.TopP != nil {
		opts.TopP = *cfg.Search.TopP
	}
	return concepts.NewSearcher(a.chatClient(cfg), opts, slog.Default()), nil
}

// cachedSearcher puts the on-disk answer cache in front of searcher. The
// scope covers every setting that changes the answer.
func (a *appContext) cachedSearcher(cfg *projectconfig.ProjectConfig) (*cache.Searcher, error) {
	searcher, err := a.searcher(cfg)
	if err != nil {
		return nil, err
	}
	req := searcher.BuildRequest("")
	scope := fmt.Sprintf("%s|%d|%g|%g", req.Model, cfg.Search.MaxStocks, *req.Temperature, *req.TopP)
	return cache.NewSearcher(searcher, a.searchCache(cfg), scope, slog.Default()), nil
}

func (a *appContext) searchCache(cfg *projectconfig.ProjectConfig) *cache.Cache {
	return cache.New(cfg.CacheDir(), cfg.Search.CacheTTL)
}

func (a *appContext) fetcher(cfg *projectconfig.ProjectConfig) *quotes.Fetcher {
	return quotes.NewFetcher(quotes.Config{
		BaseURL:   cfg.Quotes.BaseURL,
		ChunkSize: cfg.Quotes.ChunkSize,
		MinuteURL: cfg.Quotes.MinuteURL,
		DailyURL:  cfg.Quotes.DailyURL,
		DailyDays: cfg.Quotes.DailyDays,
	})
}
