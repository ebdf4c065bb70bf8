// Package projectconfig provides the ProjectConfig struct and loader for
// .conceptci.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".conceptci.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultBaseURL   = "https://open.bigmodel.cn/api/paas/v4/"
	DefaultModel     = "glm-4.5"
	DefaultTimeout   = 60
	DefaultAPIKeyEnv = "GLM_API_KEY"

	DefaultSearchMaxStocks   = 10
	DefaultSearchTemperature = 0.1
	DefaultSearchTopP        = 0.8
	DefaultSearchCacheDir    = ".conceptci-cache"
	DefaultSearchCacheTTL    = 24 * time.Hour

	DefaultIterations = 1000
	DefaultSeed       = -1
	DefaultConfidence = 0.95

	DefaultStorePath = "data/concepts.json"

	DefaultQuotesBaseURL   = "http://qt.gtimg.cn"
	DefaultQuotesChunkSize = 50
	DefaultQuotesMinuteURL = "https://web.ifzq.gtimg.cn/appstock/app/minute/query"
	DefaultQuotesDailyURL  = "https://money.finance.sina.com.cn/quotes_service/api/json_v2.php/CN_MarketData.getKLineData"
	DefaultQuotesDailyDays = 31

	DefaultServerPort = 3000
)

// Environment variables holding secrets. They are never read from the YAML
// file.
const (
	EnvAuthUsername = "AUTH_USERNAME"
	EnvAuthPassword = "AUTH_PASSWORD"
)

// APIConfig holds chat-completion provider settings.
type APIConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Timeout   int    `yaml:"timeout,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// ChatConfig holds defaults for the chat command. Tools are raw maps
// decoded later by chat.DecodeTools.
type ChatConfig struct {
	Temperature *float64         `yaml:"temperature,omitempty"`
	TopP        *float64         `yaml:"top_p,omitempty"`
	Tools       []map[string]any `yaml:"tools,omitempty"`
}

// SearchConfig holds concept constituent search settings.
type SearchConfig struct {
	Model       string   `yaml:"model,omitempty"`
	MaxStocks   int      `yaml:"max_stocks,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TopP        *float64 `yaml:"top_p,omitempty"`

	// CacheDir holds cached search answers; relative paths resolve
	// against the config directory. CacheTTL accepts durations like "12h".
	CacheDir string        `yaml:"cache_dir,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
}

// BootstrapConfig holds estimator defaults. A negative seed selects a
// non-deterministic generator.
type BootstrapConfig struct {
	Iterations int     `yaml:"n_boot,omitempty"`
	Seed       *int64  `yaml:"seed,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty"`
}

// StoreConfig holds the concept store location.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// QuotesConfig holds quote source settings.
type QuotesConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	ChunkSize int    `yaml:"chunk_size,omitempty"`

	// Chart sources: Tencent minute prices and Sina daily bars.
	MinuteURL string `yaml:"minute_url,omitempty"`
	DailyURL  string `yaml:"daily_url,omitempty"`
	DailyDays int    `yaml:"daily_days,omitempty"`
}

// ServerConfig holds REST API server settings.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// LogFile, when set, receives JSON request logs with size-based
	// rotation. Relative paths resolve against the config directory.
	LogFile string `yaml:"log_file,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .conceptci.yaml.
type ProjectConfig struct {
	API       APIConfig       `yaml:"api,omitempty"`
	Chat      ChatConfig      `yaml:"chat,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
	Bootstrap BootstrapConfig `yaml:"bootstrap,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Quotes    QuotesConfig    `yaml:"quotes,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`

	// Dir is the directory the config file was found in, or the start
	// directory when none was found.
	Dir string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Model:     DefaultModel,
			Timeout:   DefaultTimeout,
			APIKeyEnv: DefaultAPIKeyEnv,
		},
		Search: SearchConfig{
			Model:       DefaultModel,
			MaxStocks:   DefaultSearchMaxStocks,
			Temperature: floatPtr(DefaultSearchTemperature),
			TopP:        floatPtr(DefaultSearchTopP),
			CacheDir:    DefaultSearchCacheDir,
			CacheTTL:    DefaultSearchCacheTTL,
		},
		Bootstrap: BootstrapConfig{
			Iterations: DefaultIterations,
			Seed:       int64Ptr(DefaultSeed),
			Confidence: DefaultConfidence,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Quotes: QuotesConfig{
			BaseURL:   DefaultQuotesBaseURL,
			ChunkSize: DefaultQuotesChunkSize,
			MinuteURL: DefaultQuotesMinuteURL,
			DailyURL:  DefaultQuotesDailyURL,
			DailyDays: DefaultQuotesDailyDays,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
	}
}

// Load finds .conceptci.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults. A .env file
// next to the config file (or in startDir) is loaded into the environment
// without overriding variables that are already set.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", startDir, err)
	}
	cfg.Dir = absStart

	data, dir, err := findConfigFile(absStart)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	default:
		var fileCfg ProjectConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
		mergeConfig(cfg, &fileCfg)
		cfg.Dir = dir
	}

	if err := loadDotEnv(cfg.Dir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile walks up from dir looking for the config file (max 10
// levels) and returns its contents and directory. Returns os.ErrNotExist
// if no config file is found.
func findConfigFile(dir string) ([]byte, string, error) {
	for range 10 {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

func loadDotEnv(dir string) error {
	p := filepath.Join(dir, ".env")
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("loading %s: %w", p, err)
	}
	return nil
}

// APIKey returns the provider key from the configured environment variable.
func (c *ProjectConfig) APIKey() string {
	return os.Getenv(c.API.APIKeyEnv)
}

// Credentials returns the basic auth username and password for the REST
// API. Either may be empty.
func (c *ProjectConfig) Credentials() (username, password string) {
	return os.Getenv(EnvAuthUsername), os.Getenv(EnvAuthPassword)
}

// StorePath returns the concept store path, resolved against Dir when
// relative.
func (c *ProjectConfig) StorePath() string {
	return c.resolve(c.Store.Path)
}

// CacheDir returns the search cache directory, resolved against Dir when
// relative.
func (c *ProjectConfig) CacheDir() string {
	return c.resolve(c.Search.CacheDir)
}

// LogFile returns the server log file path, resolved against Dir when
// relative. Empty means console logging only.
func (c *ProjectConfig) LogFile() string {
	return c.resolve(c.Server.LogFile)
}

func (c *ProjectConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Seed returns the configured bootstrap seed.
func (c *ProjectConfig) Seed() int64 {
	if c.Bootstrap.Seed == nil {
		return DefaultSeed
	}
	return *c.Bootstrap.Seed
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// API
	if src.API.BaseURL != "" {
		dst.API.BaseURL = src.API.BaseURL
	}
	if src.API.Model != "" {
		dst.API.Model = src.API.Model
	}
	if src.API.Timeout != 0 {
		dst.API.Timeout = src.API.Timeout
	}
	if src.API.APIKeyEnv != "" {
		dst.API.APIKeyEnv = src.API.APIKeyEnv
	}

	// Chat
	if src.Chat.Temperature != nil {
		dst.Chat.Temperature = src.Chat.Temperature
	}
	if src.Chat.TopP != nil {
		dst.Chat.TopP = src.Chat.TopP
	}
	if src.Chat.Tools != nil {
		dst.Chat.Tools = src.Chat.Tools
	}

	// Search
	if src.Search.Model != "" {
		dst.Search.Model = src.Search.Model
	}
	if src.Search.MaxStocks != 0 {
		dst.Search.MaxStocks = src.Search.MaxStocks
	}
	if src.Search.Temperature != nil {
		dst.Search.Temperature = src.Search.Temperature
	}
	if src.Search.TopP != nil {
		dst.Search.TopP = src.Search.TopP
	}
	if src.Search.CacheDir != "" {
		dst.Search.CacheDir = src.Search.CacheDir
	}
	if src.Search.CacheTTL != 0 {
		dst.Search.CacheTTL = src.Search.CacheTTL
	}

	// Bootstrap
	if src.Bootstrap.Iterations != 0 {
		dst.Bootstrap.Iterations = src.Bootstrap.Iterations
	}
	if src.Bootstrap.Seed != nil {
		dst.Bootstrap.Seed = src.Bootstrap.Seed
	}
	if src.Bootstrap.Confidence != 0 {
		dst.Bootstrap.Confidence = src.Bootstrap.Confidence
	}

	// Store
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	// Quotes
	if src.Quotes.BaseURL != "" {
		dst.Quotes.BaseURL = src.Quotes.BaseURL
	}
	if src.Quotes.ChunkSize != 0 {
		dst.Quotes.ChunkSize = src.Quotes.ChunkSize
	}
	if src.Quotes.MinuteURL != "" {
		dst.Quotes.MinuteURL = src.Quotes.MinuteURL
	}
	if src.Quotes.DailyURL != "" {
		dst.Quotes.DailyURL = src.Quotes.DailyURL
	}
	if src.Quotes.DailyDays != 0 {
		dst.Quotes.DailyDays = src.Quotes.DailyDays
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.AllowedOrigins != nil {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
	if src.Server.LogFile != "" {
		dst.Server.LogFile = src.Server.LogFile
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
