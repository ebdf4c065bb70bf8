package quotes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const (
	// DefaultBaseURL is the Tencent quote endpoint.
	DefaultBaseURL = "http://qt.gtimg.cn"
	// DefaultChunkSize is the number of symbols requested per call.
	DefaultChunkSize = 50
	// DefaultTimeout bounds each chunk request.
	DefaultTimeout = 10 * time.Second
)

// Positions in the "~"-separated Tencent record.
const (
	fieldName      = 1
	fieldPrice     = 3
	fieldPrevClose = 4
	fieldOpen      = 5
	fieldTime      = 30
	fieldHigh      = 33
	fieldLow       = 34
	fieldVolume    = 36
	fieldAmount    = 37
	minFields      = fieldAmount + 1
)

// Config configures a Fetcher.
type Config struct {
	BaseURL    string
	ChunkSize  int
	MinuteURL  string
	DailyURL   string
	DailyDays  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Fetcher retrieves quotes from the Tencent finance endpoint and price
// charts from the Tencent minute and Sina K-line endpoints.
type Fetcher struct {
	baseURL    string
	chunkSize  int
	minuteURL  string
	dailyURL   string
	dailyDays  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher, filling zero Config fields with defaults.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MinuteURL == "" {
		cfg.MinuteURL = DefaultMinuteURL
	}
	if cfg.DailyURL == "" {
		cfg.DailyURL = DefaultDailyURL
	}
	if cfg.DailyDays <= 0 {
		cfg.DailyDays = DefaultDailyDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chunkSize:  cfg.ChunkSize,
		minuteURL:  cfg.MinuteURL,
		dailyURL:   cfg.DailyURL,
		dailyDays:  cfg.DailyDays,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Fetch returns one quote per ref, in order. Refs missing from the
// response get an error-status quote. Chunks are requested concurrently and
// the first failing chunk fails the whole call.
func (f *Fetcher) Fetch(ctx context.Context, refs []Ref) ([]Quote, error) {
	out := make([]Quote, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(refs); start += f.chunkSize {
		end := min(start+f.chunkSize, len(refs))
		chunk := refs[start:end]
		dst := out[start:end]
		g.Go(func() error {
			records, err := f.fetchChunk(ctx, chunk)
			if err != nil {
				return err
			}
			for i, r := range chunk {
				dst[i] = buildQuote(r, records[r.Symbol()])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, refs []Ref) (map[string][]string, error) {
	symbols := make([]string, len(refs))
	for i, r := range refs {
		symbols[i] = r.Symbol()
	}
	url := f.baseURL + "/q=" + strings.Join(symbols, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating quote request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", "http://stockapp.finance.qq.com")

	f.logger.Debug("fetching quotes", "symbols", len(symbols))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching quotes: unexpected status %d", resp.StatusCode)
	}

	records, err := parseResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quotes: %w", err)
	}
	return records, nil
}

// parseResponse decodes a GBK body of lines like
// v_sh600519="1~贵州茅台~600519~...~"; and returns the fields keyed by
// symbol. Empty records are omitted.
func parseResponse(body io.Reader) (map[string][]string, error) {
	utf8Body := transform.NewReader(body, simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(utf8Body)
	if err != nil {
		return nil, err
	}

	records := make(map[string][]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		symbol, ok := strings.CutPrefix(strings.TrimSpace(key), "v_")
		if !ok {
			continue
		}
		value = strings.TrimSuffix(strings.TrimSpace(value), ";")
		value = strings.Trim(value, `"`)
		if value == "" {
			continue
		}
		records[symbol] = strings.Split(value, "~")
	}
	return records, sc.Err()
}

func buildQuote(r Ref, fields []string) Quote {
	if len(fields) < minFields {
		return placeholder(r)
	}

	q := Quote{
		Code:       r.Code,
		Name:       r.Name,
		Market:     strings.ToUpper(r.Symbol()[:2]),
		Price:      parseFloat(fields[fieldPrice]),
		PrevClose:  parseFloat(fields[fieldPrevClose]),
		Open:       parseFloat(fields[fieldOpen]),
		High:       parseFloat(fields[fieldHigh]),
		Low:        parseFloat(fields[fieldLow]),
		Volume:     int64(parseFloat(fields[fieldVolume])) * 100,
		Amount:     parseFloat(fields[fieldAmount]) * 10000,
		UpdateTime: formatTime(fields[fieldTime]),
		Status:     StatusNormal,
	}
	if q.Name == "" {
		q.Name = strings.TrimSpace(fields[fieldName])
	}
	if q.Price == 0 {
		q.Status = StatusStopped
	}

	if q.Status == StatusNormal && q.PrevClose > 0 {
		change := q.Price - q.PrevClose
		q.Change = round2(change)
		q.ChangePercent = round2(change / q.PrevClose * 100)
	}
	return q
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// formatTime turns the compact 20250301150003 stamp into
// "2025-03-01 15:00:03". Other shapes pass through unchanged.
func formatTime(s string) string {
	t, err := time.Parse("20060102150405", strings.TrimSpace(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return t.Format(time.DateTime)
}
