package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// DefaultMinuteURL is the Tencent intraday minute endpoint.
	DefaultMinuteURL = "https://web.ifzq.gtimg.cn/appstock/app/minute/query"
	// DefaultDailyURL is the Sina K-line endpoint.
	DefaultDailyURL = "https://money.finance.sina.com.cn/quotes_service/api/json_v2.php/CN_MarketData.getKLineData"
	// DefaultDailyDays is the number of daily bars requested.
	DefaultDailyDays = 31
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	// ErrInvalidSymbol is returned for codes that are not six digits with an
	// optional sh or sz prefix.
	ErrInvalidSymbol = errors.New("invalid stock code")
	// ErrNoChartData is returned when the chart source answers without
	// usable bars.
	ErrNoChartData = errors.New("no chart data")
)

// ParseRef reads a stock code such as "600519" or "sh600519".
func ParseRef(code string) (Ref, error) {
	s := strings.ToLower(strings.TrimSpace(code))
	var market string
	for _, p := range []string{"sh", "sz"} {
		if rest, ok := strings.CutPrefix(s, p); ok {
			market, s = strings.ToUpper(p), rest
			break
		}
	}
	if len(s) != 6 {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, code)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, code)
		}
	}
	return Ref{Code: s, Market: market}, nil
}

// MinuteChart is one trading day of minute prices.
type MinuteChart struct {
	Code      string    `json:"code"`
	Times     []string  `json:"times"`
	Prices    []float64 `json:"prices"`
	PrevClose float64   `json:"prevClose"`
	DayHigh   float64   `json:"dayHigh,omitempty"`
	DayLow    float64   `json:"dayLow,omitempty"`
}

// Candle is one daily bar. It encodes as [open, close, low, high, volume],
// the order candlestick charts expect.
type Candle struct {
	Open   float64
	Close  float64
	Low    float64
	High   float64
	Volume int64
}

// MarshalJSON implements json.Marshaler.
func (c Candle) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Open, c.Close, c.Low, c.High, c.Volume})
}

// DailyChart holds daily bars, oldest first.
type DailyChart struct {
	Code    string   `json:"code"`
	Dates   []string `json:"dates"`
	Candles []Candle `json:"klineData"`
}

// Minute returns today's minute prices for r.
func (f *Fetcher) Minute(ctx context.Context, r Ref) (MinuteChart, error) {
	symbol := r.Symbol()
	body, err := f.getJSON(ctx, f.minuteURL+"?code="+url.QueryEscape(symbol), "")
	if err != nil {
		return MinuteChart{}, fmt.Errorf("fetching minute chart: %w", err)
	}
	chart, err := parseMinute(body, symbol)
	if err != nil {
		return MinuteChart{}, fmt.Errorf("minute chart for %s: %w", symbol, err)
	}
	chart.Code = r.Code
	return chart, nil
}

// Daily returns the most recent daily bars for r.
func (f *Fetcher) Daily(ctx context.Context, r Ref) (DailyChart, error) {
	symbol := r.Symbol()
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("scale", "240")
	q.Set("ma", "no")
	q.Set("datalen", strconv.Itoa(f.dailyDays))
	body, err := f.getJSON(ctx, f.dailyURL+"?"+q.Encode(), "https://finance.sina.com.cn")
	if err != nil {
		return DailyChart{}, fmt.Errorf("fetching daily chart: %w", err)
	}
	chart, err := parseDaily(body)
	if err != nil {
		return DailyChart{}, fmt.Errorf("daily chart for %s: %w", symbol, err)
	}
	chart.Code = r.Code
	return chart, nil
}

func (f *Fetcher) getJSON(ctx context.Context, u, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	f.logger.Debug("fetching chart", "url", u)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// parseMinute reads the Tencent minute payload:
//
//	{"data":{"sh600519":{"data":{"data":["0930 1411.00 183 25821300.00",...]},
//	 "qt":{"sh600519":["1","贵州茅台","600519","1411.00","1400.00",...]}}}}
//
// The previous close comes from the quote record and is required.
func parseMinute(body []byte, symbol string) (MinuteChart, error) {
	if !gjson.ValidBytes(body) {
		return MinuteChart{}, fmt.Errorf("%w: response is not JSON", ErrNoChartData)
	}
	node := gjson.GetBytes(body, "data."+symbol)
	if !node.Exists() {
		return MinuteChart{}, fmt.Errorf("%w: symbol missing from response", ErrNoChartData)
	}

	var chart MinuteChart
	qt := node.Get("qt." + symbol).Array()
	if len(qt) > fieldPrevClose {
		chart.PrevClose = parseFloat(qt[fieldPrevClose].String())
	}
	if len(qt) > fieldLow {
		chart.DayHigh = parseFloat(qt[fieldHigh].String())
		chart.DayLow = parseFloat(qt[fieldLow].String())
	}
	if chart.PrevClose <= 0 {
		return MinuteChart{}, fmt.Errorf("%w: previous close unavailable", ErrNoChartData)
	}

	for _, rec := range node.Get("data.data").Array() {
		parts := strings.Fields(rec.String())
		if len(parts) < 2 || len(parts[0]) != 4 {
			continue
		}
		price, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		chart.Times = append(chart.Times, parts[0][:2]+":"+parts[0][2:])
		chart.Prices = append(chart.Prices, round2(price))
	}
	if len(chart.Times) == 0 {
		return MinuteChart{}, fmt.Errorf("%w: no minute records", ErrNoChartData)
	}
	return chart, nil
}

// parseDaily reads the Sina K-line array
// [{"day":"2025-03-03","open":"1400.000","high":...,"volume":"123456"},...].
// Bars missing a date or any price are skipped.
func parseDaily(body []byte) (DailyChart, error) {
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return DailyChart{}, fmt.Errorf("%w: response is not an array", ErrNoChartData)
	}

	var chart DailyChart
	for _, item := range doc.Array() {
		day := item.Get("day").String()
		open := item.Get("open").Float()
		high := item.Get("high").Float()
		low := item.Get("low").Float()
		closing := item.Get("close").Float()
		if day == "" || open == 0 || high == 0 || low == 0 || closing == 0 {
			continue
		}
		chart.Dates = append(chart.Dates, day)
		chart.Candles = append(chart.Candles, Candle{
			Open:   open,
			Close:  closing,
			Low:    low,
			High:   high,
			Volume: item.Get("volume").Int(),
		})
	}
	if len(chart.Candles) == 0 {
		return DailyChart{}, fmt.Errorf("%w: no daily bars", ErrNoChartData)
	}
	return chart, nil
}
