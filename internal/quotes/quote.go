// Package quotes fetches real-time A-share quotes and summarizes how a
// concept board is trading.
package quotes

import (
	"math"
	"strings"
)

// Status describes whether a quote carries live prices.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Ref identifies a stock to quote. Market is SH or SZ; when empty it is
// inferred from the code.
type Ref struct {
	Code   string
	Name   string
	Market string
}

// Symbol returns the lower-case exchange-prefixed code, e.g. sh600519.
func (r Ref) Symbol() string {
	m := strings.ToLower(strings.TrimSpace(r.Market))
	if m != "sh" && m != "sz" {
		m = "sz"
		if r.Code != "" && (r.Code[0] == '6' || r.Code[0] == '8' || r.Code[0] == '9') {
			m = "sh"
		}
	}
	return m + r.Code
}

// Quote is a snapshot of one stock. Volume is in shares and Amount in yuan.
type Quote struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Market        string  `json:"market"`
	Price         float64 `json:"price"`
	PrevClose     float64 `json:"preClose"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	Amount        float64 `json:"amount"`
	UpdateTime    string  `json:"updateTime"`
	Status        Status  `json:"status"`
}

// Direction is the sign of a quote's move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Direction reports whether q is up, down or flat on the day. Quotes
// without a live price are flat.
func (q Quote) Direction() Direction {
	switch {
	case q.Status != StatusNormal:
		return Flat
	case q.ChangePercent > 0:
		return Up
	case q.ChangePercent < 0:
		return Down
	default:
		return Flat
	}
}

// Placeholders returns error-status quotes for refs, used when no data
// could be fetched.
func Placeholders(refs []Ref) []Quote {
	out := make([]Quote, len(refs))
	for i, r := range refs {
		out[i] = placeholder(r)
	}
	return out
}

func placeholder(r Ref) Quote {
	return Quote{
		Code:   r.Code,
		Name:   r.Name,
		Market: strings.ToUpper(r.Symbol()[:2]),
		Status: StatusError,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
