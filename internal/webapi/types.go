package webapi

import (
	"time"

	"github.com/conceptlab/conceptci/internal/quotes"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ConceptRequest is the body of create and refresh requests.
type ConceptRequest struct {
	Name string `json:"name"`
}

// BoardQuotes is the response for a concept's live quotes.
type BoardQuotes struct {
	Concept          string              `json:"concept"`
	ConceptID        string              `json:"conceptId"`
	Quotes           []quotes.Quote      `json:"quotes"`
	AvgChangePercent float64             `json:"avgChangePercent"`
	Summary          quotes.BoardSummary `json:"summary"`
	UpdateTime       time.Time           `json:"updateTime"`
}
