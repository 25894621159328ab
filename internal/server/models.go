package server

import (
	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AnalysisRequest is the payload of POST /api/v1/analyses.
type AnalysisRequest struct {
	Subject    string   `json:"subject"`
	Indicators []string `json:"indicators"`
	Period     string   `json:"period"`
	Mode       string   `json:"mode"`
	NoSave     bool     `json:"no_save"`
}

// IndicatorsResponse lists the registered indicator cards.
type IndicatorsResponse struct {
	Indicators []indicator.Card `json:"indicators"`
}
