package models

import "net/http"

// LineData is the per-source (or aggregated) payload of a result.
type LineData struct {
	LineInfo []ConcreteLine    `json:"lineInfo"`
	LineTmp  []PlaceholderLine `json:"lineTmp"`
	Resume   []RunSummary      `json:"resume"`
}

// SourceResult is the outcome of fetching one source.
type SourceResult struct {
	Key               string       `json:"key"`
	StatusCode        int          `json:"statusCode"`
	StatusDescription string       `json:"statusDescription"`
	Attempts          int          `json:"attempts"`
	Data              LineData     `json:"data"`
	Settlements       []Settlement `json:"-"`
}

// OK reports whether the source produced a usable line.
func (r SourceResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// HasLine reports whether the result carries a concrete and a placeholder line.
func (r SourceResult) HasLine() bool {
	return len(r.Data.LineInfo) > 0 && len(r.Data.LineTmp) > 0
}

// RunResult is returned to the caller of a run.
type RunResult struct {
	RunID             string         `json:"runId,omitempty"`
	StatusCode        int            `json:"statusCode"`
	StatusDescription string         `json:"statusDescription"`
	Data              *LineData      `json:"data,omitempty"`
	Sources           []SourceResult `json:"sources,omitempty"`
}
