package domain

import "time"

// ComposeStatus is the terminal status of a run.
type ComposeStatus string

const (
	ComposeOK      ComposeStatus = "ok"
	ComposeBlocked ComposeStatus = "blocked"
)

// Section is one titled block of the composed output.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Evidence is a passage returned by an evidence retriever.
type Evidence struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// WorkItem is a procedure-shaped object found inside a selected knowledge pack.
type WorkItem struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Source string         `json:"source"`
	Fields map[string]any `json:"fields"`
}

// ComposeResult is the terminal artifact of every run.
type ComposeResult struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	InputSHA256 string    `json:"input_sha256"`

	Status   ComposeStatus `json:"status"`
	Topic    string        `json:"topic"`
	Outline  []string      `json:"outline"`
	Sections []Section     `json:"sections"`
	Pack     PackIdentity  `json:"kg_pack"`

	// Set when the enrichment stage failed and the orchestrator recovered.
	EnrichmentError string `json:"enrichment_error,omitempty"`
	RecoveredFrom   string `json:"recovered_from,omitempty"` // "previous_compose" or "fallback"
}

// RetrieveTrace records the evidence consulted while composing.
type RetrieveTrace struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	InputSHA256 string     `json:"input_sha256"`
	Query       string     `json:"query"`
	Results     []Evidence `json:"results"`
}
