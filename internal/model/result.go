package model

import "time"

// SchemaVersion is stamped on every result so consumers can detect shape changes.
const SchemaVersion = "1.0"

// ResultSource indicates which stage produced a categorization.
type ResultSource string

// Result source constants.
const (
	SourceRule     ResultSource = "rule"
	SourceAI       ResultSource = "ai"
	SourceFallback ResultSource = "fallback"
	SourceUser     ResultSource = "user"
)

// Explanation is the auditable account of why a category was chosen.
// It is never modified after being attached to a result.
type Explanation struct {
	Timestamp    time.Time    `json:"timestamp"`
	Reasoning    string       `json:"reasoning"`
	Model        string       `json:"model,omitempty"`
	Provider     string       `json:"provider,omitempty"`
	Evidence     []string     `json:"evidence"`
	Alternatives Alternatives `json:"alternatives"`
	DataSources  []string     `json:"data_sources"`
	Confidence   float64      `json:"confidence"`
}

// ResultMetadata carries processing details for a categorization.
type ResultMetadata struct {
	Model              string        `json:"model,omitempty"`
	Provider           string        `json:"provider,omitempty"`
	SchemaVersion      string        `json:"schema_version"`
	Source             ResultSource  `json:"source"`
	ProcessingDuration time.Duration `json:"processing_duration"`
	Attempts           int           `json:"attempts"`
}

// CategorizationResult is the answer returned for a transaction.
type CategorizationResult struct {
	Category    string               `json:"category"`
	Subcategory string               `json:"subcategory,omitempty"`
	Explanation Explanation          `json:"explanation"`
	Rules       []CategorizationRule `json:"rules"`
	Metadata    ResultMetadata       `json:"metadata"`
	Confidence  float64              `json:"confidence"`
}
