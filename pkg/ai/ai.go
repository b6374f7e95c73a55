package ai

import (
	"context"
)

// ModelMetrics accumulates token and latency counters across capability
// calls. Engines log them per run.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// EmbeddingClient is the external embedding capability: text in, fixed
// length vector out. Implementations must honor ctx deadlines; callers
// treat any error as "capability unavailable" and fall back to a
// deterministic hash vector, so a failing provider degrades quality but
// never halts a batch.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// MatchDecision is the confirmation capability's verdict on whether two
// entity profiles refer to the same real-world identity.
type MatchDecision struct {
	IsSame     bool    `json:"is_same" jsonschema_description:"Whether the two profiles describe the same real-world person or organization."`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence in the verdict, 0.0 to 1.0."`
	Reasoning  string  `json:"reasoning" jsonschema_description:"Short justification for the verdict."`
}

// EntityProfile is the subset of entity data shown to the confirmation
// capability.
type EntityProfile struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Homepage    string   `json:"homepage,omitempty"`
	Accounts    []string `json:"accounts,omitempty"`
}

// ConfirmClient is the optional merge-confirmation capability. A nil
// client means the review tier always produces a manual review item.
type ConfirmClient interface {
	ConfirmMatch(ctx context.Context, a, b EntityProfile, similarity float64) (MatchDecision, error)
}

// GenerateOptions holds per-call generation settings for chat-backed
// capabilities.
type GenerateOptions struct {
	Model       string
	Temperature float64
}

// GenerateOption is a functional option for chat-backed capability calls.
type GenerateOption func(*GenerateOptions)

// WithModel overrides the model for one call.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}
