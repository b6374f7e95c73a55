package relations

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the detection thresholds.
type Config struct {
	// TopK caps semantic matches kept per artifact.
	TopK int `validate:"gte=1"`

	// MinSimilarity is the semantic match floor.
	MinSimilarity float64 `validate:"gt=0,lte=1"`

	// IDMatchConfidence and RepoMatchConfidence are assigned to edges
	// found through identifier extraction.
	IDMatchConfidence   float64 `validate:"gt=0,lte=1"`
	RepoMatchConfidence float64 `validate:"gt=0,lte=1"`

	// BatchSize caps artifacts per linking run.
	BatchSize int `validate:"gte=1"`

	// Workers bounds per-artifact parallelism.
	Workers int `validate:"gte=1"`
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		TopK:                10,
		MinSimilarity:       0.80,
		IDMatchConfidence:   0.95,
		RepoMatchConfidence: 0.90,
		BatchSize:           500,
		Workers:             4,
	}
}

// Validate checks the config once at startup.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("relations config: %w", err)
	}
	return nil
}
