package scoring

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the scoring weights. Constructed once at startup,
// validated, and immutable thereafter.
type Config struct {
	NoveltyWeight      float64 `validate:"gte=0,lte=1"`
	EmergenceWeight    float64 `validate:"gte=0,lte=1"`
	ObscurityWeight    float64 `validate:"gte=0,lte=1"`
	CrossSourceWeight  float64 `validate:"gte=0,lte=1"`
	ExpertSignalWeight float64 `validate:"gte=0,lte=1"`

	// RecencyHalfLifeHours controls the discovery-score decay.
	// Deliberately slower than the novelty/emergence recency terms:
	// discoverability should persist longer than short-term buzz.
	RecencyHalfLifeHours float64 `validate:"gt=0"`

	// Workers bounds per-artifact parallelism in a batch run.
	Workers int `validate:"gte=1"`

	// BatchSize caps how many unscored artifacts one run pulls.
	BatchSize int `validate:"gte=1"`
}

// DefaultConfig returns the standard scoring weights.
func DefaultConfig() Config {
	return Config{
		NoveltyWeight:        0.40,
		EmergenceWeight:      0.30,
		ObscurityWeight:      0.30,
		CrossSourceWeight:    1.0,
		ExpertSignalWeight:   1.0,
		RecencyHalfLifeHours: 336,
		Workers:              4,
		BatchSize:            500,
	}
}

// Validate checks the config. Invalid weights are fatal at startup,
// never silently clamped mid-run.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	sum := c.NoveltyWeight + c.EmergenceWeight + c.ObscurityWeight
	if sum > 1.0 {
		return fmt.Errorf("scoring config: novelty+emergence+obscurity weights sum to %.3f, must be <= 1.0", sum)
	}
	return nil
}
