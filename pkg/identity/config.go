package identity

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Weights controls the field mix in the weighted similarity. When a
// caller supplies custom weights they are normalized to sum 1.0.
type Weights struct {
	Name        float64 `validate:"gte=0"`
	Affiliation float64 `validate:"gte=0"`
	Domain      float64 `validate:"gte=0"`
	Accounts    float64 `validate:"gte=0"`
}

// DefaultWeights returns the standard field mix.
func DefaultWeights() Weights {
	return Weights{
		Name:        0.50,
		Affiliation: 0.30,
		Domain:      0.15,
		Accounts:    0.05,
	}
}

// Normalized scales the weights to sum 1.0. All-zero weights fall back
// to the defaults.
func (w Weights) Normalized() Weights {
	sum := w.Name + w.Affiliation + w.Domain + w.Accounts
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Name:        w.Name / sum,
		Affiliation: w.Affiliation / sum,
		Domain:      w.Domain / sum,
		Accounts:    w.Accounts / sum,
	}
}

// Config holds the resolution thresholds and the conservative-linking
// lists. Constructed once at startup and validated; invalid thresholds
// are fatal.
type Config struct {
	// AutoLinkThreshold and above merges without confirmation.
	AutoLinkThreshold float64 `validate:"gt=0,lte=1"`

	// ManualReviewThreshold up to AutoLinkThreshold goes through the
	// confirmation capability, or to manual review without one.
	ManualReviewThreshold float64 `validate:"gt=0,lte=1"`

	// MinConfirmConfidence gates trust in a confirmation verdict.
	MinConfirmConfidence float64 `validate:"gte=0,lte=1"`

	// Conservative linking: these names bypass the automatic tiers
	// entirely. Common names otherwise dominate false positives.
	CommonFirstNames []string
	AmbiguousTokens  []string
	MinNameLength    int `validate:"gte=0"`

	Weights Weights
}

// DefaultConfig returns the standard resolution thresholds.
func DefaultConfig() Config {
	return Config{
		AutoLinkThreshold:     0.90,
		ManualReviewThreshold: 0.70,
		MinConfirmConfidence:  0.70,
		CommonFirstNames: []string{
			"james", "john", "david", "michael", "robert",
			"wei", "li", "chen", "yan", "maria", "anna", "alex",
		},
		AmbiguousTokens: []string{
			"university", "institute", "laboratory", "college",
			"academy", "school",
		},
		MinNameLength: 5,
		Weights:       DefaultWeights(),
	}
}

// Validate checks the config once at startup.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if c.ManualReviewThreshold >= c.AutoLinkThreshold {
		return fmt.Errorf("identity config: manual review threshold %.2f must be below auto-link threshold %.2f",
			c.ManualReviewThreshold, c.AutoLinkThreshold)
	}
	return nil
}
