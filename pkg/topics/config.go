package topics

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the topic evolution thresholds.
type Config struct {
	// MergeThreshold is the minimum centroid similarity for a topic
	// pair to be considered merge candidates.
	MergeThreshold float64 `validate:"gt=0,lte=1"`

	// SplitCoherenceDrop is the minimum coherence drop between window
	// halves before a topic is considered a split candidate.
	SplitCoherenceDrop float64 `validate:"gt=0,lte=1"`

	// MinSplitMembers is the minimum member count in the window for
	// split detection to apply.
	MinSplitMembers int `validate:"gte=2"`

	// WindowDays is the analysis window for trends and splits.
	WindowDays int `validate:"gte=1"`

	// MaxCentroidMembers caps how many recent member embeddings feed
	// the centroid.
	MaxCentroidMembers int `validate:"gte=1"`

	// MinGrowthPoints is the minimum daily data points for a growth
	// fit; below it the prediction reports insufficient data.
	MinGrowthPoints int `validate:"gte=2"`

	// ReviewConfidence routes events below it into the review queue.
	ReviewConfidence float64 `validate:"gte=0,lte=1"`
}

// DefaultConfig returns the standard evolution thresholds.
func DefaultConfig() Config {
	return Config{
		MergeThreshold:     0.85,
		SplitCoherenceDrop: 0.20,
		MinSplitMembers:    5,
		WindowDays:         30,
		MaxCentroidMembers: 100,
		MinGrowthPoints:    7,
		ReviewConfidence:   0.70,
	}
}

// Validate checks the config once at startup.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("topics config: %w", err)
	}
	return nil
}
