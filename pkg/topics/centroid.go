package topics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// Engine tracks topic centroids and detects evolution signals. It also
// serves centroids to the scoring engine, memoized per batch run.
type Engine struct {
	store    store.Storage
	embedder *embed.Embedder
	cfg      Config

	mu        sync.RWMutex
	centroids map[string][]float32

	// now is swapped in tests to pin window math.
	now func() time.Time
}

// NewEngine creates a topic evolution engine.
func NewEngine(st store.Storage, embedder *embed.Embedder, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     st,
		embedder:  embedder,
		cfg:       cfg,
		centroids: make(map[string][]float32),
		now:       time.Now,
	}, nil
}

// Centroid returns the topic's centroid, computing and memoizing it on
// first use. A zero vector means the topic has no text-bearing members.
func (e *Engine) Centroid(ctx context.Context, topicID string) ([]float32, error) {
	e.mu.RLock()
	cached, ok := e.centroids[topicID]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	centroid, err := e.ComputeCentroid(ctx, topicID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.centroids[topicID] = centroid
	e.mu.Unlock()
	return centroid, nil
}

// InvalidateCentroids clears the memo so the next batch reads fresh
// member snapshots.
func (e *Engine) InvalidateCentroids() {
	e.mu.Lock()
	e.centroids = make(map[string][]float32)
	e.mu.Unlock()
}

// ComputeCentroid builds the weighted mean of the topic's most-recent
// member embeddings. Member weight is discoveryScore decayed by age
// with a 30-day half-life, renormalized to sum 1.0; equal weighting
// when every discovery score is zero or missing.
func (e *Engine) ComputeCentroid(ctx context.Context, topicID string) ([]float32, error) {
	members, err := e.store.TopicMembers(ctx, topicID, e.cfg.MaxCentroidMembers)
	if err != nil {
		return nil, fmt.Errorf("topic members: %w", err)
	}

	now := e.now()
	type weighted struct {
		vec    []float32
		weight float64
	}
	var items []weighted
	totalWeight := 0.0

	for _, member := range members {
		text := strings.TrimSpace(member.Artifact.Title + " " + member.Artifact.Text)
		if text == "" {
			continue
		}
		vec := e.embedder.Embed(ctx, text, "artifact")

		ageDays := now.Sub(member.Artifact.PublishedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		weight := 0.0
		if member.Score != nil {
			weight = member.Score.Discovery * math.Exp(-ageDays/30)
		}
		items = append(items, weighted{vec: vec, weight: weight})
		totalWeight += weight
	}

	if len(items) == 0 {
		return nil, nil
	}

	// Equal weights when no member has a usable discovery score.
	if totalWeight <= 0 {
		for i := range items {
			items[i].weight = 1
		}
		totalWeight = float64(len(items))
	}

	centroid := make([]float32, len(items[0].vec))
	for _, item := range items {
		w := item.weight / totalWeight
		for i, v := range item.vec {
			if i < len(centroid) {
				centroid[i] += float32(w) * v
			}
		}
	}
	return centroid, nil
}

// TopicSimilarity is the cosine of two centroids, clamped to [-1,1].
// Either centroid missing or zero yields 0.
func TopicSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || embed.IsZero(a) || embed.IsZero(b) {
		return 0
	}
	cos := embed.Cosine(a, b)
	return math.Max(-1, math.Min(1, cos))
}

// memberWindow filters members to the analysis window, oldest first.
func (e *Engine) memberWindow(members []store.MemberArtifact) []store.MemberArtifact {
	cutoff := e.now().AddDate(0, 0, -e.cfg.WindowDays)
	var out []store.MemberArtifact
	for _, member := range members {
		if member.Artifact.PublishedAt.After(cutoff) {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Artifact.PublishedAt.Before(out[j].Artifact.PublishedAt)
	})
	return out
}
