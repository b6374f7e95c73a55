package scoring

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodestar-hq/lodestar/internal/util"
	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// CentroidSource resolves a topic's current centroid embedding. The
// topic engine implements it; a nil centroid means no centroid exists
// yet and the novelty embedding term contributes a neutral 50.
type CentroidSource interface {
	Centroid(ctx context.Context, topicID string) ([]float32, error)
}

// Engine computes novelty, emergence, obscurity, and the combined
// discovery score for artifacts.
type Engine struct {
	store     store.Storage
	embedder  *embed.Embedder
	centroids CentroidSource
	cfg       Config

	// now is swapped in tests to pin recency terms.
	now func() time.Time
}

// NewEngine creates a scoring engine. centroids may be nil when no
// topic context is available.
func NewEngine(st store.Storage, embedder *embed.Embedder, centroids CentroidSource, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     st,
		embedder:  embedder,
		centroids: centroids,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// ScoreArtifact computes all four signals for one artifact. topic and
// entities are optional context; pass nil when unknown.
func (e *Engine) ScoreArtifact(ctx context.Context, artifact common.Artifact, topic *common.Topic, entities []common.Entity) common.Score {
	text := strings.TrimSpace(artifact.Title + " " + artifact.Text)

	var vec []float32
	if text != "" {
		vec = e.embedder.Embed(ctx, text, "artifact")
	}

	var centroid []float32
	topicCount := 0
	if topic != nil {
		topicCount = topic.ArtifactCount
		if e.centroids != nil {
			c, err := e.centroids.Centroid(ctx, topic.ID)
			if err != nil {
				logger.Debug("[Scoring] Centroid lookup failed, using neutral novelty term", "topic", topic.ID, "err", err)
			} else {
				centroid = c
			}
		}
	}

	novelty := e.novelty(text, vec, centroid)
	emergence := e.emergence(artifact, topicCount)
	obscurity := e.obscurity(artifact, entities)
	discovery := e.discovery(artifact, novelty, emergence, obscurity)

	return common.Score{
		ArtifactID: artifact.ID,
		Novelty:    novelty,
		Emergence:  emergence,
		Obscurity:  obscurity,
		Discovery:  discovery,
	}
}

// novelty measures distance from the topic's semantic center plus two
// lexical rarity terms.
func (e *Engine) novelty(text string, vec, centroid []float32) float64 {
	if text == "" {
		return 0
	}

	// Neutral contribution until the topic has a centroid.
	embTerm := 50.0
	if len(centroid) > 0 && !embed.IsZero(centroid) {
		embTerm = math.Min(100, embed.Distance(vec, centroid)*50)
	}

	tokens := util.Tokenize(text)
	rareTerms := 0
	for _, tok := range tokens {
		if len(tok) > 5 {
			rareTerms++
		}
	}

	// Placeholder rarity signal: a deterministic 1-in-10 of bigrams
	// counts as uncommon, pending a real historical bigram-frequency
	// table.
	uncommonBigrams := 0
	for _, bg := range util.Bigrams(tokens) {
		h := fnv.New32a()
		h.Write([]byte(bg))
		if h.Sum32()%10 == 0 {
			uncommonBigrams++
		}
	}

	n := 0.5*embTerm +
		0.3*math.Min(30, float64(rareTerms)*2) +
		0.2*math.Min(20, float64(uncommonBigrams)*2)
	return clamp100(n)
}

// emergence rewards fresh cross-source activity in active topics.
func (e *Engine) emergence(artifact common.Artifact, topicCount int) float64 {
	v := 0.0
	if preprintSources[artifact.Source] || codeSources[artifact.Source] {
		v += 15
	}

	hours := e.hoursSincePublished(artifact)
	v += 25 * math.Exp(-hours/168)

	v += math.Min(30, float64(topicCount)*3)

	// Placeholder acceleration term, pending a second-derivative
	// trend fit over topic activity.
	v += 10

	return clamp100(v)
}

// obscurity estimates how under-amplified the artifact is, from source
// venue, author platform presence, and vocabulary.
func (e *Engine) obscurity(artifact common.Artifact, entities []common.Entity) float64 {
	v, ok := sourceObscurity[artifact.Source]
	if !ok {
		v = defaultSourceObscurity
	}

	for _, entity := range entities {
		for _, account := range entity.Accounts {
			if account.Confidence > 0.8 {
				v += 10
			}
			if academicPlatforms[strings.ToLower(account.Platform)] {
				v += 5
			}
		}
	}

	lower := strings.ToLower(artifact.Title + " " + artifact.Text)
	for _, term := range viralVocabulary {
		if strings.Contains(lower, term) {
			v -= 5
		}
	}

	techBonus := 0.0
	for _, term := range technicalVocabulary {
		if strings.Contains(lower, term) {
			techBonus += 2
		}
	}
	v += math.Min(20, techBonus)

	return clamp100(v)
}

// discovery combines the three signals with the configured weights and
// applies the slow recency decay.
func (e *Engine) discovery(artifact common.Artifact, novelty, emergence, obscurity float64) float64 {
	raw := novelty*e.cfg.NoveltyWeight +
		emergence*e.cfg.EmergenceWeight +
		obscurity*e.cfg.ObscurityWeight

	if highTrustSources[artifact.Source] {
		raw += 10 * e.cfg.CrossSourceWeight
	}
	if len(artifact.AuthorIDs) > 0 {
		raw += 5 * e.cfg.ExpertSignalWeight
	}

	hours := e.hoursSincePublished(artifact)
	raw *= math.Exp(-hours / e.cfg.RecencyHalfLifeHours)

	return clamp100(raw)
}

func (e *Engine) hoursSincePublished(artifact common.Artifact) float64 {
	hours := e.now().Sub(artifact.PublishedAt).Hours()
	if hours < 0 {
		// Future timestamps happen with sloppy feed metadata; treat
		// as just published rather than amplifying the recency terms.
		return 0
	}
	return hours
}

// RunBatch scores every artifact the store reports as unscored. One
// failing artifact is logged and skipped; the batch never aborts.
func (e *Engine) RunBatch(ctx context.Context) (common.RunStats, error) {
	artifacts, err := e.store.ArtifactsNeedingScoring(ctx, e.cfg.BatchSize)
	if err != nil {
		return common.RunStats{}, fmt.Errorf("list artifacts needing scoring: %w", err)
	}

	logger.Info("[Scoring] Batch starting", "artifacts", len(artifacts))

	var mu sync.Mutex
	stats := common.RunStats{}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Workers)

	for _, artifact := range artifacts {
		a := artifact
		eg.Go(func() error {
			err := e.scoreAndPersist(gCtx, a)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			if err != nil {
				stats.Errors++
				logger.Error("[Scoring] Artifact failed", "artifact", a.ID, "err", err)
			} else {
				stats.Scored++
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}

	logger.Info("[Scoring] Batch finished", "processed", stats.Processed, "scored", stats.Scored, "errors", stats.Errors)
	return stats, nil
}

func (e *Engine) scoreAndPersist(ctx context.Context, artifact common.Artifact) error {
	topic, err := e.store.TopicForArtifact(ctx, artifact.ID)
	if err != nil {
		return fmt.Errorf("topic lookup: %w", err)
	}

	var entities []common.Entity
	if len(artifact.AuthorIDs) > 0 {
		entities, err = e.store.GetEntitiesByIDs(ctx, artifact.AuthorIDs)
		if err != nil {
			return fmt.Errorf("author lookup: %w", err)
		}
	}

	score := e.ScoreArtifact(ctx, artifact, topic, entities)

	// Store conflicts retry once with fresh data, then surface as an
	// item-level error.
	err = util.RetryErrWithContext(ctx, 2, func(ctx context.Context) error {
		return e.store.UpsertScore(ctx, score)
	})
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}
