package topics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lodestar-hq/lodestar/internal/util"
	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// DetectMerges scans every topic pair for converging topics: centroid
// similarity at or above the merge threshold combined with a growing
// shared-artifact overlap. Emitted events are advisory.
func (e *Engine) DetectMerges(ctx context.Context, topics []common.Topic) ([]common.TopicEvent, error) {
	var events []common.TopicEvent

	for i := 0; i < len(topics); i++ {
		centroidA, err := e.Centroid(ctx, topics[i].ID)
		if err != nil {
			return events, fmt.Errorf("centroid %s: %w", topics[i].ID, err)
		}
		for j := i + 1; j < len(topics); j++ {
			centroidB, err := e.Centroid(ctx, topics[j].ID)
			if err != nil {
				return events, fmt.Errorf("centroid %s: %w", topics[j].ID, err)
			}

			sim := TopicSimilarity(centroidA, centroidB)
			if sim < e.cfg.MergeThreshold {
				continue
			}

			shared, err := e.store.SharedArtifactDailyCounts(ctx, topics[i].ID, topics[j].ID, e.cfg.WindowDays)
			if err != nil {
				return events, fmt.Errorf("shared counts %s/%s: %w", topics[i].ID, topics[j].ID, err)
			}
			trend := averageDailyDelta(shared)
			if trend <= 0 {
				continue
			}

			confidence := 0.7*sim + 0.3*math.Min(1, 2*trend)
			events = append(events, common.TopicEvent{
				ID:             util.NewID("evt"),
				Kind:           common.TopicMergeCandidate,
				TopicID:        topics[i].ID,
				RelatedTopicID: topics[j].ID,
				Confidence:     math.Min(1, confidence),
				Details: map[string]any{
					"similarity":    sim,
					"overlap_trend": trend,
				},
				DetectedAt: e.now().UTC(),
			})
		}
	}
	return events, nil
}

// averageDailyDelta is the mean of consecutive differences, which
// telescopes to (last-first)/(n-1).
func averageDailyDelta(counts []int) float64 {
	if len(counts) < 2 {
		return 0
	}
	return float64(counts[len(counts)-1]-counts[0]) / float64(len(counts)-1)
}

// DetectSplit checks one topic for divergence: a coherence drop between
// the window halves together with multiple keyword sub-clusters among
// the members. Returns nil when the topic shows no split signal.
func (e *Engine) DetectSplit(ctx context.Context, topic common.Topic) (*common.TopicEvent, error) {
	members, err := e.store.TopicMembers(ctx, topic.ID, e.cfg.MaxCentroidMembers)
	if err != nil {
		return nil, fmt.Errorf("topic members: %w", err)
	}
	members = e.memberWindow(members)
	if len(members) < e.cfg.MinSplitMembers {
		return nil, nil
	}

	half := len(members) / 2
	first := coherence(members[:half])
	second := coherence(members[half:])
	drop := first - second
	if drop <= e.cfg.SplitCoherenceDrop {
		return nil, nil
	}

	clusters := keywordClusters(members)
	if clusters < 2 {
		return nil, nil
	}

	confidence := math.Min(0.8, 2*drop) + 0.1*float64(clusters)
	return &common.TopicEvent{
		ID:         util.NewID("evt"),
		Kind:       common.TopicSplitCandidate,
		TopicID:    topic.ID,
		Confidence: math.Min(1, confidence),
		Details: map[string]any{
			"coherence_drop": drop,
			"sub_clusters":   clusters,
		},
		DetectedAt: e.now().UTC(),
	}, nil
}

// coherence is the inverse of the variance of member discovery scores,
// squashed into (0,1]. Tight score distributions read as coherent.
func coherence(members []store.MemberArtifact) float64 {
	if len(members) == 0 {
		return 0
	}
	mean := 0.0
	for _, member := range members {
		mean += memberScore(member)
	}
	mean /= float64(len(members))

	variance := 0.0
	for _, member := range members {
		d := memberScore(member) - mean
		variance += d * d
	}
	variance /= float64(len(members))

	return 1 / (1 + variance)
}

func memberScore(member store.MemberArtifact) float64 {
	if member.Score == nil {
		return 0
	}
	return member.Score.Discovery
}

// keywordClusters greedily groups members by shared-keyword overlap and
// returns how many groups hold at least two members.
func keywordClusters(members []store.MemberArtifact) int {
	type cluster struct {
		keywords map[string]bool
		size     int
	}
	var clusters []*cluster

	for _, member := range members {
		kw := memberKeywords(member.Artifact)
		if len(kw) == 0 {
			continue
		}

		assigned := false
		for _, c := range clusters {
			if keywordOverlap(kw, c.keywords) >= 0.3 {
				for k := range kw {
					c.keywords[k] = true
				}
				c.size++
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, &cluster{keywords: kw, size: 1})
		}
	}

	count := 0
	for _, c := range clusters {
		if c.size >= 2 {
			count++
		}
	}
	return count
}

// memberKeywords picks the distinctive tokens of an artifact: unique
// title and text tokens longer than four characters, capped at 12.
func memberKeywords(artifact common.Artifact) map[string]bool {
	tokens := util.UniqueTokens(strings.TrimSpace(artifact.Title + " " + artifact.Text))
	kw := make(map[string]bool)
	for _, tok := range tokens {
		if len(tok) <= 4 {
			continue
		}
		kw[tok] = true
		if len(kw) >= 12 {
			break
		}
	}
	return kw
}

func keywordOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	return float64(shared) / float64(minLen)
}

// RunBatch recomputes centroids and runs all evolution detectors over
// the current topic set. Detected events are persisted; low-confidence
// events additionally go to the review queue.
func (e *Engine) RunBatch(ctx context.Context) (common.RunStats, error) {
	topics, err := e.store.AllTopics(ctx)
	if err != nil {
		return common.RunStats{}, fmt.Errorf("list topics: %w", err)
	}

	logger.Info("[Topics] Batch starting", "topics", len(topics))
	e.InvalidateCentroids()

	stats := common.RunStats{}
	var events []common.TopicEvent

	merges, err := e.DetectMerges(ctx, topics)
	if err != nil {
		stats.Errors++
		logger.Error("[Topics] Merge detection failed", "err", err)
	}
	events = append(events, merges...)

	for _, topic := range topics {
		stats.Processed++

		split, err := e.DetectSplit(ctx, topic)
		if err != nil {
			stats.Errors++
			logger.Error("[Topics] Split detection failed", "topic", topic.ID, "err", err)
			continue
		}
		if split != nil {
			events = append(events, *split)
		}

		growth, err := e.PredictGrowth(ctx, topic.ID)
		if err != nil {
			stats.Errors++
			logger.Error("[Topics] Growth prediction failed", "topic", topic.ID, "err", err)
			continue
		}
		logger.Debug("[Topics] Growth",
			"topic", topic.ID,
			"label", growth.Label,
			"rate", growth.DailyRate,
			"confidence", growth.Confidence)
	}

	if len(events) > 0 {
		if err := e.store.SaveTopicEvents(ctx, events); err != nil {
			stats.Errors++
			logger.Error("[Topics] Failed to save events", "count", len(events), "err", err)
		} else {
			stats.EventsEmitted = len(events)
		}

		var reviews []common.ReviewItem
		for _, event := range events {
			if event.Confidence >= e.cfg.ReviewConfidence {
				continue
			}
			reviews = append(reviews, common.ReviewItem{
				ID:          util.NewID("rev"),
				Kind:        "topic-event",
				PrimaryID:   event.TopicID,
				SecondaryID: event.RelatedTopicID,
				Similarity:  event.Confidence,
				Reasoning:   string(event.Kind),
				CreatedAt:   time.Now().UTC(),
			})
		}
		if len(reviews) > 0 {
			if err := e.store.SaveReviewItems(ctx, reviews); err != nil {
				stats.Errors++
				logger.Error("[Topics] Failed to save review items", "count", len(reviews), "err", err)
			} else {
				stats.ReviewsCreated = len(reviews)
			}
		}
	}

	logger.Info("[Topics] Batch finished",
		"topics", stats.Processed,
		"events", stats.EventsEmitted,
		"reviews", stats.ReviewsCreated,
		"errors", stats.Errors)
	return stats, nil
}
