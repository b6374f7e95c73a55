package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lodestar-hq/lodestar/internal/util"
	"github.com/lodestar-hq/lodestar/pkg/ai"
	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/leaselock"
	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// Candidate is a potential duplicate with its weighted similarity.
type Candidate struct {
	Entity common.Entity
	Score  float64
}

// Engine reconciles duplicate entity records. Merges in the auto tier
// run immediately; the review tier goes through the optional
// confirmation capability; everything else is rejected.
type Engine struct {
	store    store.Storage
	embedder *embed.Embedder
	confirm  ai.ConfirmClient
	locks    *leaselock.Client
	cfg      Config
}

// NewEngine creates an identity resolution engine. confirm may be nil
// (review tier always creates manual review items); locks may be nil
// when a single worker runs merges.
func NewEngine(st store.Storage, embedder *embed.Embedder, confirm ai.ConfirmClient, locks *leaselock.Client, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:    st,
		embedder: embedder,
		confirm:  confirm,
		locks:    locks,
		cfg:      cfg,
	}, nil
}

// FindCandidates returns all entities from the pool whose weighted
// similarity to entity meets the threshold, sorted descending.
func (e *Engine) FindCandidates(ctx context.Context, entity common.Entity, pool []common.Entity, threshold float64, w Weights) []Candidate {
	var candidates []Candidate
	for _, other := range pool {
		if other.ID == entity.ID {
			continue
		}
		if entity.Type != "" && other.Type != "" && entity.Type != other.Type {
			continue
		}
		score := e.Similarity(ctx, entity, other, w)
		if score >= threshold {
			candidates = append(candidates, Candidate{Entity: other, Score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entity.ID < candidates[j].Entity.ID
	})
	return candidates
}

// NeedsManualReview reports whether the conservative-linking override
// applies to this entity's name.
func (e *Engine) NeedsManualReview(entity common.Entity) bool {
	name := strings.ToLower(util.NormalizeWhitespace(entity.Name))
	if len(name) < e.cfg.MinNameLength {
		return true
	}
	fields := strings.Fields(name)
	if len(fields) > 0 {
		for _, first := range e.cfg.CommonFirstNames {
			if fields[0] == first {
				return true
			}
		}
	}
	for _, token := range e.cfg.AmbiguousTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

// Merge absorbs duplicate into primary: every account and artifact
// author-link is re-pointed, then the duplicate is removed, atomically.
// The merge direction keeps the richer record: if the duplicate has
// strictly more accounts, the roles swap before merging.
func (e *Engine) Merge(ctx context.Context, primary, duplicate common.Entity) error {
	if len(duplicate.Accounts) > len(primary.Accounts) {
		primary, duplicate = duplicate, primary
	}

	doMerge := func(ctx context.Context) error {
		return util.RetryErrWithContext(ctx, 2, func(ctx context.Context) error {
			return e.store.MergeEntities(ctx, primary.ID, duplicate.ID)
		})
	}

	if e.locks == nil {
		return doMerge(ctx)
	}

	// Merges on the same pair must not interleave across workers.
	key := mergeLockKey(primary.ID, duplicate.ID)
	return e.locks.WithLease(ctx, key, leaselock.Options{TTL: 2 * time.Minute, Wait: true}, doMerge)
}

func mergeLockKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "merge:" + a + ":" + b
}

// RunBatch resolves duplicates across the full entity set. Each
// decision maps to a distinct action: merge, confirm-then-merge,
// review item, or reject.
func (e *Engine) RunBatch(ctx context.Context) (common.RunStats, error) {
	entities, err := e.store.AllEntities(ctx)
	if err != nil {
		return common.RunStats{}, fmt.Errorf("list entities: %w", err)
	}

	logger.Info("[Identity] Batch starting", "entities", len(entities))

	stats := common.RunStats{}
	absorbed := make(map[string]bool)
	var reviews []common.ReviewItem

	for i := range entities {
		entity := entities[i]
		if absorbed[entity.ID] {
			continue
		}
		stats.Processed++

		candidates := e.FindCandidates(ctx, entity, entities[i+1:], e.cfg.ManualReviewThreshold, e.cfg.Weights)
		stats.CandidatesFound += len(candidates)

		for _, candidate := range candidates {
			if absorbed[candidate.Entity.ID] || absorbed[entity.ID] {
				continue
			}

			action, reasoning := e.decide(ctx, entity, candidate)
			switch action {
			case actionMerge:
				if err := e.Merge(ctx, entity, candidate.Entity); err != nil {
					stats.Errors++
					logger.Error("[Identity] Merge failed", "primary", entity.ID, "duplicate", candidate.Entity.ID, "err", err)
					continue
				}
				stats.Merged++
				// The richer side survives; mark the other absorbed.
				if len(candidate.Entity.Accounts) > len(entity.Accounts) {
					absorbed[entity.ID] = true
				} else {
					absorbed[candidate.Entity.ID] = true
				}
				logger.Info("[Identity] Merged entities", "primary", entity.ID, "duplicate", candidate.Entity.ID, "score", candidate.Score)
			case actionReview:
				reviews = append(reviews, common.ReviewItem{
					ID:          util.NewID("rev"),
					Kind:        "entity-merge",
					PrimaryID:   entity.ID,
					SecondaryID: candidate.Entity.ID,
					Similarity:  candidate.Score,
					Reasoning:   reasoning,
					CreatedAt:   time.Now().UTC(),
				})
			case actionReject:
			}
		}
	}

	if len(reviews) > 0 {
		if err := e.store.SaveReviewItems(ctx, reviews); err != nil {
			stats.Errors++
			logger.Error("[Identity] Failed to save review items", "count", len(reviews), "err", err)
		} else {
			stats.ReviewsCreated = len(reviews)
		}
	}

	logger.Info("[Identity] Batch finished",
		"processed", stats.Processed,
		"candidates", stats.CandidatesFound,
		"merged", stats.Merged,
		"reviews", stats.ReviewsCreated,
		"errors", stats.Errors)
	return stats, nil
}

type action int

const (
	actionReject action = iota
	actionMerge
	actionReview
)

// decide maps a candidate pair to an action per the tiered policy.
func (e *Engine) decide(ctx context.Context, entity common.Entity, candidate Candidate) (action, string) {
	if e.NeedsManualReview(entity) || e.NeedsManualReview(candidate.Entity) {
		return actionReview, "conservative linking: ambiguous or common name"
	}

	if candidate.Score >= e.cfg.AutoLinkThreshold {
		return actionMerge, ""
	}
	if candidate.Score < e.cfg.ManualReviewThreshold {
		return actionReject, ""
	}

	if e.confirm == nil {
		return actionReview, "no confirmation capability configured"
	}

	decision, err := e.confirm.ConfirmMatch(ctx, profileOf(entity), profileOf(candidate.Entity), candidate.Score)
	if err != nil {
		// Timeout or provider failure reads as "unconfirmed".
		logger.Warn("[Identity] Confirmation call failed", "a", entity.ID, "b", candidate.Entity.ID, "err", err)
		return actionReview, "confirmation unavailable"
	}
	if decision.Confidence < e.cfg.MinConfirmConfidence {
		return actionReview, fmt.Sprintf("confirmation confidence %.2f below gate: %s", decision.Confidence, decision.Reasoning)
	}
	if !decision.IsSame {
		return actionReject, decision.Reasoning
	}
	return actionMerge, decision.Reasoning
}

func profileOf(entity common.Entity) ai.EntityProfile {
	accounts := make([]string, 0, len(entity.Accounts))
	for _, account := range entity.Accounts {
		accounts = append(accounts, account.Platform+"/"+account.Handle)
	}
	return ai.EntityProfile{
		Name:        entity.Name,
		Type:        entity.Type,
		Description: entity.Description,
		Homepage:    entity.Homepage,
		Accounts:    accounts,
	}
}
