package relations

import (
	"context"
	"fmt"
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

// Engine detects relationships between artifacts through identifier
// extraction and embedding similarity.
type Engine struct {
	store    store.Storage
	embedder *embed.Embedder
	cfg      Config
}

// NewEngine creates a relationship detection engine.
func NewEngine(st store.Storage, embedder *embed.Embedder, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: st, embedder: embedder, cfg: cfg}, nil
}

// artifactClass folds artifact types into the three buckets the type
// matrix works on.
func artifactClass(t common.ArtifactType) string {
	switch t {
	case common.ArtifactPreprint:
		return "paper"
	case common.ArtifactRepo, common.ArtifactRelease:
		return "code"
	default:
		return "social"
	}
}

// relationTypeFor infers an edge type from the source and target
// classes. Identifier-based edges carry the strong types; semantic
// edges soften to discuss/related.
func relationTypeFor(source, target common.ArtifactType, semantic bool) common.RelationType {
	src := artifactClass(source)
	dst := artifactClass(target)

	if semantic {
		if src == "social" {
			return common.RelationDiscuss
		}
		return common.RelationRelated
	}

	switch {
	case src == "social" && (dst == "paper" || dst == "code"):
		return common.RelationReference
	case src == "code" && dst == "paper":
		return common.RelationImplement
	case src == "paper" && dst == "paper":
		return common.RelationCite
	default:
		return common.RelationMention
	}
}

// DetectRelationships runs both detectors over one artifact and
// returns the deduplicated edge set. Nothing is persisted here.
func (e *Engine) DetectRelationships(ctx context.Context, artifact common.Artifact) ([]common.Relationship, error) {
	edges := make(map[string]common.Relationship)

	addEdge := func(rel common.Relationship) {
		if rel.SourceID == rel.TargetID {
			return
		}
		key := rel.SourceID + "\x00" + rel.TargetID + "\x00" + string(rel.Type)
		if existing, ok := edges[key]; ok && existing.Confidence >= rel.Confidence {
			return
		}
		edges[key] = rel
	}

	if err := e.detectByIdentifier(ctx, artifact, addEdge); err != nil {
		return nil, err
	}
	if err := e.detectBySimilarity(ctx, artifact, addEdge); err != nil {
		return nil, err
	}

	out := make([]common.Relationship, 0, len(edges))
	for _, rel := range edges {
		out = append(out, rel)
	}
	return out, nil
}

func (e *Engine) detectByIdentifier(ctx context.Context, artifact common.Artifact, addEdge func(common.Relationship)) error {
	scan := strings.Join([]string{artifact.Title, artifact.Text, artifact.URL}, " ")

	for _, identifier := range ExtractIdentifiers(scan) {
		targets, err := e.store.FindArtifactsByIdentifier(ctx, identifier.Value)
		if err != nil {
			return fmt.Errorf("identifier lookup %q: %w", identifier.Value, err)
		}

		confidence := e.cfg.IDMatchConfidence
		method := common.MethodIDMatch
		if identifier.Kind == IdentifierRepo {
			confidence = e.cfg.RepoMatchConfidence
			method = common.MethodURLMatch
		}

		for _, target := range targets {
			if target.ID == artifact.ID {
				continue
			}
			addEdge(common.Relationship{
				SourceID:   artifact.ID,
				TargetID:   target.ID,
				Type:       relationTypeFor(artifact.Type, target.Type, false),
				Confidence: confidence,
				Method:     method,
				Metadata: map[string]any{
					"identifier":      identifier.Value,
					"identifier_kind": string(identifier.Kind),
				},
			})
		}
	}
	return nil
}

func (e *Engine) detectBySimilarity(ctx context.Context, artifact common.Artifact, addEdge func(common.Relationship)) error {
	text := strings.TrimSpace(artifact.Title + " " + artifact.Text)
	if text == "" {
		return nil
	}

	vec := e.embedder.Embed(ctx, text, "artifact")

	// Persist the vector so this artifact is a similarity target for
	// later linking passes. A failed write leaves the in-memory vector
	// usable; the next pass writes again.
	if err := e.store.SetArtifactEmbedding(ctx, artifact.ID, vec); err != nil {
		logger.Warn("[Relations] Failed to store artifact embedding", "artifact", artifact.ID, "err", err)
	}

	similar, err := e.store.FindSimilarArtifacts(ctx, vec, artifact.Source, e.cfg.TopK)
	if err != nil {
		return fmt.Errorf("similarity search: %w", err)
	}

	kept := 0
	for _, candidate := range similar {
		if kept >= e.cfg.TopK {
			break
		}
		if candidate.Similarity < e.cfg.MinSimilarity {
			continue
		}
		if candidate.Artifact.ID == artifact.ID {
			continue
		}
		kept++
		addEdge(common.Relationship{
			SourceID:   artifact.ID,
			TargetID:   candidate.Artifact.ID,
			Type:       relationTypeFor(artifact.Type, candidate.Artifact.Type, true),
			Confidence: candidate.Similarity,
			Method:     common.MethodSemantic,
			Metadata: map[string]any{
				"similarity": candidate.Similarity,
			},
		})
	}
	return nil
}

// RunBatch links every artifact the store reports as unlinked. One
// failing artifact is logged and skipped; the batch never aborts.
func (e *Engine) RunBatch(ctx context.Context) (common.RunStats, error) {
	artifacts, err := e.store.ArtifactsNeedingLinking(ctx, e.cfg.BatchSize)
	if err != nil {
		return common.RunStats{}, fmt.Errorf("list artifacts needing linking: %w", err)
	}

	logger.Info("[Relations] Batch starting", "artifacts", len(artifacts))

	var mu sync.Mutex
	stats := common.RunStats{}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Workers)

	for _, artifact := range artifacts {
		a := artifact
		eg.Go(func() error {
			inserted, err := e.linkOne(gCtx, a)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			if err != nil {
				stats.Errors++
				logger.Error("[Relations] Artifact failed", "artifact", a.ID, "err", err)
			} else {
				stats.Linked += inserted
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}

	logger.Info("[Relations] Batch finished", "processed", stats.Processed, "edges", stats.Linked, "errors", stats.Errors)
	return stats, nil
}

func (e *Engine) linkOne(ctx context.Context, artifact common.Artifact) (int, error) {
	rels, err := e.DetectRelationships(ctx, artifact)
	if err != nil {
		return 0, err
	}

	inserted := 0
	if len(rels) > 0 {
		// Duplicate (source, target, type) edges are ignored by the
		// store, so re-linking after a partial failure is safe.
		inserted, err = e.store.InsertRelationships(ctx, rels)
		if err != nil {
			return 0, fmt.Errorf("insert relationships: %w", err)
		}
	}

	err = util.RetryErrWithContext(ctx, 2, func(ctx context.Context) error {
		return e.store.MarkArtifactLinked(ctx, artifact.ID, time.Now().UTC())
	})
	if err != nil {
		return inserted, fmt.Errorf("mark linked: %w", err)
	}
	return inserted, nil
}
