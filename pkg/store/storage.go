package store

import (
	"context"
	"errors"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a mutation loses a transactional race.
// Callers retry once with fresh data, then surface an item-level error.
var ErrConflict = errors.New("store: conflict")

// SimilarArtifact pairs a candidate artifact with its embedding
// similarity to the query vector.
type SimilarArtifact struct {
	Artifact   common.Artifact
	Similarity float64
}

// MemberArtifact pairs a topic member with its score, if one exists.
type MemberArtifact struct {
	Artifact common.Artifact
	Score    *common.Score
}

// Storage is the persistence boundary for the discovery engines. Every
// mutation here is a single short transaction; the engines never hold a
// long-lived lock.
type Storage interface {
	// Artifacts.
	GetArtifact(ctx context.Context, id string) (common.Artifact, error)
	GetArtifactsByIDs(ctx context.Context, ids []string) ([]common.Artifact, error)
	ArtifactsNeedingScoring(ctx context.Context, limit int) ([]common.Artifact, error)
	ArtifactsNeedingLinking(ctx context.Context, limit int) ([]common.Artifact, error)
	MarkArtifactLinked(ctx context.Context, id string, at time.Time) error

	// SetArtifactEmbedding stores the artifact's content embedding, the
	// vector FindSimilarArtifacts searches over.
	SetArtifactEmbedding(ctx context.Context, id string, embedding []float32) error

	// FindArtifactsByIdentifier matches artifacts whose source-native
	// id equals the identifier or whose URL contains it.
	FindArtifactsByIdentifier(ctx context.Context, identifier string) ([]common.Artifact, error)

	// FindSimilarArtifacts runs a vector search over artifact
	// embeddings, excluding artifacts from the given source.
	FindSimilarArtifacts(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]SimilarArtifact, error)

	// Scores. UpsertScore overwrites atomically; recomputation is
	// always safe.
	UpsertScore(ctx context.Context, score common.Score) error
	GetScore(ctx context.Context, artifactID string) (*common.Score, error)

	// Entities. MergeEntities re-points accounts and artifact
	// author-links from duplicate to primary and deletes the
	// duplicate, all in one transaction.
	AllEntities(ctx context.Context) ([]common.Entity, error)
	GetEntitiesByIDs(ctx context.Context, ids []string) ([]common.Entity, error)
	MergeEntities(ctx context.Context, primaryID, duplicateID string) error

	// Topics.
	AllTopics(ctx context.Context) ([]common.Topic, error)
	TopicForArtifact(ctx context.Context, artifactID string) (*common.Topic, error)
	TopicMembers(ctx context.Context, topicID string, limit int) ([]MemberArtifact, error)
	TopicDailyCounts(ctx context.Context, topicID string, windowDays int) ([]int, error)
	SharedArtifactDailyCounts(ctx context.Context, topicIDA, topicIDB string, windowDays int) ([]int, error)
	SaveTopicEvents(ctx context.Context, events []common.TopicEvent) error

	// Relationships. Insert ignores duplicate (source, target, type)
	// edges and reports how many rows were actually written.
	InsertRelationships(ctx context.Context, rels []common.Relationship) (int, error)
	RelationshipsForArtifact(ctx context.Context, artifactID string, minConfidence float64) ([]common.Relationship, error)

	// Review queue. This core only creates items.
	SaveReviewItems(ctx context.Context, items []common.ReviewItem) error

	// Embedding cache entries. Expired rows read as absent.
	GetCachedEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	PutCachedEmbedding(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}
