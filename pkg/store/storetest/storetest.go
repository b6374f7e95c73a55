// Package storetest provides an in-memory Storage fake for engine
// tests. Every method can be overridden through a function field; the
// defaults serve the in-memory maps.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

type Fake struct {
	mu sync.Mutex

	Artifacts map[string]common.Artifact
	Scores    map[string]common.Score
	Entities  map[string]common.Entity
	Topics    map[string]common.Topic

	// TopicMemberships maps topic id to member artifact ids.
	TopicMemberships map[string][]string

	Relationships []common.Relationship
	Events        []common.TopicEvent
	Reviews       []common.ReviewItem
	LinkedAt      map[string]time.Time

	DailyCounts  map[string][]int
	SharedCounts map[string][]int

	// ArtifactEmbeddings holds vectors written through
	// SetArtifactEmbedding, keyed by artifact id.
	ArtifactEmbeddings map[string][]float32

	Embeddings map[string][]float32

	// Optional overrides.
	FindSimilarFn   func(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]store.SimilarArtifact, error)
	UpsertScoreFn   func(ctx context.Context, score common.Score) error
	MergeEntitiesFn func(ctx context.Context, primaryID, duplicateID string) error
}

var _ store.Storage = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Artifacts:          make(map[string]common.Artifact),
		Scores:             make(map[string]common.Score),
		Entities:           make(map[string]common.Entity),
		Topics:             make(map[string]common.Topic),
		TopicMemberships:   make(map[string][]string),
		LinkedAt:           make(map[string]time.Time),
		DailyCounts:        make(map[string][]int),
		SharedCounts:       make(map[string][]int),
		ArtifactEmbeddings: make(map[string][]float32),
		Embeddings:         make(map[string][]float32),
	}
}

func (f *Fake) GetArtifact(ctx context.Context, id string) (common.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Artifacts[id]
	if !ok {
		return common.Artifact{}, store.ErrNotFound
	}
	return a, nil
}

func (f *Fake) GetArtifactsByIDs(ctx context.Context, ids []string) ([]common.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Artifact
	for _, id := range ids {
		if a, ok := f.Artifacts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Fake) ArtifactsNeedingScoring(ctx context.Context, limit int) ([]common.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Artifact
	for id, a := range f.Artifacts {
		if _, scored := f.Scores[id]; !scored && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Fake) ArtifactsNeedingLinking(ctx context.Context, limit int) ([]common.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Artifact
	for id, a := range f.Artifacts {
		if _, linked := f.LinkedAt[id]; !linked && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Fake) MarkArtifactLinked(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Artifacts[id]; !ok {
		return store.ErrNotFound
	}
	f.LinkedAt[id] = at
	return nil
}

func (f *Fake) SetArtifactEmbedding(ctx context.Context, id string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Artifacts[id]; !ok {
		return store.ErrNotFound
	}
	f.ArtifactEmbeddings[id] = embedding
	return nil
}

func (f *Fake) FindArtifactsByIdentifier(ctx context.Context, identifier string) ([]common.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Artifact
	for _, a := range f.Artifacts {
		if a.SourceID == identifier || contains(a.URL, identifier) {
			out = append(out, a)
		}
	}
	return out, nil
}

func contains(haystack, needle string) bool {
	if needle == "" || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (f *Fake) FindSimilarArtifacts(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]store.SimilarArtifact, error) {
	if f.FindSimilarFn != nil {
		return f.FindSimilarFn(ctx, embedding, excludeSource, limit)
	}
	return nil, nil
}

func (f *Fake) UpsertScore(ctx context.Context, score common.Score) error {
	if f.UpsertScoreFn != nil {
		if err := f.UpsertScoreFn(ctx, score); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scores[score.ArtifactID] = score
	return nil
}

func (f *Fake) GetScore(ctx context.Context, artifactID string) (*common.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if score, ok := f.Scores[artifactID]; ok {
		s := score
		return &s, nil
	}
	return nil, nil
}

func (f *Fake) AllEntities(ctx context.Context) ([]common.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Entity
	for _, e := range f.Entities {
		out = append(out, e)
	}
	return out, nil
}

func (f *Fake) GetEntitiesByIDs(ctx context.Context, ids []string) ([]common.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Entity
	for _, id := range ids {
		if e, ok := f.Entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// MergeEntities mirrors the real store: accounts and author-links move
// to the primary, then the duplicate disappears.
func (f *Fake) MergeEntities(ctx context.Context, primaryID, duplicateID string) error {
	if f.MergeEntitiesFn != nil {
		return f.MergeEntitiesFn(ctx, primaryID, duplicateID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	primary, ok := f.Entities[primaryID]
	if !ok {
		return store.ErrNotFound
	}
	duplicate, ok := f.Entities[duplicateID]
	if !ok {
		return store.ErrNotFound
	}

	have := make(map[string]bool)
	for _, account := range primary.Accounts {
		have[account.Platform+"/"+account.Handle] = true
	}
	for _, account := range duplicate.Accounts {
		if !have[account.Platform+"/"+account.Handle] {
			primary.Accounts = append(primary.Accounts, account)
		}
	}
	f.Entities[primaryID] = primary
	delete(f.Entities, duplicateID)

	for id, artifact := range f.Artifacts {
		changed := false
		for i, author := range artifact.AuthorIDs {
			if author == duplicateID {
				artifact.AuthorIDs[i] = primaryID
				changed = true
			}
		}
		if changed {
			f.Artifacts[id] = artifact
		}
	}
	return nil
}

func (f *Fake) AllTopics(ctx context.Context) ([]common.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Topic
	for _, t := range f.Topics {
		out = append(out, t)
	}
	return out, nil
}

func (f *Fake) TopicForArtifact(ctx context.Context, artifactID string) (*common.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for topicID, members := range f.TopicMemberships {
		for _, id := range members {
			if id == artifactID {
				if t, ok := f.Topics[topicID]; ok {
					topic := t
					return &topic, nil
				}
			}
		}
	}
	return nil, nil
}

func (f *Fake) TopicMembers(ctx context.Context, topicID string, limit int) ([]store.MemberArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MemberArtifact
	for _, id := range f.TopicMemberships[topicID] {
		if len(out) >= limit {
			break
		}
		a, ok := f.Artifacts[id]
		if !ok {
			continue
		}
		member := store.MemberArtifact{Artifact: a}
		if score, ok := f.Scores[id]; ok {
			s := score
			member.Score = &s
		}
		out = append(out, member)
	}
	return out, nil
}

func (f *Fake) TopicDailyCounts(ctx context.Context, topicID string, windowDays int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DailyCounts[topicID], nil
}

func (f *Fake) SharedArtifactDailyCounts(ctx context.Context, topicIDA, topicIDB string, windowDays int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if counts, ok := f.SharedCounts[topicIDA+"/"+topicIDB]; ok {
		return counts, nil
	}
	return f.SharedCounts[topicIDB+"/"+topicIDA], nil
}

func (f *Fake) SaveTopicEvents(ctx context.Context, events []common.TopicEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, events...)
	return nil
}

func (f *Fake) InsertRelationships(ctx context.Context, rels []common.Relationship) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool, len(f.Relationships))
	for _, rel := range f.Relationships {
		seen[rel.SourceID+"/"+rel.TargetID+"/"+string(rel.Type)] = true
	}
	inserted := 0
	for _, rel := range rels {
		key := rel.SourceID + "/" + rel.TargetID + "/" + string(rel.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		f.Relationships = append(f.Relationships, rel)
		inserted++
	}
	return inserted, nil
}

func (f *Fake) RelationshipsForArtifact(ctx context.Context, artifactID string, minConfidence float64) ([]common.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Relationship
	for _, rel := range f.Relationships {
		if rel.Confidence < minConfidence {
			continue
		}
		if rel.SourceID == artifactID || rel.TargetID == artifactID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *Fake) SaveReviewItems(ctx context.Context, items []common.ReviewItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reviews = append(f.Reviews, items...)
	return nil
}

func (f *Fake) GetCachedEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vec, ok := f.Embeddings[key]
	return vec, ok, nil
}

func (f *Fake) PutCachedEmbedding(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Embeddings[key] = vec
	return nil
}
