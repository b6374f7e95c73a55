package relations

import (
	"context"
	"testing"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/embed/embedtest"
	"github.com/lodestar-hq/lodestar/pkg/store"
	"github.com/lodestar-hq/lodestar/pkg/store/storetest"
)

func newTestEngine(t *testing.T, fake *storetest.Fake) *Engine {
	t.Helper()
	embedder, err := embed.New(embedtest.New(64), embed.NewMemoryCache(time.Minute), embed.Config{Dimensions: 64})
	if err != nil {
		t.Fatalf("embed.New: %v", err)
	}
	engine, err := NewEngine(fake, embedder, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestRelationTypeFor(t *testing.T) {
	cases := []struct {
		source   common.ArtifactType
		target   common.ArtifactType
		semantic bool
		want     common.RelationType
	}{
		{common.ArtifactTweet, common.ArtifactPreprint, false, common.RelationReference},
		{common.ArtifactPost, common.ArtifactRepo, false, common.RelationReference},
		{common.ArtifactRepo, common.ArtifactPreprint, false, common.RelationImplement},
		{common.ArtifactPreprint, common.ArtifactPreprint, false, common.RelationCite},
		{common.ArtifactPreprint, common.ArtifactRepo, false, common.RelationMention},
		{common.ArtifactTweet, common.ArtifactPreprint, true, common.RelationDiscuss},
		{common.ArtifactPreprint, common.ArtifactPreprint, true, common.RelationRelated},
		{common.ArtifactRepo, common.ArtifactTweet, true, common.RelationRelated},
	}
	for _, tc := range cases {
		got := relationTypeFor(tc.source, tc.target, tc.semantic)
		if got != tc.want {
			t.Fatalf("relationTypeFor(%s, %s, %v) = %s, want %s",
				tc.source, tc.target, tc.semantic, got, tc.want)
		}
	}
}

func TestDetectRelationships_IdentifierMatch(t *testing.T) {
	fake := storetest.New()
	fake.Artifacts["paper"] = common.Artifact{
		ID:       "paper",
		Type:     common.ArtifactPreprint,
		Source:   "arxiv",
		SourceID: "2403.12345",
	}

	engine := newTestEngine(t, fake)
	tweet := common.Artifact{
		ID:     "tweet",
		Type:   common.ArtifactTweet,
		Source: "twitter",
		Text:   "new results in arXiv:2403.12345, thread below",
	}

	rels, err := engine.DetectRelationships(context.Background(), tweet)
	if err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	rel := rels[0]
	if rel.SourceID != "tweet" || rel.TargetID != "paper" {
		t.Fatalf("unexpected edge %s -> %s", rel.SourceID, rel.TargetID)
	}
	if rel.Type != common.RelationReference {
		t.Fatalf("expected reference, got %s", rel.Type)
	}
	if rel.Method != common.MethodIDMatch {
		t.Fatalf("expected id-match, got %s", rel.Method)
	}
	if rel.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %f", rel.Confidence)
	}
	if rel.Metadata["identifier"] != "2403.12345" {
		t.Fatalf("missing identifier metadata: %v", rel.Metadata)
	}
}

func TestDetectRelationships_RepoMatchUsesURLMethod(t *testing.T) {
	fake := storetest.New()
	fake.Artifacts["repo"] = common.Artifact{
		ID:     "repo",
		Type:   common.ArtifactRepo,
		Source: "github",
		URL:    "https://github.com/karpathy/nanoGPT",
	}

	engine := newTestEngine(t, fake)
	post := common.Artifact{
		ID:     "post",
		Type:   common.ArtifactPost,
		Source: "reddit",
		Text:   "code lives at github.com/karpathy/nanoGPT",
	}

	rels, err := engine.DetectRelationships(context.Background(), post)
	if err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels[0].Method != common.MethodURLMatch {
		t.Fatalf("expected url-match, got %s", rels[0].Method)
	}
	if rels[0].Confidence != 0.90 {
		t.Fatalf("expected confidence 0.90, got %f", rels[0].Confidence)
	}
}

func TestDetectRelationships_SemanticThresholdAndTopK(t *testing.T) {
	fake := storetest.New()
	fake.FindSimilarFn = func(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]store.SimilarArtifact, error) {
		return []store.SimilarArtifact{
			{Artifact: common.Artifact{ID: "p1", Type: common.ArtifactPreprint, Source: "arxiv"}, Similarity: 0.92},
			{Artifact: common.Artifact{ID: "p2", Type: common.ArtifactPreprint, Source: "arxiv"}, Similarity: 0.85},
			{Artifact: common.Artifact{ID: "p3", Type: common.ArtifactPreprint, Source: "arxiv"}, Similarity: 0.55},
		}, nil
	}

	engine := newTestEngine(t, fake)
	tweet := common.Artifact{
		ID:     "tweet",
		Type:   common.ArtifactTweet,
		Source: "twitter",
		Text:   "interesting direction for sparse attention",
	}

	rels, err := engine.DetectRelationships(context.Background(), tweet)
	if err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("expected 2 edges above threshold, got %d", len(rels))
	}
	for _, rel := range rels {
		if rel.Type != common.RelationDiscuss {
			t.Fatalf("social semantic edge should be discuss, got %s", rel.Type)
		}
		if rel.Method != common.MethodSemantic {
			t.Fatalf("expected semantic method, got %s", rel.Method)
		}
		if rel.Confidence < 0.80 {
			t.Fatalf("edge below similarity floor kept: %f", rel.Confidence)
		}
	}
}

func TestDetectRelationships_RejectsSelfEdges(t *testing.T) {
	fake := storetest.New()
	// The artifact cites its own identifier and shows up in its own
	// similarity results.
	fake.Artifacts["paper"] = common.Artifact{
		ID:       "paper",
		Type:     common.ArtifactPreprint,
		Source:   "arxiv",
		SourceID: "2403.12345",
	}
	fake.FindSimilarFn = func(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]store.SimilarArtifact, error) {
		return []store.SimilarArtifact{
			{Artifact: common.Artifact{ID: "paper", Type: common.ArtifactPreprint, Source: "arxiv"}, Similarity: 0.99},
		}, nil
	}

	engine := newTestEngine(t, fake)
	paper := common.Artifact{
		ID:       "paper",
		Type:     common.ArtifactPreprint,
		Source:   "arxiv",
		SourceID: "2403.12345",
		Text:     "this work extends arXiv:2403.12345",
	}

	rels, err := engine.DetectRelationships(context.Background(), paper)
	if err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("expected no self-edges, got %v", rels)
	}
}

func TestDetectRelationships_PersistsArtifactEmbedding(t *testing.T) {
	fake := storetest.New()
	fake.Artifacts["tweet"] = common.Artifact{
		ID:     "tweet",
		Type:   common.ArtifactTweet,
		Source: "twitter",
		Text:   "interesting direction for sparse attention",
	}

	engine := newTestEngine(t, fake)
	if _, err := engine.DetectRelationships(context.Background(), fake.Artifacts["tweet"]); err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}

	vec, ok := fake.ArtifactEmbeddings["tweet"]
	if !ok || len(vec) == 0 {
		t.Fatal("expected the artifact embedding to be persisted for future similarity searches")
	}
}

func TestDetectRelationships_NoEmbeddingForEmptyText(t *testing.T) {
	fake := storetest.New()
	fake.Artifacts["stub"] = common.Artifact{
		ID:     "stub",
		Type:   common.ArtifactPost,
		Source: "reddit",
	}

	engine := newTestEngine(t, fake)
	if _, err := engine.DetectRelationships(context.Background(), fake.Artifacts["stub"]); err != nil {
		t.Fatalf("DetectRelationships: %v", err)
	}
	if _, ok := fake.ArtifactEmbeddings["stub"]; ok {
		t.Fatal("text-less artifacts must not write an embedding")
	}
}

func TestRunBatch_LinksAndMarks(t *testing.T) {
	fake := storetest.New()
	fake.Artifacts["paper"] = common.Artifact{
		ID:       "paper",
		Type:     common.ArtifactPreprint,
		Source:   "arxiv",
		SourceID: "2403.12345",
	}
	fake.Artifacts["tweet"] = common.Artifact{
		ID:     "tweet",
		Type:   common.ArtifactTweet,
		Source: "twitter",
		Text:   "great paper arXiv:2403.12345",
	}

	engine := newTestEngine(t, fake)
	stats, err := engine.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if stats.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", stats.Processed)
	}
	if stats.Linked != 1 {
		t.Fatalf("expected 1 edge, got %d", stats.Linked)
	}
	if len(fake.LinkedAt) != 2 {
		t.Fatalf("every artifact should be marked linked, got %d", len(fake.LinkedAt))
	}
	if len(fake.Relationships) != 1 {
		t.Fatalf("expected 1 stored relationship, got %d", len(fake.Relationships))
	}
	if _, ok := fake.ArtifactEmbeddings["tweet"]; !ok {
		t.Fatal("linking should persist the tweet's embedding")
	}
}
