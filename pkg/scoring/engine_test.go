package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/embed/embedtest"
	"github.com/lodestar-hq/lodestar/pkg/store/storetest"
)

func newTestEngine(t *testing.T, fake *storetest.Fake) *Engine {
	t.Helper()
	embedder, err := embed.New(embedtest.New(64), embed.NewMemoryCache(time.Minute), embed.Config{Dimensions: 64})
	if err != nil {
		t.Fatalf("embed.New: %v", err)
	}
	engine, err := NewEngine(fake, embedder, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.now = func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}
	return engine
}

func testArtifact(id, source string, typ common.ArtifactType, title string, age time.Duration) common.Artifact {
	published := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(-age)
	return common.Artifact{
		ID:          id,
		Type:        typ,
		Source:      source,
		SourceID:    id,
		Title:       title,
		Text:        "a study of stochastic gradient methods with convergence guarantees",
		PublishedAt: published,
	}
}

func TestScoreArtifact_AllSignalsInRange(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	cases := []struct {
		name     string
		artifact common.Artifact
	}{
		{"fresh arxiv preprint", testArtifact("a1", "arxiv", common.ArtifactPreprint, "Variational inference at scale", time.Hour)},
		{"old tweet", testArtifact("a2", "twitter", common.ArtifactTweet, "amazing breakthrough, must-see", 90*24*time.Hour)},
		{"github repo", testArtifact("a3", "github", common.ArtifactRepo, "fast kernels", 48*time.Hour)},
		{"unknown source", testArtifact("a4", "somewhere", common.ArtifactPost, "notes", 24*time.Hour)},
	}

	for _, tc := range cases {
		score := engine.ScoreArtifact(context.Background(), tc.artifact, nil, nil)
		for name, v := range map[string]float64{
			"novelty":   score.Novelty,
			"emergence": score.Emergence,
			"obscurity": score.Obscurity,
			"discovery": score.Discovery,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("%s: %s out of range: %f", tc.name, name, v)
			}
		}
	}
}

func TestScoreArtifact_EmptyTextHasZeroNovelty(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	artifact := testArtifact("a1", "arxiv", common.ArtifactPreprint, "", time.Hour)
	artifact.Title = ""
	artifact.Text = ""

	score := engine.ScoreArtifact(context.Background(), artifact, nil, nil)
	if score.Novelty != 0 {
		t.Fatalf("expected novelty 0 for empty text, got %f", score.Novelty)
	}
}

func TestScoreArtifact_Idempotent(t *testing.T) {
	engine := newTestEngine(t, storetest.New())
	artifact := testArtifact("a1", "arxiv", common.ArtifactPreprint, "Sparse attention", 6*time.Hour)

	first := engine.ScoreArtifact(context.Background(), artifact, nil, nil)
	second := engine.ScoreArtifact(context.Background(), artifact, nil, nil)

	if first != second {
		t.Fatalf("rescoring changed the result: %+v vs %+v", first, second)
	}
}

func TestScoreArtifact_FutureTimestampTreatedAsNow(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	future := testArtifact("a1", "arxiv", common.ArtifactPreprint, "Sparse attention", 0)
	future.PublishedAt = engine.now().Add(48 * time.Hour)
	now := testArtifact("a2", "arxiv", common.ArtifactPreprint, "Sparse attention", 0)

	futureScore := engine.ScoreArtifact(context.Background(), future, nil, nil)
	nowScore := engine.ScoreArtifact(context.Background(), now, nil, nil)

	if futureScore.Emergence != nowScore.Emergence {
		t.Fatalf("future timestamp amplified emergence: %f vs %f",
			futureScore.Emergence, nowScore.Emergence)
	}
	if futureScore.Discovery != nowScore.Discovery {
		t.Fatalf("future timestamp amplified discovery: %f vs %f",
			futureScore.Discovery, nowScore.Discovery)
	}
}

func TestObscurity_SourceOrdering(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	arxiv := engine.obscurity(testArtifact("a1", "arxiv", common.ArtifactPreprint, "t", time.Hour), nil)
	reddit := engine.obscurity(testArtifact("a2", "reddit", common.ArtifactPost, "t", time.Hour), nil)
	unknown := engine.obscurity(testArtifact("a3", "unknown-venue", common.ArtifactPost, "t", time.Hour), nil)

	if arxiv <= unknown || unknown <= reddit {
		t.Fatalf("expected arxiv > unknown > reddit, got %f / %f / %f", arxiv, unknown, reddit)
	}
}

func TestObscurity_ViralVocabularyLowers(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	plain := testArtifact("a1", "arxiv", common.ArtifactPreprint, "A quiet result", time.Hour)
	plain.Text = "plain words only"
	hyped := testArtifact("a2", "arxiv", common.ArtifactPreprint, "A revolutionary game-changing breakthrough", time.Hour)
	hyped.Text = "plain words only"

	if p, h := engine.obscurity(plain, nil), engine.obscurity(hyped, nil); h >= p {
		t.Fatalf("viral vocabulary should lower obscurity: plain %f, hyped %f", p, h)
	}
}

func TestDiscovery_DecaysWithAge(t *testing.T) {
	engine := newTestEngine(t, storetest.New())

	fresh := engine.ScoreArtifact(context.Background(),
		testArtifact("a1", "arxiv", common.ArtifactPreprint, "Sparse attention", time.Hour), nil, nil)
	stale := engine.ScoreArtifact(context.Background(),
		testArtifact("a2", "arxiv", common.ArtifactPreprint, "Sparse attention", 60*24*time.Hour), nil, nil)

	if stale.Discovery >= fresh.Discovery {
		t.Fatalf("expected decay: fresh %f, stale %f", fresh.Discovery, stale.Discovery)
	}
}

func TestRunBatch_IsolatesItemFailures(t *testing.T) {
	fake := storetest.New()
	for _, artifact := range []common.Artifact{
		testArtifact("a1", "arxiv", common.ArtifactPreprint, "First", time.Hour),
		testArtifact("a2", "arxiv", common.ArtifactPreprint, "Second", time.Hour),
		testArtifact("a3", "arxiv", common.ArtifactPreprint, "Third", time.Hour),
	} {
		fake.Artifacts[artifact.ID] = artifact
	}

	fake.UpsertScoreFn = func(ctx context.Context, score common.Score) error {
		if score.ArtifactID == "a2" {
			return errors.New("write failed")
		}
		return nil
	}

	engine := newTestEngine(t, fake)
	stats, err := engine.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if stats.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", stats.Processed)
	}
	if stats.Scored != 2 {
		t.Fatalf("expected 2 scored, got %d", stats.Scored)
	}
	if stats.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", stats.Errors)
	}
}

func TestConfig_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoveltyWeight = 0.9
	cfg.EmergenceWeight = 0.9
	cfg.ObscurityWeight = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for weights summing above 1")
	}
}
