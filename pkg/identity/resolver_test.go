package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/ai"
	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/embed/embedtest"
	"github.com/lodestar-hq/lodestar/pkg/store/storetest"
)

type stubConfirm struct {
	decision ai.MatchDecision
	err      error
	calls    int
}

func (s *stubConfirm) ConfirmMatch(ctx context.Context, a, b ai.EntityProfile, similarity float64) (ai.MatchDecision, error) {
	s.calls++
	return s.decision, s.err
}

func newResolverEngine(t *testing.T, fake *storetest.Fake, confirm ai.ConfirmClient) *Engine {
	t.Helper()
	embedder, err := embed.New(embedtest.New(64), embed.NewMemoryCache(time.Minute), embed.Config{Dimensions: 64})
	if err != nil {
		t.Fatalf("embed.New: %v", err)
	}
	engine, err := NewEngine(fake, embedder, confirm, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestFindCandidates_SortedByScore(t *testing.T) {
	engine := newResolverEngine(t, storetest.New(), nil)

	target := common.Entity{ID: "e1", Name: "Svetlana Petrova Ivanova", Description: "at Salamanca Robotics"}
	pool := []common.Entity{
		{ID: "e2", Name: "Svetlana Petrova Ivanova", Description: "at Salamanca Robotics"},
		{ID: "e3", Name: "Petrova Ivanova, Svetlana"},
		{ID: "e4", Name: "Unrelated Person", Homepage: "https://elsewhere.net"},
	}

	candidates := engine.FindCandidates(context.Background(), target, pool, 0.5, DefaultWeights())
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[i-1].Score {
			t.Fatalf("candidates not sorted descending: %f before %f",
				candidates[i-1].Score, candidates[i].Score)
		}
	}
	if candidates[0].Entity.ID != "e2" {
		t.Fatalf("expected exact duplicate e2 first, got %s", candidates[0].Entity.ID)
	}
}

func TestMerge_RicherRecordWins(t *testing.T) {
	fake := storetest.New()
	sparse := common.Entity{ID: "sparse", Name: "Svetlana Petrova Ivanova"}
	rich := common.Entity{ID: "rich", Name: "Svetlana Petrova Ivanova", Accounts: []common.Account{
		{Platform: "github", Handle: "mgo"},
		{Platform: "orcid", Handle: "0000-0002"},
	}}
	fake.Entities[sparse.ID] = sparse
	fake.Entities[rich.ID] = rich
	fake.Artifacts["a1"] = common.Artifact{ID: "a1", AuthorIDs: []string{"sparse"}}

	engine := newResolverEngine(t, fake, nil)
	if err := engine.Merge(context.Background(), sparse, rich); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if _, ok := fake.Entities["sparse"]; ok {
		t.Fatal("sparse record should have been absorbed")
	}
	survivor, ok := fake.Entities["rich"]
	if !ok {
		t.Fatal("richer record should survive the merge")
	}
	if len(survivor.Accounts) != 2 {
		t.Fatalf("expected 2 accounts on survivor, got %d", len(survivor.Accounts))
	}
	if got := fake.Artifacts["a1"].AuthorIDs[0]; got != "rich" {
		t.Fatalf("author link not re-pointed, got %s", got)
	}
}

func TestRunBatch_AutoMergesExactDuplicates(t *testing.T) {
	fake := storetest.New()
	fake.Entities["e1"] = common.Entity{ID: "e1", Name: "Svetlana Petrova Ivanova", Description: "at Salamanca Robotics"}
	fake.Entities["e2"] = common.Entity{ID: "e2", Name: "Svetlana Petrova Ivanova", Description: "at Salamanca Robotics"}

	engine := newResolverEngine(t, fake, nil)
	stats, err := engine.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if stats.Merged != 1 {
		t.Fatalf("expected 1 merge, got %d", stats.Merged)
	}
	if len(fake.Entities) != 1 {
		t.Fatalf("expected 1 surviving entity, got %d", len(fake.Entities))
	}
}

func TestRunBatch_CommonNameGoesToReview(t *testing.T) {
	fake := storetest.New()
	fake.Entities["e1"] = common.Entity{ID: "e1", Name: "David Smith", Description: "at Oxford Physics"}
	fake.Entities["e2"] = common.Entity{ID: "e2", Name: "David Smith", Description: "at Oxford Physics"}

	engine := newResolverEngine(t, fake, nil)
	stats, err := engine.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if stats.Merged != 0 {
		t.Fatalf("common first name must not auto-merge, merged %d", stats.Merged)
	}
	if stats.ReviewsCreated != 1 {
		t.Fatalf("expected 1 review item, got %d", stats.ReviewsCreated)
	}
	if len(fake.Reviews) != 1 || fake.Reviews[0].Kind != "entity-merge" {
		t.Fatalf("unexpected review items: %+v", fake.Reviews)
	}
}

func TestDecide_ConfirmationTier(t *testing.T) {
	base := common.Entity{ID: "e1", Name: "Yoshua Martin", Description: "at Salamanca Robotics"}
	other := common.Entity{ID: "e2", Name: "Yoshua Martin"}
	candidate := Candidate{Entity: other, Score: 0.80}

	cases := []struct {
		name    string
		confirm *stubConfirm
		want    action
	}{
		{"confirmed match merges", &stubConfirm{decision: ai.MatchDecision{IsSame: true, Confidence: 0.9}}, actionMerge},
		{"confirmed non-match rejects", &stubConfirm{decision: ai.MatchDecision{IsSame: false, Confidence: 0.9}}, actionReject},
		{"low confidence falls to review", &stubConfirm{decision: ai.MatchDecision{IsSame: true, Confidence: 0.4}}, actionReview},
		{"capability failure falls to review", &stubConfirm{err: errors.New("timeout")}, actionReview},
	}

	for _, tc := range cases {
		engine := newResolverEngine(t, storetest.New(), tc.confirm)
		got, _ := engine.decide(context.Background(), base, candidate)
		if got != tc.want {
			t.Fatalf("%s: got action %d, want %d", tc.name, got, tc.want)
		}
		if tc.confirm.calls != 1 {
			t.Fatalf("%s: expected 1 confirmation call, got %d", tc.name, tc.confirm.calls)
		}
	}
}

func TestDecide_NoConfirmCapabilityFallsToReview(t *testing.T) {
	engine := newResolverEngine(t, storetest.New(), nil)

	a := common.Entity{ID: "e1", Name: "Yoshua Martin"}
	candidate := Candidate{Entity: common.Entity{ID: "e2", Name: "Yoshua Martin"}, Score: 0.80}

	got, _ := engine.decide(context.Background(), a, candidate)
	if got != actionReview {
		t.Fatalf("expected review without confirmation capability, got %d", got)
	}
}

func TestNeedsManualReview(t *testing.T) {
	engine := newResolverEngine(t, storetest.New(), nil)

	cases := []struct {
		name string
		want bool
	}{
		{"Svetlana Petrova Ivanova", false},
		{"David Chen", true},
		{"Wei Zhang", true},
		{"Li", true},
		{"Tsinghua University", true},
	}
	for _, tc := range cases {
		entity := common.Entity{Name: tc.name}
		if got := engine.NeedsManualReview(entity); got != tc.want {
			t.Fatalf("NeedsManualReview(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
