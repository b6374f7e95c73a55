package embed

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/ai"
)

type stubClient struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	vecs, err := s.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubClient) ResetMetrics() {}

func (s *stubClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func newTestEmbedder(t *testing.T, client ai.EmbeddingClient) *Embedder {
	t.Helper()
	e, err := New(client, NewMemoryCache(time.Minute), Config{Dimensions: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEmbed_Deterministic(t *testing.T) {
	e := newTestEmbedder(t, &stubClient{vec: []float32{1, 2, 3, 4, 5, 6, 7, 8}})

	a := e.Embed(context.Background(), "attention mechanisms", "artifact")
	b := e.Embed(context.Background(), "attention mechanisms", "artifact")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestEmbed_CachesProviderResult(t *testing.T) {
	client := &stubClient{vec: []float32{1, 0, 0, 0, 0, 0, 0, 0}}
	e := newTestEmbedder(t, client)

	e.Embed(context.Background(), "some text", "artifact")
	e.Embed(context.Background(), "some text", "artifact")

	if client.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", client.calls)
	}
}

func TestEmbed_NamespaceSeparatesCacheEntries(t *testing.T) {
	if CacheKey("text", "a") == CacheKey("text", "b") {
		t.Fatal("cache keys must differ across namespaces")
	}
}

func TestEmbed_FallbackOnProviderError(t *testing.T) {
	e := newTestEmbedder(t, &stubClient{err: errors.New("connection refused")})

	vec := e.Embed(context.Background(), "some text", "artifact")
	if len(vec) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(vec))
	}
	if n := Norm(vec); math.Abs(n-1) > 1e-5 {
		t.Fatalf("fallback vector must be unit length, got norm %f", n)
	}

	again := e.Embed(context.Background(), "some text", "artifact")
	for i := range vec {
		if vec[i] != again[i] {
			t.Fatal("fallback vector must be deterministic")
		}
	}
}

func TestEmbed_FallbackNotCached(t *testing.T) {
	client := &stubClient{err: errors.New("down")}
	e := newTestEmbedder(t, client)

	e.Embed(context.Background(), "some text", "artifact")

	// Provider recovers; the next call must reach it.
	client.err = nil
	client.vec = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	e.Embed(context.Background(), "some text", "artifact")

	if client.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", client.calls)
	}
}

func TestEmbed_NilClientUsesFallback(t *testing.T) {
	e, err := New(nil, NewMemoryCache(time.Minute), Config{Dimensions: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec := e.Embed(context.Background(), "anything", "artifact")
	if len(vec) != 16 {
		t.Fatalf("expected 16 dimensions, got %d", len(vec))
	}
	if IsZero(vec) {
		t.Fatal("fallback vector must not be zero")
	}
}

func TestEmbedBatch_SingleProviderCallForMisses(t *testing.T) {
	client := &stubClient{vec: []float32{1, 1, 0, 0, 0, 0, 0, 0}}
	e := newTestEmbedder(t, client)

	e.Embed(context.Background(), "cached", "artifact")
	out := e.EmbedBatch(context.Background(), []string{"cached", "miss one", "miss two"}, "artifact")

	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	for i, vec := range out {
		if len(vec) != 8 {
			t.Fatalf("vector %d has %d dimensions, want 8", i, len(vec))
		}
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 provider calls (one single, one batch), got %d", client.calls)
	}
}

func TestEmbed_PadsShortProviderVector(t *testing.T) {
	e := newTestEmbedder(t, &stubClient{vec: []float32{3, 4}})

	vec := e.Embed(context.Background(), "short vector", "artifact")
	if len(vec) != 8 {
		t.Fatalf("expected padded vector of 8 dims, got %d", len(vec))
	}
	if n := Norm(vec); math.Abs(n-1) > 1e-5 {
		t.Fatalf("expected unit norm after conform, got %f", n)
	}
}
