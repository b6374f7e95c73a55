package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"

	"github.com/lodestar-hq/lodestar/pkg/ai"
	"github.com/lodestar-hq/lodestar/pkg/logger"
)

// Config controls the embedder. Validated once at construction; bad
// values are a startup error, never clamped mid-run.
type Config struct {
	// Dimensions is the fixed output vector length.
	Dimensions int `validate:"gt=0"`

	// Timeout bounds each provider call. Defaults to 30s.
	Timeout time.Duration

	// MaxTokens truncates provider inputs to the embedding model's
	// token budget. Defaults to 8000.
	MaxTokens int

	// RequestsPerSecond rate-limits provider calls. Zero disables
	// limiting.
	RequestsPerSecond float64

	// Encoding names the tiktoken encoding used for truncation.
	// Defaults to cl100k_base.
	Encoding string
}

// Embedder wraps the external embedding capability with a content-hash
// cache and a deterministic hash-vector fallback. Embed never fails:
// when the capability is unreachable or absent, downstream numeric code
// still gets a unit vector of the right length, with degraded semantic
// quality instead of a crash.
type Embedder struct {
	client  ai.EmbeddingClient
	cache   Cache
	dims    int
	timeout time.Duration
	limiter *rate.Limiter
	encoder *tiktoken.Tiktoken
	budget  int
}

// New creates an Embedder. client may be nil, in which case every
// embedding is a hash fallback vector.
func New(client ai.EmbeddingClient, cache Cache, cfg Config) (*Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embed: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cache == nil {
		return nil, fmt.Errorf("embed: cache is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	budget := cfg.MaxTokens
	if budget <= 0 {
		budget = 8000
	}
	encName := cfg.Encoding
	if encName == "" {
		encName = "cl100k_base"
	}
	encoder, err := tiktoken.GetEncoding(encName)
	if err != nil {
		return nil, fmt.Errorf("embed: load encoding %q: %w", encName, err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Embedder{
		client:  client,
		cache:   cache,
		dims:    cfg.Dimensions,
		timeout: timeout,
		limiter: limiter,
		encoder: encoder,
		budget:  budget,
	}, nil
}

// Dimensions returns the fixed output vector length.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// CacheKey returns the content-hash cache key for (text, namespace).
func CacheKey(text, namespace string) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns the L2-normalized embedding for (text, namespace).
// Deterministic for identical input within the cache TTL. Never returns
// an error: provider failure yields the hash fallback vector.
func (e *Embedder) Embed(ctx context.Context, text, namespace string) []float32 {
	key := CacheKey(text, namespace)
	if vec, ok := e.cache.Get(key); ok {
		return vec
	}

	vec, err := e.callProvider(ctx, []string{text})
	if err != nil {
		logger.Debug("[Embed] Provider unavailable, using hash fallback", "err", err)
		return e.fallbackVector(text, namespace)
	}

	out := e.conform(vec[0], text, namespace)
	e.cache.Set(key, out)
	return out
}

// EmbedBatch returns embeddings for all texts, issuing at most one
// provider batch call for the cache misses.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, namespace string) [][]float32 {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := e.cache.Get(CacheKey(text, namespace)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out
	}

	vecs, err := e.callProvider(ctx, missTexts)
	if err != nil {
		logger.Debug("[Embed] Batch provider unavailable, using hash fallback", "misses", len(missTexts), "err", err)
		for j, i := range missIdx {
			out[i] = e.fallbackVector(missTexts[j], namespace)
		}
		return out
	}

	for j, i := range missIdx {
		vec := e.conform(vecs[j], missTexts[j], namespace)
		e.cache.Set(CacheKey(missTexts[j], namespace), vec)
		out[i] = vec
	}
	return out
}

func (e *Embedder) callProvider(ctx context.Context, texts []string) ([][]float32, error) {
	if e.client == nil {
		return nil, fmt.Errorf("no embedding capability configured")
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	inputs := make([][]byte, len(texts))
	for i, text := range texts {
		inputs[i] = []byte(e.truncate(text))
	}

	rCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vecs, err := e.client.GenerateEmbeddings(rCtx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(texts))
	}
	return vecs, nil
}

func (e *Embedder) truncate(text string) string {
	tokens := e.encoder.Encode(text, nil, nil)
	if len(tokens) <= e.budget {
		return text
	}
	return e.encoder.Decode(tokens[:e.budget])
}

// conform pads or trims a provider vector to the configured dimension
// and normalizes it. Degenerate vectors fall back to the hash vector so
// cosine math downstream stays well defined.
func (e *Embedder) conform(vec []float32, text, namespace string) []float32 {
	if len(vec) == 0 || IsZero(vec) {
		return e.fallbackVector(text, namespace)
	}
	out := make([]float32, e.dims)
	copy(out, vec)
	return Normalize(out)
}

// fallbackVector derives a deterministic unit vector from the content
// hash. Semantically meaningless but stable, so downstream similarity
// code keeps functioning when the capability is down.
func (e *Embedder) fallbackVector(text, namespace string) []float32 {
	seed := sha256.Sum256([]byte(namespace + "\x00" + text))

	out := make([]float32, e.dims)
	var block [32]byte
	copy(block[:], seed[:])
	for i := 0; i < e.dims; i += 8 {
		block = sha256.Sum256(block[:])
		for j := 0; j < 8 && i+j < e.dims; j++ {
			u := binary.BigEndian.Uint32(block[j*4 : j*4+4])
			out[i+j] = float32(float64(u)/float64(math.MaxUint32)*2 - 1)
		}
	}
	if IsZero(out) {
		out[0] = 1
	}
	return Normalize(out)
}
