// Package embedtest provides a deterministic embedding client for
// tests. Vectors are token bags: texts sharing words get high cosine
// similarity, unrelated texts get low similarity, with no network.
package embedtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/lodestar-hq/lodestar/pkg/ai"
)

// TokenBagClient implements ai.EmbeddingClient by hashing each token
// into a fixed-size bag-of-words vector.
type TokenBagClient struct {
	Dims int

	mu    sync.Mutex
	calls int
}

var _ ai.EmbeddingClient = (*TokenBagClient)(nil)

func New(dims int) *TokenBagClient {
	if dims <= 0 {
		dims = 64
	}
	return &TokenBagClient{Dims: dims}
}

// Calls reports how many provider calls were made, for cache tests.
func (c *TokenBagClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *TokenBagClient) GenerateEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	vecs, err := c.GenerateEmbeddings(ctx, [][]byte{data})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *TokenBagClient) GenerateEmbeddings(ctx context.Context, data [][]byte) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	out := make([][]float32, len(data))
	for i, text := range data {
		vec := make([]float32, c.Dims)
		for _, token := range strings.Fields(strings.ToLower(string(text))) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[int(h.Sum32())%c.Dims]++
		}
		out[i] = vec
	}
	return out, nil
}

func (c *TokenBagClient) ResetMetrics() {}

func (c *TokenBagClient) GetMetrics() ai.ModelMetrics {
	return ai.ModelMetrics{}
}
