package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lodestar-hq/lodestar/pkg/ai"
)

// Client implements the embedding and confirmation capabilities against
// OpenAI-compatible endpoints. Embeddings and chat may use separate
// endpoints and keys.
type Client struct {
	embeddingModel string
	confirmModel   string
	timeoutMin     int

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	chatClient      *openai.Client
	embeddingClient *openai.Client
}

// Params configures a new Client.
type Params struct {
	EmbeddingModel string
	ConfirmModel   string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	// TimeoutMin bounds each request in minutes. Defaults to 2.
	TimeoutMin int
}

// New creates an OpenAI-backed capability client.
func New(params Params) *Client {
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 2
	}
	return &Client{
		embeddingModel:  params.EmbeddingModel,
		confirmModel:    params.ConfirmModel,
		timeoutMin:      timeoutMin,
		chatClient:      newClient(params.ChatURL, params.ChatKey),
		embeddingClient: newClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)
	return &client
}

func (c *Client) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated metrics counters.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the accumulated metrics counters.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
