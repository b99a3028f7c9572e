// Package openai implements the ai.Completer interface against any
// OpenAI-compatible chat completion endpoint.
package openai

import (
	"math"
	"sync"

	"github.com/signalhouse/magpie/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client is an OpenAI-backed completion client.
//
// A Client should be created using NewClient.
type Client struct {
	model   string
	baseURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Chat *openai.Client
}

// NewClientParams defines the configuration parameters for creating a
// new Client.
//
// Model is the default model used when a request does not override it.
// BaseURL may point at any OpenAI-compatible server; empty means the
// official API.
type NewClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewClient creates and returns a new Client configured with the
// provided parameters.
//
// Example:
//
//	client := openai.NewClient(openai.NewClientParams{
//		Model:  "gpt-4o-mini",
//		APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
func NewClient(params NewClientParams) *Client {
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}

	chat := openai.NewClient(options...)

	return &Client{
		model:   params.Model,
		baseURL: params.BaseURL,
		Chat:    &chat,
	}
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics
// since the last reset.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *Client) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs

	if c.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(c.metrics.TotalTokens) * 1000.0) / float64(c.metrics.DurationMs)
		c.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
