// Package embedding calls an external embedding service to vectorize the
// searchable text of an analysis result.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/time/rate"

	"github.com/tphakala/imagelens/internal/errors"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures the Ollama client.
type Options struct {
	URL   string
	Model string
	// RateLimit is requests per second, 0 disables limiting
	RateLimit float64
	Timeout   time.Duration
	// HTTPClient defaults to a client with Timeout
	HTTPClient *http.Client
}

// Client talks to the Ollama /api/embed endpoint.
type Client struct {
	api     *api.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient validates options and builds a client.
func NewClient(opts Options) (*Client, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Newf("invalid embedding service URL %q", opts.URL).
			Component("embedding").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Model == "" {
		return nil, errors.Newf("embedding model not configured").
			Component("embedding").
			Category(errors.CategoryConfiguration).
			Build()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Client{
		api:     api.NewClient(base, httpClient),
		model:   opts.Model,
		limiter: limiter,
		timeout: opts.Timeout,
	}, nil
}

// Embed returns the embedding of text. An empty vector is reported as an error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("nothing to embed")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component("embedding").
				Category(errors.CategoryLimit).
				Context("operation", "rate_limiter_wait").
				Build()
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, errors.New(err).
			Component("embedding").
			Category(errors.CategoryEmbedding).
			Context("model", c.model).
			Timing("embed", time.Since(start)).
			Build()
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.Newf("embedding service returned an empty vector").
			Component("embedding").
			Category(errors.CategoryEmbedding).
			Context("model", c.model).
			Build()
	}
	return resp.Embeddings[0], nil
}
