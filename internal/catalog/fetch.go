package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Fetcher returns the HTML of a remote chat page
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads pages with a plain HTTP GET
type HTTPFetcher struct {
	client *resty.Client
}

type requestStartedAt struct{}

// NewHTTPFetcher creates a fetcher with request logging
func NewHTTPFetcher(timeout time.Duration, log zerolog.Logger) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36").
		SetHeader("Accept", "text/html,application/xhtml+xml")

	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), requestStartedAt{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		start, _ := r.Request.Context().Value(requestStartedAt{}).(time.Time)
		log.Debug().
			Str("client", "catalog").
			Int("status", r.StatusCode()).
			Str("url", r.Request.URL).
			Dur("latency", time.Since(start)).
			Msg("HTTP client request")
		return nil
	})

	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}
	return []byte(resp.String()), nil
}

// Renderer loads a page in a real browser and returns the rendered HTML
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// PageFetcher fetches pages whose model selector is built by JavaScript
type PageFetcher struct {
	renderer Renderer
}

// NewPageFetcher wraps a browser renderer as a Fetcher
func NewPageFetcher(r Renderer) *PageFetcher {
	return &PageFetcher{renderer: r}
}

func (f *PageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	html, err := f.renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}
