package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxBodySize = 10 << 20 // 10MB

// HTTPClient is the lightweight fetch mode: one shared HTTP session reused
// across all targets. Connection reuse is the only shared state, so
// concurrent workers can read-share a single instance.
type HTTPClient struct {
	hc        *http.Client
	userAgent string
	logger    *zap.Logger
}

func NewHTTPClient(timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		hc:        &http.Client{Timeout: timeout},
		userAgent: userAgents[0],
		logger:    logger,
	}
}

// Fetch performs a single GET. Transport failures return an error; block
// responses return a page with Blocked set so the caller can decide whether
// the attempt is retryable.
func (c *HTTPClient) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}

	page := &Page{
		URL:        finalURL(resp, url),
		StatusCode: resp.StatusCode,
		HTML:       string(body),
	}
	if doc, err := page.Document(); err == nil {
		page.Title = doc.Find("title").First().Text()
	}
	page.Blocked = blockIndicated(page.Title, resp.StatusCode)
	if page.Blocked {
		c.logger.Warn("block response detected", zap.String("url", url), zap.Int("status", resp.StatusCode))
	}
	return page, nil
}

func finalURL(resp *http.Response, requested string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return requested
}
