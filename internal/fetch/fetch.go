// Package fetch abstracts "get a page" behind a single contract with two
// implementations: a shared HTTP session for cheap high-concurrency crawls
// and a per-target browser session for rate-sensitive sites.
package fetch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ErrBlocked marks a response that was served but carried an
// anti-automation challenge instead of content.
var ErrBlocked = errors.New("blocked by anti-automation challenge")

// Page is the opaque result of one fetch. It is owned by the call site and
// discarded after extraction for that page completes.
type Page struct {
	URL        string
	StatusCode int
	Title      string
	HTML       string
	Blocked    bool

	mu  sync.Mutex
	doc *goquery.Document
}

// Document parses the page markup once and caches the result.
func (p *Page) Document() (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return doc, nil
}

// Client fetches a single page. A failed transport returns an error; a
// served anti-automation challenge returns a page with Blocked set.
type Client interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Session is a Client whose underlying connection state can be discarded
// and rebuilt, used when a block response indicates the session is burned.
type Session interface {
	Client
	Rotate(ctx context.Context) error
	Close()
}

// userAgents is a fixed pool of modern desktop identities; browser sessions
// pick one at random per session.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// blockIndicated matches the known block signatures: a challenge page title
// or an HTTP 403-equivalent.
func blockIndicated(title string, statusCode int) bool {
	if statusCode == 403 {
		return true
	}
	lower := strings.ToLower(title)
	return strings.Contains(lower, "blocked") || strings.Contains(title, "403")
}
