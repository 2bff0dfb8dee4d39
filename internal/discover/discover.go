// Package discover walks a target's paginated listing index and collects
// detail-page links. Page structures change between site generations, so
// every lookup runs an ordered list of strategies and takes the first that
// yields anything.
package discover

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/fetch"
	"github.com/user/listing-harvester/internal/retry"
)

// linkSelectors covers the known index-page layout generations, newest
// first. The attribute-match selector at the end is the structural last
// resort before the raw-markup scan.
var linkSelectors = []string{
	".cl-search-result .titlestring a",
	".cl-search-result a.posting-title",
	".gallery-card a.posting-title",
	".cl-static-search-result a",
	"li.result-row a.result-title",
	"a.titlestring",
	"a.hdrlnk",
	".result-title",
	"a[href*='/d/']",
}

// nextPageSelectors mirrors the link-extraction fallback order.
var nextPageSelectors = []string{
	".cl-pagination a.cl-page-next",
	".cl-pagination a.next",
	".paginator a.next",
	".paginator a.nextpage",
	"a.button.next",
	"a[title='next page']",
	"a[rel='next']",
	"a.next-page",
}

var (
	rawLinkPattern = regexp.MustCompile(`href="(https://[^"]+\.craigslist\.org/[^"]+/d/[^"]+)"`)
	rawNextPattern = regexp.MustCompile(`(?i)href="([^"]+)"[^>]*>\s*(?:next|&gt;|next page)`)
)

// PaceFunc is called between page turns; sequential mode uses it to enforce
// the inter-request pause.
type PaceFunc func(ctx context.Context) error

// Discoverer collects the unique detail-page links of one target.
type Discoverer struct {
	client   fetch.Client
	policy   retry.Policy
	logger   *zap.Logger
	maxPages int
	maxLinks int
	pace     PaceFunc
	onPage   func()
}

func New(client fetch.Client, policy retry.Policy, maxPages, maxLinks int, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		client:   client,
		policy:   policy,
		logger:   logger,
		maxPages: maxPages,
		maxLinks: maxLinks,
	}
}

// WithPacing sets the delay hook applied between page turns.
func (d *Discoverer) WithPacing(pace PaceFunc) *Discoverer {
	d.pace = pace
	return d
}

// WithPageHook sets a hook invoked once per successfully fetched index page.
func (d *Discoverer) WithPageHook(fn func()) *Discoverer {
	d.onPage = fn
	return d
}

// Discover walks the target's index pages and returns the deduplicated link
// set. A page failure after retries truncates discovery at the last
// successful page; the error is non-nil only when no page succeeded.
func (d *Discoverer) Discover(ctx context.Context, target domain.CrawlTarget) ([]domain.ListingLink, error) {
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var links []domain.ListingLink

	current := target.SearchURL()
	for pageNum := 1; current != "" && pageNum <= d.maxPages; pageNum++ {
		if visited[current] {
			d.logger.Warn("pagination cycle detected, stopping",
				zap.String("domain", target.Domain), zap.String("url", current))
			break
		}
		visited[current] = true

		var page *fetch.Page
		err := d.policy.Do(ctx, func(ctx context.Context) error {
			p, ferr := d.client.Fetch(ctx, current)
			if ferr != nil {
				return ferr
			}
			if p.Blocked {
				return fetch.ErrBlocked
			}
			page = p
			return nil
		}, sessionOf(d.client))
		if err != nil {
			if len(links) == 0 {
				return nil, err
			}
			d.logger.Warn("index page failed after retries, truncating discovery",
				zap.String("domain", target.Domain), zap.Int("page", pageNum), zap.Error(err))
			break
		}
		if d.onPage != nil {
			d.onPage()
		}

		fresh := d.extractLinks(page, seen)
		for _, u := range fresh {
			links = append(links, domain.ListingLink{Target: target, URL: u})
			if d.maxLinks > 0 && len(links) >= d.maxLinks {
				d.logger.Info("link cap reached",
					zap.String("domain", target.Domain), zap.Int("links", len(links)))
				return links, nil
			}
		}
		d.logger.Info("index page processed",
			zap.String("domain", target.Domain), zap.Int("page", pageNum),
			zap.Int("new_links", len(fresh)), zap.Int("total_links", len(links)))

		next := findNextPage(page, current)
		if next == "" || next == current {
			break
		}
		current = next

		if d.pace != nil {
			if err := d.pace(ctx); err != nil {
				break
			}
		}
	}
	return links, nil
}

// extractLinks runs the selector strategies in order, taking the first that
// yields at least one new link, then falls back to a raw-markup scan.
func (d *Discoverer) extractLinks(page *fetch.Page, seen map[string]bool) []string {
	var found []string
	doc, err := page.Document()
	if err == nil {
		for _, selector := range linkSelectors {
			found = collectHrefs(doc, selector, page.URL, seen)
			if len(found) > 0 {
				break
			}
		}
	}
	if len(found) == 0 {
		for _, m := range rawLinkPattern.FindAllStringSubmatch(page.HTML, -1) {
			u := m[1]
			if !seen[u] {
				seen[u] = true
				found = append(found, u)
			}
		}
	}
	return found
}

func collectHrefs(doc *goquery.Document, selector, base string, seen map[string]bool) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := absoluteURL(base, href)
		if abs == "" || !strings.Contains(abs, ".craigslist.org") || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}

// findNextPage locates the next index page: structural selectors first,
// then any anchor that reads like a next-page control, then a raw scan.
func findNextPage(page *fetch.Page, current string) string {
	doc, err := page.Document()
	if err == nil {
		for _, selector := range nextPageSelectors {
			if href, ok := doc.Find(selector).First().Attr("href"); ok {
				if abs := absoluteURL(current, href); abs != "" && abs != current {
					return abs
				}
			}
		}

		var next string
		doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			class, _ := s.Attr("class")
			if text != "next" && text != ">" && !strings.Contains(text, "next page") && !strings.Contains(class, "next") {
				return true
			}
			if href, ok := s.Attr("href"); ok {
				if abs := absoluteURL(current, href); abs != "" && abs != current {
					next = abs
					return false
				}
			}
			return true
		})
		if next != "" {
			return next
		}
	}

	if m := rawNextPattern.FindStringSubmatch(page.HTML); m != nil {
		if abs := absoluteURL(current, m[1]); abs != "" && abs != current {
			return abs
		}
	}
	return ""
}

func absoluteURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	rel, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(rel).String()
}

func sessionOf(c fetch.Client) fetch.Session {
	if s, ok := c.(fetch.Session); ok {
		return s
	}
	return nil
}
