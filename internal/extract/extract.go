// Package extract turns a fetched detail page into a normalized listing
// record. Every field is resolved by an ordered strategy list; a field with
// no hit stays empty rather than failing the record. The one exception is
// the listing id, which is the dedupe key and therefore fatal when absent.
package extract

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/fetch"
	"github.com/user/listing-harvester/internal/retry"
)

// ErrMissingListingID marks a detail page whose URL carries no numeric
// listing id. The record cannot be deduplicated and is dropped.
var ErrMissingListingID = errors.New("listing id missing from url")

// Extractor fetches detail pages under the retry policy and extracts
// records from them.
type Extractor struct {
	client fetch.Client
	policy retry.Policy
	logger *zap.Logger
	now    func() time.Time
}

func New(client fetch.Client, policy retry.Policy, logger *zap.Logger) *Extractor {
	return &Extractor{
		client: client,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Extract fetches the link and returns the normalized record.
func (e *Extractor) Extract(ctx context.Context, link domain.ListingLink) (*domain.ListingRecord, error) {
	var page *fetch.Page
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		p, ferr := e.client.Fetch(ctx, link.URL)
		if ferr != nil {
			return ferr
		}
		if p.Blocked {
			return fetch.ErrBlocked
		}
		page = p
		return nil
	}, sessionOf(e.client))
	if err != nil {
		return nil, err
	}

	rec, err := RecordFromPage(page, link, e.now())
	if err != nil {
		e.logger.Warn("dropping unrecoverable record",
			zap.String("url", link.URL), zap.Error(err))
		return nil, err
	}
	e.logger.Debug("extracted listing",
		zap.String("domain", link.Target.Domain),
		zap.String("listing_id", rec.ListingID),
		zap.String("title", rec.Title))
	return rec, nil
}

// RecordFromPage is the pure extraction step. Apart from the posted-date
// fallback and the harvest timestamp, which both take now, the result
// depends only on the page content.
func RecordFromPage(page *fetch.Page, link domain.ListingLink, now time.Time) (*domain.ListingRecord, error) {
	id := listingIDFromURL(page.URL)
	if id == "" {
		id = listingIDFromURL(link.URL)
	}
	if id == "" {
		return nil, ErrMissingListingID
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	description := qrBoilerplate.ReplaceAllString(applyStrategies(doc, descriptionStrategies), "")
	description = strings.TrimSpace(description)

	location := strings.Trim(applyStrategies(doc, locationStrategies), "() \t\n")

	rec := &domain.ListingRecord{
		ListingID:   id,
		Title:       applyStrategies(doc, titleStrategies),
		Price:       applyStrategies(doc, priceStrategies),
		Location:    location,
		URL:         link.URL,
		PostedDate:  postedDate(doc, now),
		State:       stateOf(link),
		City:        city(link, location),
		Description: description,
		PhoneNumber: phonePattern.FindString(description),
		PhotoURLs:   photoURLs(doc, page.HTML),
		Attributes:  attributes(doc),
		HarvestedAt: now,
	}
	return rec, nil
}

// postedDate parses the displayed date permissively; an unparseable or
// absent date falls back to crawl time.
func postedDate(doc *goquery.Document, now time.Time) time.Time {
	raw := applyStrategies(doc, dateStrategies)
	if raw == "" {
		return now
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return now
	}
	return t
}

func stateOf(link domain.ListingLink) string {
	if link.Target.State != "" {
		return link.Target.State
	}
	parsed, err := url.Parse(link.URL)
	if err != nil {
		return ""
	}
	host, _, _ := strings.Cut(parsed.Hostname(), ".")
	return host
}

// city resolves from the URL slug first, then the first comma segment of
// the location text, then the target subdomain.
func city(link domain.ListingLink, location string) string {
	if c := cityFromURL(link.URL); c != "" {
		return c
	}
	if before, _, found := strings.Cut(location, ","); found {
		if c := strings.TrimSpace(before); c != "" {
			return c
		}
	}
	return link.Target.Domain
}

func sessionOf(c fetch.Client) fetch.Session {
	if s, ok := c.(fetch.Session); ok {
		return s
	}
	return nil
}
