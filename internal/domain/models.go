package domain

import (
	"fmt"
	"time"
)

// CrawlTarget is one crawlable site/region pairing. Targets are loaded from
// the registry at startup and never mutated.
type CrawlTarget struct {
	State  string `json:"state"`
	Domain string `json:"domain"`
}

// SearchURL returns the listing-index entry point for the target.
func (t CrawlTarget) SearchURL() string {
	return fmt.Sprintf("https://%s.craigslist.org/search/cta?bundleDuplicates=1&hasPic=1&postedToday=1", t.Domain)
}

// ListingLink is a detail-page URL discovered under a target. Produced by
// discovery, consumed exactly once by extraction.
type ListingLink struct {
	Target CrawlTarget
	URL    string
}

// ListingRecord is the normalized listing entity. Uniqueness is
// (Target.Domain, ListingID); a later record with the same key replaces the
// earlier one, photo set included.
type ListingRecord struct {
	ListingID   string            `json:"listing_id"`
	Title       string            `json:"title"`
	Price       string            `json:"price"`
	Location    string            `json:"location"`
	URL         string            `json:"url"`
	PostedDate  time.Time         `json:"posted_date"`
	State       string            `json:"state"`
	City        string            `json:"city"`
	Description string            `json:"description"`
	PhoneNumber string            `json:"phone_number"`
	PhotoURLs   []string          `json:"photo_urls"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	HarvestedAt time.Time         `json:"timestamp"`
}

// DomainStatus is the per-target lifecycle. It never regresses once
// terminal.
type DomainStatus string

const (
	StatusPending    DomainStatus = "pending"
	StatusInProgress DomainStatus = "in_progress"
	StatusCompleted  DomainStatus = "completed"
	StatusFailed     DomainStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s DomainStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TargetResult is the finalized outcome for one target.
type TargetResult struct {
	Target      CrawlTarget     `json:"-"`
	Domain      string          `json:"domain"`
	State       string          `json:"state"`
	Status      DomainStatus    `json:"status"`
	Listings    []ListingRecord `json:"listings"`
	Count       int             `json:"count"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"timestamp"`
}

// RunResult is the immutable output of one harvest run, one entry per
// dispatched target in dispatch order.
type RunResult struct {
	Results []TargetResult `json:"results"`
}

// Completed counts targets that finished with at least one record.
func (r *RunResult) Completed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// Failed counts targets that finished without a usable record set.
func (r *RunResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}
