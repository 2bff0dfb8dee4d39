package extract

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/fetch"
	"github.com/user/listing-harvester/internal/retry"
)

var nyTarget = domain.CrawlTarget{State: "New York", Domain: "newyork"}

const listingURL = "https://newyork.craigslist.org/brk/cto/d/brooklyn-2015-honda-civic/7712345678.html"

var harvestTime = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

const detailHTML = `<html>
<head><title>2015 Honda Civic - cars &amp; trucks - craigslist</title></head>
<body>
<h1 class="postingtitle">2015 Honda Civic EX</h1>
<span class="price">$9,500</span>
<div class="postingtitletext"><span class="price">$9,500</span> <small>(Brooklyn, NY)</small></div>
<div class="postinginfos"><time datetime="2026-08-28T09:30:00-0400">2026-08-28 09:30</time></div>
<section id="postingbody">QR Code Link to This Post
Clean title, one owner. Call 718-555-0199 for a test drive.</section>
<div class="attrgroup">
<span>condition: <b>excellent</b></span>
<span>odometer: <b>84000</b></span>
<span>clean title</span>
</div>
<div class="gallery"><div class="swipe">
<img src="https://images.craigslist.org/00A0A_abc123_300x300.jpg">
<img src="https://images.craigslist.org/00B0B_def456_300x300.jpg">
<img src="https://images.craigslist.org/00A0A_abc123_300x300.jpg">
</div></div>
</body></html>`

func detailPage(url, html string) *fetch.Page {
	return &fetch.Page{URL: url, StatusCode: 200, HTML: html}
}

func TestRecordFromPageFullListing(t *testing.T) {
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}
	rec, err := RecordFromPage(detailPage(listingURL, detailHTML), link, harvestTime)
	require.NoError(t, err)

	assert.Equal(t, "7712345678", rec.ListingID)
	assert.Equal(t, "2015 Honda Civic EX", rec.Title)
	assert.Equal(t, "$9,500", rec.Price)
	assert.Equal(t, listingURL, rec.URL)
	assert.Equal(t, "New York", rec.State)
	assert.Equal(t, "Brooklyn", rec.City)
	assert.Equal(t, "718-555-0199", rec.PhoneNumber)
	assert.Equal(t, harvestTime, rec.HarvestedAt)

	assert.NotContains(t, rec.Description, "QR Code Link to This Post")
	assert.Contains(t, rec.Description, "Clean title, one owner")

	assert.Equal(t, 28, rec.PostedDate.Day())

	require.Len(t, rec.PhotoURLs, 2)
	assert.Equal(t, "https://images.craigslist.org/00A0A_abc123_600x450.jpg", rec.PhotoURLs[0])
	assert.Equal(t, "https://images.craigslist.org/00B0B_def456_600x450.jpg", rec.PhotoURLs[1])

	assert.Equal(t, "excellent", rec.Attributes["condition"])
	assert.Equal(t, "84000", rec.Attributes["odometer"])
	assert.Equal(t, "true", rec.Attributes["clean title"])
}

func TestRecordFromPageIsDeterministic(t *testing.T) {
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}
	a, err := RecordFromPage(detailPage(listingURL, detailHTML), link, harvestTime)
	require.NoError(t, err)
	b, err := RecordFromPage(detailPage(listingURL, detailHTML), link, harvestTime)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecordFromPageMissingFieldsStayEmpty(t *testing.T) {
	html := `<html><body><h1 class="postingtitle">Old pickup</h1></body></html>`
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}

	rec, err := RecordFromPage(detailPage(listingURL, html), link, harvestTime)
	require.NoError(t, err)

	assert.Equal(t, "Old pickup", rec.Title)
	assert.Empty(t, rec.Price)
	assert.Empty(t, rec.Description)
	assert.Empty(t, rec.PhoneNumber)
	assert.Empty(t, rec.PhotoURLs)
	assert.Nil(t, rec.Attributes)
	// Unparseable date falls back to crawl time.
	assert.Equal(t, harvestTime, rec.PostedDate)
}

func TestRecordFromPageMissingListingID(t *testing.T) {
	badURL := "https://newyork.craigslist.org/search/cta"
	link := domain.ListingLink{Target: nyTarget, URL: badURL}

	_, err := RecordFromPage(detailPage(badURL, detailHTML), link, harvestTime)
	assert.ErrorIs(t, err, ErrMissingListingID)
}

func TestRecordFromPageListingIDFromLinkFallback(t *testing.T) {
	// Redirected final URL lost the id; the discovered link still has it.
	finalURL := "https://newyork.craigslist.org/brk/cto/d/brooklyn-2015-honda-civic"
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}

	rec, err := RecordFromPage(detailPage(finalURL, detailHTML), link, harvestTime)
	require.NoError(t, err)
	assert.Equal(t, "7712345678", rec.ListingID)
}

func TestRecordFromPageTitleFromPageTitle(t *testing.T) {
	html := `<html><head><title>1999 Miata low miles - cars - craigslist</title></head><body></body></html>`
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}

	rec, err := RecordFromPage(detailPage(listingURL, html), link, harvestTime)
	require.NoError(t, err)
	assert.Equal(t, "1999 Miata low miles", rec.Title)
}

func TestPhotosFromScriptFallback(t *testing.T) {
	html := `<html><body><script>
var imgList = ["00A0A_aaa111", "00B0B_bbb222"];
</script></body></html>`
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}

	rec, err := RecordFromPage(detailPage(listingURL, html), link, harvestTime)
	require.NoError(t, err)
	require.Len(t, rec.PhotoURLs, 2)
	assert.Equal(t, "https://images.craigslist.org/00A0A_aaa111_600x450.jpg", rec.PhotoURLs[0])
	assert.Equal(t, "https://images.craigslist.org/00B0B_bbb222_600x450.jpg", rec.PhotoURLs[1])
}

func TestPhotosFromRawMarkupFallback(t *testing.T) {
	html := `<html><body><div data-img="https://images.craigslist.org/00C0C_ccc333_300x300.jpg"></div></body></html>`
	link := domain.ListingLink{Target: nyTarget, URL: listingURL}

	rec, err := RecordFromPage(detailPage(listingURL, html), link, harvestTime)
	require.NoError(t, err)
	require.Len(t, rec.PhotoURLs, 1)
	assert.Equal(t, "https://images.craigslist.org/00C0C_ccc333_600x450.jpg", rec.PhotoURLs[0])
}

func TestCityFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://newyork.craigslist.org/brk/cto/d/brooklyn-2015-honda/123.html", "Brooklyn"},
		{"https://sfbay.craigslist.org/sfc/cto/d/san-francisco-bmw-328i/456.html", "San Francisco"},
		{"https://newyork.craigslist.org/search/cta", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cityFromURL(tt.url), tt.url)
	}
}

func TestCityFallsBackToLocationThenDomain(t *testing.T) {
	noSlug := "https://newyork.craigslist.org/7712345678.html"

	html := `<html><body><div class="postinginfos"><div class="location">Astoria, NY</div></div></body></html>`
	link := domain.ListingLink{Target: nyTarget, URL: noSlug}
	rec, err := RecordFromPage(detailPage(noSlug, html), link, harvestTime)
	require.NoError(t, err)
	assert.Equal(t, "Astoria", rec.City)

	rec, err = RecordFromPage(detailPage(noSlug, "<html><body></body></html>"), link, harvestTime)
	require.NoError(t, err)
	assert.Equal(t, "newyork", rec.City)
}

func TestListingIDFromURL(t *testing.T) {
	assert.Equal(t, "7712345678", listingIDFromURL(listingURL))
	assert.Equal(t, "", listingIDFromURL("https://newyork.craigslist.org/search/cta"))
}

func TestExtractorRetriesBlockedPage(t *testing.T) {
	client := &sequenceClient{responses: []*fetch.Page{
		{URL: listingURL, StatusCode: 403, Blocked: true},
		detailPage(listingURL, detailHTML),
	}}
	e := New(client, fastPolicy(3), zap.NewNop())

	link := domain.ListingLink{Target: nyTarget, URL: listingURL}
	rec, err := e.Extract(context.Background(), link)

	require.NoError(t, err)
	assert.Equal(t, "7712345678", rec.ListingID)
	assert.Equal(t, 2, client.calls)
}

func TestExtractorGivesUpAfterRetries(t *testing.T) {
	blocked := &fetch.Page{URL: listingURL, StatusCode: 403, Blocked: true}
	client := &sequenceClient{responses: []*fetch.Page{blocked, blocked, blocked}}
	e := New(client, fastPolicy(3), zap.NewNop())

	link := domain.ListingLink{Target: nyTarget, URL: listingURL}
	_, err := e.Extract(context.Background(), link)

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, fetch.ErrBlocked)
}

type sequenceClient struct {
	responses []*fetch.Page
	calls     int
}

func (c *sequenceClient) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	if c.calls >= len(c.responses) {
		return nil, fmt.Errorf("no response %d for %s", c.calls, url)
	}
	page := c.responses[c.calls]
	c.calls++
	return page, nil
}

func fastPolicy(maxAttempts int) retry.Policy {
	p := retry.New(maxAttempts)
	p.JitterMin = 0
	p.JitterMax = 0
	return p
}
