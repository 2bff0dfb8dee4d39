package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/listing-harvester/internal/domain"
)

var (
	targetNY = domain.CrawlTarget{State: "New York", Domain: "newyork"}
	targetSF = domain.CrawlTarget{State: "California", Domain: "sfbay"}
)

func record(id, title string, photos ...string) domain.ListingRecord {
	return domain.ListingRecord{ListingID: id, Title: title, PhotoURLs: photos}
}

func TestAggregatorStartsAllPending(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY, targetSF})
	run := agg.Result()

	require.Len(t, run.Results, 2)
	for _, res := range run.Results {
		assert.Equal(t, domain.StatusPending, res.Status)
		assert.Zero(t, res.Count)
	}
}

func TestAggregatorLifecycle(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})

	agg.Start(targetNY)
	assert.Equal(t, domain.StatusInProgress, agg.Result().Results[0].Status)

	agg.Add(targetNY, record("1", "civic"))
	status := agg.Finish(targetNY, nil)
	assert.Equal(t, domain.StatusCompleted, status)

	res := agg.Result().Results[0]
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.Error)
	assert.False(t, res.CompletedAt.IsZero())
}

func TestAggregatorFailsWithoutRecords(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Start(targetNY)

	status := agg.Finish(targetNY, errors.New("discovery timed out"))
	assert.Equal(t, domain.StatusFailed, status)
	assert.Equal(t, "discovery timed out", agg.Result().Results[0].Error)
}

func TestAggregatorFailsEmptyWithDefaultReason(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Start(targetNY)

	status := agg.Finish(targetNY, nil)
	assert.Equal(t, domain.StatusFailed, status)
	assert.Equal(t, "no listings found", agg.Result().Results[0].Error)
}

func TestAggregatorPartialResultsCountAsCompleted(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Start(targetNY)
	agg.Add(targetNY, record("1", "civic"))

	// One record survived even though the target later errored.
	status := agg.Finish(targetNY, errors.New("page 3 failed"))
	assert.Equal(t, domain.StatusCompleted, status)
}

func TestAggregatorTerminalStatusNeverRegresses(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Start(targetNY)
	agg.Add(targetNY, record("1", "civic"))
	require.Equal(t, domain.StatusCompleted, agg.Finish(targetNY, nil))

	agg.Start(targetNY)
	assert.Equal(t, domain.StatusCompleted, agg.Result().Results[0].Status)

	status := agg.Finish(targetNY, errors.New("late failure"))
	assert.Equal(t, domain.StatusCompleted, status)
	assert.Empty(t, agg.Result().Results[0].Error)
}

func TestAggregatorDuplicateKeyReplacesInPlace(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Start(targetNY)

	agg.Add(targetNY, record("1", "civic", "photo-a.jpg", "photo-b.jpg"))
	agg.Add(targetNY, record("2", "accord"))
	agg.Add(targetNY, record("1", "civic relisted", "photo-c.jpg"))

	res := agg.Result().Results[0]
	require.Equal(t, 2, res.Count)

	// The replacement keeps the original slot and takes the new photo set
	// wholesale.
	assert.Equal(t, "1", res.Listings[0].ListingID)
	assert.Equal(t, "civic relisted", res.Listings[0].Title)
	assert.Equal(t, []string{"photo-c.jpg"}, res.Listings[0].PhotoURLs)
	assert.Equal(t, "accord", res.Listings[1].Title)
}

func TestAggregatorSameListingIDAcrossDomains(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY, targetSF})
	agg.Start(targetNY)
	agg.Start(targetSF)

	agg.Add(targetNY, record("1", "civic ny"))
	agg.Add(targetSF, record("1", "civic sf"))

	run := agg.Result()
	assert.Equal(t, 1, run.Results[0].Count)
	assert.Equal(t, 1, run.Results[1].Count)
	assert.Equal(t, "civic ny", run.Results[0].Listings[0].Title)
	assert.Equal(t, "civic sf", run.Results[1].Listings[0].Title)
}

func TestAggregatorResultPreservesDispatchOrder(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetSF, targetNY})
	agg.Add(targetNY, record("1", "civic"))

	run := agg.Result()
	require.Len(t, run.Results, 2)
	assert.Equal(t, "sfbay", run.Results[0].Domain)
	assert.Equal(t, "newyork", run.Results[1].Domain)
}

func TestAggregatorResultIsASnapshot(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.Add(targetNY, record("1", "civic"))

	before := agg.Result()
	agg.Add(targetNY, record("2", "accord"))

	assert.Equal(t, 1, before.Results[0].Count)
	assert.Equal(t, 2, agg.Result().Results[0].Count)
}

func TestRunResultCounters(t *testing.T) {
	agg := NewAggregator([]domain.CrawlTarget{targetNY, targetSF})
	agg.Start(targetNY)
	agg.Add(targetNY, record("1", "civic"))
	agg.Finish(targetNY, nil)
	agg.Start(targetSF)
	agg.Finish(targetSF, errors.New("blocked"))

	run := agg.Result()
	assert.Equal(t, 1, run.Completed())
	assert.Equal(t, 1, run.Failed())
}

func TestAggregatorFixedClock(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator([]domain.CrawlTarget{targetNY})
	agg.now = func() time.Time { return now }

	agg.Start(targetNY)
	agg.Add(targetNY, record("1", "civic"))
	agg.Finish(targetNY, nil)

	assert.Equal(t, now, agg.Result().Results[0].CompletedAt)
}
