package pipeline

import (
	"sync"
	"time"

	"github.com/user/listing-harvester/internal/domain"
)

// Aggregator collects per-target partial results into the final run result.
// Records dedupe on (target domain, listing id) with last-writer-wins
// semantics; a replacement takes the new photo set wholesale. Target status
// never regresses once terminal.
type Aggregator struct {
	mu      sync.Mutex
	order   []domain.CrawlTarget
	status  map[string]domain.DomainStatus
	records map[string][]domain.ListingRecord
	index   map[string]map[string]int // domain -> listing id -> slot in records
	errs    map[string]string
	doneAt  map[string]time.Time
	now     func() time.Time
}

// NewAggregator registers every dispatched target as pending.
func NewAggregator(targets []domain.CrawlTarget) *Aggregator {
	a := &Aggregator{
		order:   targets,
		status:  make(map[string]domain.DomainStatus, len(targets)),
		records: make(map[string][]domain.ListingRecord),
		index:   make(map[string]map[string]int),
		errs:    make(map[string]string),
		doneAt:  make(map[string]time.Time),
		now:     time.Now,
	}
	for _, t := range targets {
		a.status[t.Domain] = domain.StatusPending
	}
	return a
}

// Start marks a target in progress.
func (a *Aggregator) Start(t domain.CrawlTarget) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.status[t.Domain].Terminal() {
		a.status[t.Domain] = domain.StatusInProgress
	}
}

// Add records one extracted listing. A record with a key already present
// replaces the earlier one in place, photo set included.
func (a *Aggregator) Add(t domain.CrawlTarget, rec domain.ListingRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slots, ok := a.index[t.Domain]
	if !ok {
		slots = make(map[string]int)
		a.index[t.Domain] = slots
	}
	if i, dup := slots[rec.ListingID]; dup {
		a.records[t.Domain][i] = rec
		return
	}
	slots[rec.ListingID] = len(a.records[t.Domain])
	a.records[t.Domain] = append(a.records[t.Domain], rec)
}

// Finish finalizes a target: completed when at least one record survived,
// failed otherwise. err annotates the failure; an already-terminal status
// is left alone.
func (a *Aggregator) Finish(t domain.CrawlTarget, err error) domain.DomainStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status[t.Domain].Terminal() {
		return a.status[t.Domain]
	}

	if len(a.records[t.Domain]) > 0 {
		a.status[t.Domain] = domain.StatusCompleted
	} else {
		a.status[t.Domain] = domain.StatusFailed
		if err != nil {
			a.errs[t.Domain] = err.Error()
		} else {
			a.errs[t.Domain] = "no listings found"
		}
	}
	a.doneAt[t.Domain] = a.now()
	return a.status[t.Domain]
}

// Result snapshots the run so far, one entry per target in dispatch order.
func (a *Aggregator) Result() *domain.RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	run := &domain.RunResult{Results: make([]domain.TargetResult, 0, len(a.order))}
	for _, t := range a.order {
		recs := a.records[t.Domain]
		run.Results = append(run.Results, domain.TargetResult{
			Target:      t,
			Domain:      t.Domain,
			State:       t.State,
			Status:      a.status[t.Domain],
			Listings:    append([]domain.ListingRecord(nil), recs...),
			Count:       len(recs),
			Error:       a.errs[t.Domain],
			CompletedAt: a.doneAt[t.Domain],
		})
	}
	return run
}
