// Package pipeline schedules discovery and extraction across targets under
// one of two policies: bounded-parallel for the cheap HTTP fetch mode, and
// strict-sequential-with-delay for the browser mode, where pacing is the
// primary anti-block mechanism rather than an optimization.
package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/listing-harvester/internal/discover"
	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/extract"
	"github.com/user/listing-harvester/internal/fetch"
	"github.com/user/listing-harvester/internal/monitoring"
	"github.com/user/listing-harvester/internal/retry"
)

// ErrNoTargets is returned when a run is started with nothing to crawl.
var ErrNoTargets = errors.New("no targets to harvest")

// Sequential-mode pacing, the same uniform ranges the targets tolerate:
// short pauses between detail pages, longer between page turns, longest
// between targets.
const (
	listingDelayMin = 1 * time.Second
	listingDelayMax = 3 * time.Second
	pageDelayMin    = 3 * time.Second
	pageDelayMax    = 5 * time.Second
	targetDelayMin  = 5 * time.Second
	targetDelayMax  = 10 * time.Second
)

// SessionFactory opens a dedicated fetch session for one target.
type SessionFactory func(target domain.CrawlTarget) (fetch.Session, error)

// Options configures a run.
type Options struct {
	Workers        int
	MaxPages       int
	MaxLinks       int
	Policy         retry.Policy
	RequestsPerSec float64

	// Snapshot, when set, receives the accumulated run result after each
	// target completes, bounding data loss on a crash mid-run.
	Snapshot func(*domain.RunResult)

	// SkipLink, when set, is consulted before each detail fetch; a true
	// return drops the link without fetching. Used to skip pages harvested
	// by a recent run.
	SkipLink func(ctx context.Context, url string) bool
}

// Orchestrator runs the harvest. Exactly one of shared (parallel mode) or
// sessions (sequential mode) is set.
type Orchestrator struct {
	opts     Options
	shared   fetch.Client
	sessions SessionFactory
	limiter  *rate.Limiter
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	// snapMu serializes Snapshot emission; in parallel mode targets finish
	// concurrently and the sink typically writes a single file.
	snapMu sync.Mutex
}

// NewParallel builds a bounded-parallel orchestrator over one shared
// lightweight client.
func NewParallel(client fetch.Client, opts Options, metrics *monitoring.Metrics, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{opts: opts, shared: client, metrics: metrics, logger: logger, sleep: sleepCtx}
	if opts.RequestsPerSec > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return o
}

// NewSequential builds a one-target-at-a-time orchestrator; each target
// gets a fresh session which is closed before the next target starts.
func NewSequential(sessions SessionFactory, opts Options, metrics *monitoring.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{opts: opts, sessions: sessions, metrics: metrics, logger: logger, sleep: sleepCtx}
}

// Run harvests every target and returns the aggregated result. On external
// cancellation it stops after the in-flight attempt and returns whatever
// partial result has accumulated, alongside the context error.
func (o *Orchestrator) Run(ctx context.Context, targets []domain.CrawlTarget) (*domain.RunResult, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	agg := NewAggregator(targets)
	if o.sessions != nil {
		o.runSequential(ctx, targets, agg)
	} else {
		o.runParallel(ctx, targets, agg)
	}
	return agg.Result(), ctx.Err()
}

func (o *Orchestrator) runParallel(ctx context.Context, targets []domain.CrawlTarget, agg *Aggregator) {
	g := new(errgroup.Group)
	g.SetLimit(o.workers())
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if ctx.Err() != nil {
				agg.Finish(target, ctx.Err())
				return nil
			}
			o.harvestTarget(ctx, target, o.shared, false, agg)
			o.snapshot(agg)
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) runSequential(ctx context.Context, targets []domain.CrawlTarget, agg *Aggregator) {
	for i, target := range targets {
		if ctx.Err() != nil {
			agg.Finish(target, ctx.Err())
			continue
		}

		session, err := o.sessions(target)
		if err != nil {
			o.logger.Error("failed to open session for target",
				zap.String("domain", target.Domain), zap.Error(err))
			agg.Start(target)
			status := agg.Finish(target, err)
			o.metrics.IncTargetProcessed(string(status))
			continue
		}

		o.harvestTarget(ctx, target, session, true, agg)

		// The session must be fully torn down before the next target's
		// session is created.
		session.Close()

		o.snapshot(agg)

		if i < len(targets)-1 {
			if err := o.pause(ctx, targetDelayMin, targetDelayMax); err != nil {
				continue
			}
		}
	}
}

// harvestTarget runs discovery then extraction for one target and
// finalizes its status. Failures below target granularity are absorbed
// here; nothing propagates to sibling targets.
func (o *Orchestrator) harvestTarget(ctx context.Context, target domain.CrawlTarget, client fetch.Client, sequential bool, agg *Aggregator) {
	start := time.Now()
	agg.Start(target)
	o.logger.Info("harvesting target",
		zap.String("domain", target.Domain), zap.String("state", target.State))

	disc := discover.New(client, o.opts.Policy, o.opts.MaxPages, o.opts.MaxLinks, o.logger)
	disc.WithPageHook(func() { o.metrics.IncPageFetched("index") })
	if sequential {
		disc.WithPacing(func(ctx context.Context) error {
			return o.pause(ctx, pageDelayMin, pageDelayMax)
		})
	}

	links, err := disc.Discover(ctx, target)
	if err != nil {
		status := agg.Finish(target, err)
		o.finishTarget(target, status, start)
		return
	}

	extractor := extract.New(client, o.opts.Policy, o.logger)
	if sequential {
		o.extractSequential(ctx, links, extractor, agg)
	} else {
		o.extractParallel(ctx, links, extractor, agg)
	}

	status := agg.Finish(target, nil)
	o.finishTarget(target, status, start)
}

func (o *Orchestrator) extractSequential(ctx context.Context, links []domain.ListingLink, extractor *extract.Extractor, agg *Aggregator) {
	for i, link := range links {
		if ctx.Err() != nil {
			return
		}
		o.extractOne(ctx, link, extractor, agg)
		if i < len(links)-1 {
			if err := o.pause(ctx, listingDelayMin, listingDelayMax); err != nil {
				return
			}
		}
	}
}

func (o *Orchestrator) extractParallel(ctx context.Context, links []domain.ListingLink, extractor *extract.Extractor, agg *Aggregator) {
	g := new(errgroup.Group)
	g.SetLimit(o.workers())
	for _, link := range links {
		link := link
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			o.extractOne(ctx, link, extractor, agg)
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) extractOne(ctx context.Context, link domain.ListingLink, extractor *extract.Extractor, agg *Aggregator) {
	if o.opts.SkipLink != nil && o.opts.SkipLink(ctx, link.URL) {
		o.logger.Debug("skipping recently harvested listing", zap.String("url", link.URL))
		return
	}
	o.metrics.IncPageFetched("detail")
	rec, err := extractor.Extract(ctx, link)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrMissingListingID):
			o.metrics.IncExtractionFailure("missing_id")
		case errors.Is(err, retry.ErrExhausted):
			o.metrics.IncExtractionFailure("exhausted")
			if errors.Is(err, fetch.ErrBlocked) {
				o.metrics.IncBlocked()
			}
		}
		o.logger.Warn("detail extraction failed",
			zap.String("url", link.URL), zap.Error(err))
		return
	}
	agg.Add(link.Target, *rec)
	o.metrics.IncListing(link.Target.Domain)
}

func (o *Orchestrator) finishTarget(target domain.CrawlTarget, status domain.DomainStatus, start time.Time) {
	o.metrics.IncTargetProcessed(string(status))
	o.metrics.ObserveTargetDuration(target.Domain, time.Since(start))
	o.logger.Info("target finished",
		zap.String("domain", target.Domain),
		zap.String("status", string(status)),
		zap.Duration("took", time.Since(start)))
}

// snapshot hands the accumulated run to the Snapshot callback, one caller
// at a time.
func (o *Orchestrator) snapshot(agg *Aggregator) {
	if o.opts.Snapshot == nil {
		return
	}
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	o.opts.Snapshot(agg.Result())
}

func (o *Orchestrator) workers() int {
	if o.opts.Workers > 0 {
		return o.opts.Workers
	}
	return 10
}

// pause sleeps a uniformly random duration in [min, max], honoring
// cancellation.
func (o *Orchestrator) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	return o.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
