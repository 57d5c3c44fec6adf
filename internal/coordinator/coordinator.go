// Package coordinator implements the fetch coordinator: the staleness
// check, parallel fan-out of conditional fetches, and bounded retry over
// the pairs that fail.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quay/claircore-geoindex/internal/config"
	"github.com/quay/claircore-geoindex/internal/fetch"
	"github.com/quay/claircore-geoindex/internal/metrics"
	"github.com/quay/claircore-geoindex/internal/stage"
)

// Result is the outcome of one coordinator call.
type Result int

const (
	ResultDone Result = iota
	ResultRefreshed
	ResultFailedAfterRetries
)

// Pair names one (filename, extension) fetch target.
type Pair struct {
	Filename  string
	Extension string
}

// FailedAfterRetriesError reports the pairs still outstanding once
// RetryLimit is exhausted.
type FailedAfterRetriesError struct {
	Remaining []Pair
}

func (e *FailedAfterRetriesError) Error() string {
	return fmt.Sprintf("coordinator: failed after retries, %d pair(s) still outstanding", len(e.Remaining))
}

// fetchOne is a function, seamed for tests, matching fetch.Fetch's
// signature.
type fetchOne func(ctx context.Context, cl *http.Client, baseURL, filename, extension string, priorETag []byte) (fetch.Outcome, error)

// Coordinator drives the conditional-fetch + retry + staleness protocol.
type Coordinator struct {
	cfg     config.Config
	client  *http.Client
	store   *stage.Store
	fetchFn fetchOne
	// limiter is shared by every call on this Coordinator and lets at most
	// one retry round start per RetryWait across all of them. First
	// attempts never wait on it.
	limiter *rate.Limiter
}

// New returns a Coordinator configured from cfg.
func New(cfg config.Config, client *http.Client, store *stage.Store) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		client:  client,
		store:   store,
		fetchFn: fetch.Fetch,
		limiter: rate.NewLimiter(rate.Every(cfg.RetryWait), 1),
	}
}

// RefreshIfStale performs the staleness check for countryCode and, if stale,
// fetches and stages <CC>.zip through the retry protocol.
func (c *Coordinator) RefreshIfStale(ctx context.Context, countryCode string) (Result, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "coordinator.RefreshIfStale", "country", countryCode)

	etag, modTime, ok := c.store.ReadETag(countryCode)
	var age time.Duration
	if ok {
		age = time.Since(time.Unix(modTime, 0))
	} else {
		age = time.Duration(1<<63 - 1) // epoch 0 is always stale
	}
	if ok && age <= c.cfg.StaleAfter {
		zlog.Debug(ctx).Msg("fresh, skipping fetch")
		return ResultDone, nil
	}

	res, err := c.runRetryProtocol(ctx, []Pair{{Filename: countryCode, Extension: ".zip"}}, etag)
	if err != nil {
		return ResultFailedAfterRetries, err
	}
	return res, nil
}

// LoadMasterIndex fetches countryInfo.txt unconditionally through the same
// pipeline.
func (c *Coordinator) LoadMasterIndex(ctx context.Context) (Result, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "coordinator.LoadMasterIndex")
	res, err := c.runRetryProtocol(ctx, []Pair{{Filename: "countryInfo", Extension: ".txt"}}, nil)
	if err != nil {
		return ResultFailedAfterRetries, err
	}
	return res, nil
}

// runRetryProtocol runs the fetch/retry protocol for an arbitrary
// set of pairs, and stages every Fresh outcome via the Store.
func (c *Coordinator) runRetryProtocol(ctx context.Context, pairs []Pair, priorETag []byte) (Result, error) {
	remaining := pairs
	anyFresh := false
	for attempt := 1; len(remaining) > 0; attempt++ {
		if attempt > 1 {
			// Pause a full RetryWait before every retry round.
			pause := time.NewTimer(c.cfg.RetryWait)
			select {
			case <-ctx.Done():
				pause.Stop()
				return ResultFailedAfterRetries, ctx.Err()
			case <-pause.C:
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return ResultFailedAfterRetries, err
			}
		}

		outcomes := make([]fetch.Outcome, len(remaining))
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range remaining {
			i, p := i, p
			g.Go(func() error {
				metrics.ObserveFetchAttempt(p.Filename)
				o, err := c.fetchFn(gctx, c.client, c.cfg.BaseURL, p.Filename, p.Extension, priorETag)
				if err != nil {
					return err
				}
				outcomes[i] = o
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ResultFailedAfterRetries, fmt.Errorf("coordinator: fetch dispatch: %w", err)
		}

		var next []Pair
		for _, o := range outcomes {
			switch {
			case o.Kind == fetch.KindFresh:
				if err := c.stageFresh(ctx, o); err != nil {
					return ResultFailedAfterRetries, err
				}
				anyFresh = true
			case o.Kind == fetch.KindUnchanged:
				// terminal success, nothing to stage
			case o.Retryable():
				zlog.Warn(ctx).Str("filename", o.Filename+o.Extension).Int("attempt", attempt).Msg("fetch failed, will retry")
				next = append(next, Pair{Filename: o.Filename, Extension: o.Extension})
			}
		}
		remaining = next

		if len(remaining) == 0 {
			break
		}
		if attempt >= c.cfg.RetryLimit {
			for _, p := range remaining {
				metrics.ObserveRetryExhausted(p.Filename)
			}
			return ResultFailedAfterRetries, &FailedAfterRetriesError{Remaining: remaining}
		}
	}

	if anyFresh {
		return ResultRefreshed, nil
	}
	return ResultDone, nil
}

// stageFresh persists a Fresh outcome's etag and body via the Store. For the
// master index (.txt) it's a direct move; for country archives (.zip) it's
// extraction of the single named entry.
func (c *Coordinator) stageFresh(ctx context.Context, o fetch.Outcome) error {
	etag, tempPath, _ := o.Fresh()

	if len(etag) > 0 {
		if err := c.store.WriteETag(o.Filename, etag); err != nil {
			return fmt.Errorf("coordinator: write etag for %s: %w", o.Filename, err)
		}
	}

	switch o.Extension {
	case ".zip":
		if err := c.store.ExtractZIP(o.Filename, tempPath); err != nil {
			zlog.Error(ctx).Err(err).Str("filename", o.Filename).Msg("archive extraction failed")
			return err
		}
	default:
		if err := c.store.MoveText(o.Filename, o.Extension, tempPath); err != nil {
			if errors.Is(err, stage.ErrCleanupFailed) {
				zlog.Warn(ctx).Err(err).Str("filename", o.Filename).Msg("staged text moved but spool cleanup failed, continuing")
				break
			}
			return fmt.Errorf("coordinator: move staged text for %s: %w", o.Filename, err)
		}
	}
	return nil
}
