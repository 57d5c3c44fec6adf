// Package enrich implements the populated-place enricher: join against a
// per-country hierarchy.Service, admin-text labels attached, malformed-reply
// drops counted and logged rather than silently swallowed.
package enrich

import (
	"context"
	"sync"

	"github.com/quay/zlog"

	"github.com/quay/claircore-geoindex/internal/hierarchy"
	"github.com/quay/claircore-geoindex/internal/model"
)

// Enrich dispatches one name_lookup per record in populated over h and
// collects exactly that many responses, attaching the resolved admin text
// labels. Output order is not guaranteed to match input order; the returned
// count may be lower than len(populated) if any individual lookup errors (a
// malformed reply), in which case the delta is logged rather than silently
// dropped.
func Enrich(ctx context.Context, h *hierarchy.Service, populated []model.GeonameRecord) ([]model.GeonameRecord, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "enrich.Enrich")

	results := make(chan model.GeonameRecord, len(populated))
	var wg sync.WaitGroup
	var dropped int
	var mu sync.Mutex

	wg.Add(len(populated))
	for _, rec := range populated {
		rec := rec
		go func() {
			defer wg.Done()
			labels, err := h.Lookup(ctx, rec)
			if err != nil {
				mu.Lock()
				dropped++
				mu.Unlock()
				return
			}
			rec.Admin1Txt = labels.Admin1Txt
			rec.Admin2Txt = labels.Admin2Txt
			rec.Admin3Txt = labels.Admin3Txt
			rec.Admin4Txt = labels.Admin4Txt
			results <- rec
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]model.GeonameRecord, 0, len(populated))
	for rec := range results {
		out = append(out, rec)
	}

	if dropped > 0 {
		zlog.Warn(ctx).Int("dropped", dropped).Int("input", len(populated)).Int("output", len(out)).
			Msg("hierarchy lookup produced malformed replies, FCP list shrunk")
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
