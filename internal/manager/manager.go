// Package manager implements the country manager: owns the master country
// list, spawns one worker per country bounded by a parallelism semaphore,
// forwards progress to a sink, and drives orderly shutdown.
package manager

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/quay/claircore-geoindex/internal/config"
	"github.com/quay/claircore-geoindex/internal/coordinator"
	"github.com/quay/claircore-geoindex/internal/model"
	"github.com/quay/claircore-geoindex/internal/progress"
	"github.com/quay/claircore-geoindex/internal/stage"
	"github.com/quay/claircore-geoindex/internal/tsv"
	"github.com/quay/claircore-geoindex/internal/worker"
)

// ProgressSink receives every progress report the manager forwards, from
// every worker it owns.
type ProgressSink interface {
	Observe(p progress.Progress)
}

// Manager owns one Worker per country plus the master CountryInfo list.
type Manager struct {
	cfg         config.Config
	store       *stage.Store
	coordinator *coordinator.Coordinator
	sink        ProgressSink
	sem         *semaphore.Weighted
	runID       string

	progressCh chan progress.Progress
	wg         sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker.Worker
	infos   []model.CountryInfo
}

// New returns a Manager configured from cfg, reporting every worker's
// progress to sink. Every progress report this run forwards carries the
// same correlation id, so a sink fed by overlapping runs can still group
// them.
func New(cfg config.Config, client *http.Client, store *stage.Store, sink ProgressSink) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		coordinator: coordinator.New(cfg, client, store),
		sink:        sink,
		sem:         semaphore.NewWeighted(cfg.MaxParallelCountries),
		runID:       uuid.NewString(),
		progressCh:  make(chan progress.Progress, 64),
		workers:     make(map[string]*worker.Worker),
	}
}

// Start loads the master country index, then spawns one worker per country
// (all of them, or cfg.Countries if non-empty), in parallel batches bounded
// by cfg.MaxParallelCountries.
func (m *Manager) Start(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "manager.Start")

	if _, err := m.coordinator.LoadMasterIndex(ctx); err != nil {
		return fmt.Errorf("manager: load master country index: %w", err)
	}
	f, err := os.Open(m.store.TextPath("countryInfo", ".txt"))
	if err != nil {
		return fmt.Errorf("manager: open master country index: %w", err)
	}
	infos, err := tsv.ParseCountryIndex(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("manager: parse master country index: %w", err)
	}
	m.infos = infos

	countries := m.cfg.Countries
	if len(countries) == 0 {
		for _, ci := range infos {
			countries = append(countries, ci.Code)
		}
	}

	go m.forwardProgress()

	for _, cc := range countries {
		cc := cc
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("manager: acquire parallelism slot for %s: %w", cc, err)
		}
		w := worker.New(cc, m.cfg, m.coordinator, m.store, m.progressCh)
		m.mu.Lock()
		m.workers[cc] = w
		m.mu.Unlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.sem.Release(1)
			w.Run(ctx)
		}()
	}
	return nil
}

// forwardProgress drains progressCh into the sink until the channel is
// closed by Shutdown.
func (m *Manager) forwardProgress() {
	for p := range m.progressCh {
		p.CorrelationID = m.runID
		if m.sink != nil {
			m.sink.Observe(p)
		}
	}
}

// Worker returns the worker handle for a country, if it has been spawned.
func (m *Manager) Worker(country string) (*worker.Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[country]
	return w, ok
}

// CountryInfos returns the master country list loaded by Start.
func (m *Manager) CountryInfos() []model.CountryInfo { return m.infos }

// Shutdown broadcasts terminate to every worker, awaits their
// acknowledgments with a bounded timeout, and replies goodbye. A worker
// that fails to acknowledge within the timeout is reported in the returned
// error but doesn't block the other acknowledgments.
func (m *Manager) Shutdown(ctx context.Context, timeout time.Duration) (progress.ControlAck, error) {
	m.mu.Lock()
	workers := make([]*worker.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	acks := make(chan progress.ControlAck, len(workers))
	for _, w := range workers {
		w := w
		go func() { acks <- w.Terminate() }()
	}

	missing := len(workers)
waitAcks:
	for missing > 0 {
		select {
		case <-acks:
			missing--
		case <-deadline.Done():
			break waitAcks
		}
	}

	if missing > 0 {
		return progress.ControlAck{From: "manager", Reason: "timeout"},
			fmt.Errorf("manager: %d worker(s) did not acknowledge terminate within %s", missing, timeout)
	}

	m.wg.Wait()
	close(m.progressCh)
	return progress.ControlAck{From: "manager", Reason: "goodbye"}, nil
}
