// Package worker implements the country worker: the per-country state
// machine sequencing staleness check, fetch, parse, hierarchy build,
// enrich, and persist, reporting progress and state transitions to a
// manager-supplied sink.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/quay/zlog"

	"github.com/quay/claircore-geoindex/internal/config"
	"github.com/quay/claircore-geoindex/internal/coordinator"
	"github.com/quay/claircore-geoindex/internal/enrich"
	"github.com/quay/claircore-geoindex/internal/hierarchy"
	"github.com/quay/claircore-geoindex/internal/metrics"
	"github.com/quay/claircore-geoindex/internal/model"
	"github.com/quay/claircore-geoindex/internal/progress"
	"github.com/quay/claircore-geoindex/internal/stage"
	"github.com/quay/claircore-geoindex/internal/tsv"
)

// State is one node of the worker state machine.
type State int

const (
	StateIdle State = iota
	StateCheckingStaleness
	StateFetching
	StateLoadingFCP
	StateExtracting
	StateParsing
	StateBuildingHierarchy
	StateEnriching
	StatePersisting
	StateReady
	StateFailed
	StateStopped
)

// FailReason names why a Worker entered StateFailed.
type FailReason int

const (
	ReasonNone FailReason = iota
	ReasonRetryExhausted
	ReasonParseError
)

func (r FailReason) String() string {
	switch r {
	case ReasonRetryExhausted:
		return "RetryExhausted"
	case ReasonParseError:
		return "ParseError"
	default:
		return "None"
	}
}

// Worker runs the state machine for exactly one country. The zero value is
// not usable; construct with New.
type Worker struct {
	country     string
	cfg         config.Config
	coordinator *coordinator.Coordinator
	store       *stage.Store
	progressCh  chan<- progress.Progress

	terminate     chan struct{}
	terminateOnce sync.Once
	finished      chan struct{} // closed when Run returns, whatever the terminal state
	ack           chan progress.ControlAck

	mu         sync.Mutex
	state      State
	failReason FailReason
	records    []model.GeonameRecord // serving state once StateReady
}

// New returns a Worker for country, reporting progress on progressCh
// (supplied by the manager at construction time; there is no ambient
// registry a worker looks itself up in).
func New(country string, cfg config.Config, coord *coordinator.Coordinator, store *stage.Store, progressCh chan<- progress.Progress) *Worker {
	return &Worker{
		country:     country,
		cfg:         cfg,
		coordinator: coord,
		store:       store,
		progressCh:  progressCh,
		terminate:   make(chan struct{}),
		finished:    make(chan struct{}),
		ack:         make(chan progress.ControlAck, 1),
		state:       StateIdle,
	}
}

// Terminate asks the worker to shut down at its next safe point and blocks
// until it acknowledges. A worker that already reached Ready or Failed
// before Terminate is called transitions straight to Stopped.
func (w *Worker) Terminate() progress.ControlAck {
	w.terminateOnce.Do(func() { close(w.terminate) })
	select {
	case ack := <-w.ack:
		return ack
	case <-w.finished:
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
		return progress.ControlAck{From: w.country}
	}
}

// State reports the worker's current state machine node.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// FailReason reports why the worker failed. Valid only once State() ==
// StateFailed.
func (w *Worker) FailReason() FailReason {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failReason
}

// Records returns the worker's serving state. Valid only once State() ==
// StateReady.
func (w *Worker) Records() []model.GeonameRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Run drives the state machine to completion (StateReady, StateFailed, or
// StateStopped on an observed Terminate). Run is meant to be called from its
// own goroutine by the manager; it returns once the worker reaches a
// terminal state.
func (w *Worker) Run(ctx context.Context) {
	ctx = zlog.ContextWithValues(ctx, "component", "worker.Run", "country", w.country)
	defer close(w.finished)

	if w.atSafePoint() {
		w.stop()
		return
	}

	w.setState(StateCheckingStaleness)
	w.report(progress.Progress{Country: w.country, Phase: progress.PhaseCheckingForUpdate})

	res, err := w.coordinator.RefreshIfStale(ctx, w.country)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("fetch retry protocol exhausted")
		w.fail(ReasonRetryExhausted)
		return
	}

	if w.atSafePoint() {
		w.stop()
		return
	}

	// fresh (ResultDone) with an existing curated file: skip straight to
	// deserializing it instead of re-parsing the raw text.
	if res == coordinator.ResultDone {
		if payload, readErr := w.store.ReadFCP(w.country); readErr == nil {
			w.setState(StateLoadingFCP)
			records, decodeErr := decodeFCP(payload)
			if decodeErr != nil {
				zlog.Error(ctx).Err(decodeErr).Msg("stored fcp file is corrupt")
				w.fail(ReasonParseError)
				return
			}
			w.setRecords(records)
			w.finishReady()
			return
		} else if !os.IsNotExist(readErr) {
			zlog.Error(ctx).Err(readErr).Msg("reading existing fcp file")
			w.fail(ReasonParseError)
			return
		}
		// No curated file yet despite fresh data: fall through and build
		// one from the already-staged text.
	}

	w.setState(StateExtracting)
	records, err := w.parseStagedText(ctx)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("parsing staged text")
		w.fail(ReasonParseError)
		return
	}

	if w.atSafePoint() {
		w.stop()
		return
	}

	w.setState(StateBuildingHierarchy)
	h := hierarchy.New(records.Admins)
	defer h.Close()

	w.setState(StateEnriching)
	enriched, err := enrich.Enrich(ctx, h, records.Populated)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("enrichment failed")
		w.fail(ReasonParseError)
		return
	}

	if w.atSafePoint() {
		w.stop()
		return
	}

	w.setState(StatePersisting)
	if err := w.store.WriteFCPAtomic(w.country, encodeFCP(enriched)); err != nil {
		zlog.Error(ctx).Err(err).Msg("persisting curated fcp file")
		w.fail(ReasonParseError)
		return
	}
	if err := w.store.RemoveTextFile(w.country); err != nil {
		zlog.Warn(ctx).Err(err).Msg("cleanup of staged text failed, non-fatal")
	}

	w.setRecords(enriched)
	w.finishReady()
}

// parseStagedText opens the staged country text file and streams it through
// the TSV parser, forwarding its progress pulses onto the worker's own
// progress sink.
func (w *Worker) parseStagedText(ctx context.Context) (tsv.Result, error) {
	w.setState(StateParsing)

	f, err := os.Open(w.store.TextPath(w.country, ".txt"))
	if err != nil {
		return tsv.Result{}, fmt.Errorf("worker: open staged text: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return tsv.Result{}, fmt.Errorf("worker: stat staged text: %w", err)
	}

	pulses := make(chan tsv.Progress, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range pulses {
			w.report(progress.Progress{
				Country:  w.country,
				Phase:    progress.PhaseFileImport,
				Pct:      p.Pct,
				Complete: p.Complete,
			})
		}
	}()

	res, err := tsv.Parse(f, fi.Size(), w.cfg.ProgressFraction, w.cfg.MinPopulation, pulses)
	close(pulses)
	<-done
	if err != nil {
		return tsv.Result{}, err
	}
	return res, nil
}

func (w *Worker) finishReady() {
	w.setState(StateReady)
	metrics.ObserveCuratedRecords(w.country, len(w.Records()))
	w.report(progress.Progress{Country: w.country, Phase: progress.PhaseFileImport, Pct: 100, Complete: true})
}

func (w *Worker) fail(reason FailReason) {
	w.mu.Lock()
	w.failReason = reason
	w.mu.Unlock()
	w.setState(StateFailed)
}

func (w *Worker) setRecords(records []model.GeonameRecord) {
	w.mu.Lock()
	w.records = records
	w.mu.Unlock()
}

// atSafePoint reports whether a Terminate request arrived, the only point
// between phases the worker checks it.
func (w *Worker) atSafePoint() bool {
	select {
	case <-w.terminate:
		return true
	default:
		return false
	}
}

func (w *Worker) stop() {
	w.setState(StateStopped)
	w.ack <- progress.ControlAck{From: w.country}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) report(p progress.Progress) {
	if w.progressCh == nil {
		return
	}
	w.progressCh <- p
}
