// Package supervisor implements the root supervisor: a one-for-one restart
// of the country manager, bounded by a restart count within a rolling
// window, with a brutal (context-cancel, no grace period) kill of the
// manager on the supervisor's own shutdown.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/quay/zlog"

	"github.com/quay/claircore-geoindex/internal/manager"
)

const (
	maxRestarts   = 1
	restartPeriod = 5 * time.Second
)

// ManagerFactory builds a fresh Manager for each (re)start.
type ManagerFactory func() *manager.Manager

// Supervisor restarts its one child, the country manager, up to maxRestarts
// times within restartPeriod; a further failure propagates and ends the
// process.
type Supervisor struct {
	newManager ManagerFactory
}

// New returns a Supervisor that builds a new Manager via newManager on each
// (re)start.
func New(newManager ManagerFactory) *Supervisor {
	return &Supervisor{newManager: newManager}
}

// Run starts the manager and watches it; ctx cancellation is the supervisor's
// own shutdown signal and propagates as a brutal kill of the manager (no
// grace period; per-country temp files are discardable on this path).
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "supervisor.Run")

	var restarts int
	var windowStart time.Time

	for {
		mgrCtx, cancel := context.WithCancel(ctx)
		m := s.newManager()

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.runOnce(mgrCtx, m)
		}()

		select {
		case <-ctx.Done():
			cancel() // brutal kill: no drain, no grace period
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			cancel()
			if err == nil {
				// runOnce only returns nil via its own ctx.Done(), so this
				// always traces back to the supervisor's own context.
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				return nil
			}

			now := time.Now()
			if windowStart.IsZero() || now.Sub(windowStart) > restartPeriod {
				windowStart = now
				restarts = 0
			}
			if restarts >= maxRestarts {
				return fmt.Errorf("supervisor: manager exceeded %d restart(s) within %s: %w", maxRestarts, restartPeriod, err)
			}
			restarts++
			zlog.Error(ctx).Err(err).Int("restart", restarts).Msg("manager exited unexpectedly, restarting")
		}
	}
}

// runOnce starts m and blocks until ctx is cancelled, reporting whatever
// Start returned (a Manager that started successfully but whose workers
// later fail is not itself a supervisor-level failure; only a Start error
// is).
func (s *Supervisor) runOnce(ctx context.Context, m *manager.Manager) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
