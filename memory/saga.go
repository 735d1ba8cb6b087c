package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/MarcusD9722/Nova/metrics"
)

// Backend names used in logs, reports and metrics labels.
const (
	backendStore = "sqlite"
	backendIndex = "chromem"
	backendCache = "cache"
	backendAudit = "audit"
)

// step is one best-effort leg of a write.
type step struct {
	backend string
	run     func(ctx context.Context) error
}

// writeSaga describes a fan-out write: one mandatory DurableStore step,
// best-effort steps that run alongside it, and best-effort steps that need
// its result and start once it succeeds.
type writeSaga struct {
	op         string
	mandatory  func(ctx context.Context) error
	concurrent []step
	dependent  []step
}

// WriteReport summarizes a saga. Failed lists the best-effort backends that
// did not apply the write.
type WriteReport struct {
	Op     string
	ID     string
	Failed []string
}

// Outcome classifies the report for logs and metrics.
func (r *WriteReport) Outcome() string {
	if len(r.Failed) > 0 {
		return "partial"
	}
	return "ok"
}

// runSaga executes s. It returns the mandatory step's error, if any; every
// best-effort failure is logged, counted and listed in the report.
func runSaga(ctx context.Context, id string, s writeSaga) (*WriteReport, error) {
	report := &WriteReport{Op: s.op, ID: id}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	launch := func(st step) {
		g.Go(func() error {
			if err := st.run(ctx); err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, st.backend)
				mu.Unlock()

				metrics.BackendFailures.WithLabelValues(st.backend, s.op).Inc()
				log.WithError(err).WithFields(logrus.Fields{
					"op":      s.op,
					"id":      id,
					"backend": st.backend,
				}).Warn("best-effort write step failed")
			}
			return nil
		})
	}

	for _, st := range s.concurrent {
		launch(st)
	}
	g.Go(func() error {
		if err := s.mandatory(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrDurableStore, err)
		}
		for _, st := range s.dependent {
			launch(st)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.MemoryWrites.WithLabelValues(s.op, "failed").Inc()
		return report, err
	}

	metrics.MemoryWrites.WithLabelValues(s.op, report.Outcome()).Inc()
	entry := log.WithFields(logrus.Fields{"op": s.op, "id": id, "outcome": report.Outcome()})
	if len(report.Failed) > 0 {
		entry.WithField("failed", report.Failed).Warn("write applied partially")
	} else {
		entry.Debug("write applied")
	}
	return report, nil
}
