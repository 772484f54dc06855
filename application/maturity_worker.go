package application

import (
	"context"
	"sync"
	"time"

	"coopledger/service"

	log "github.com/sirupsen/logrus"
)

// MaturitySweeper matures every time deposit due on or before asOf
type MaturitySweeper interface {
	MatureDue(ctx context.Context, asOf time.Time) (*service.SweepResult, error)
}

// MaturityWorker periodically moves due time deposits from active to matured
type MaturityWorker struct {
	sweeper  MaturitySweeper
	interval time.Duration
	now      func() time.Time
}

// NewMaturityWorker creates a new maturity worker
func NewMaturityWorker(sweeper MaturitySweeper, interval time.Duration) *MaturityWorker {
	return &MaturityWorker{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then one per interval until ctx is
// cancelled or the returned stop function is called. Stop waits for a sweep
// in progress to finish.
func (w *MaturityWorker) Start(ctx context.Context) func() {
	ticker := time.NewTicker(w.interval)
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		log.WithField("interval", w.interval).Info("Maturity worker started")
		w.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info("Maturity worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Maturity worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		wg.Wait()
	}
}

// RunOnce performs a single sweep as of the current date
func (w *MaturityWorker) RunOnce(ctx context.Context) *service.SweepResult {
	asOf := w.now().UTC()

	result, err := w.sweeper.MatureDue(ctx, asOf)
	if err != nil {
		log.WithError(err).WithField("asOf", asOf.Format(time.DateOnly)).Error("Maturity sweep failed")
		return result
	}

	log.WithFields(log.Fields{
		"due":     result.Due,
		"matured": result.Matured,
		"failed":  result.Failed,
	}).Debug("Maturity sweep completed")
	return result
}
