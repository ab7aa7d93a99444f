// Package cycle runs one fetch, compare, persist and publish pass over the
// option chain.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/oidelta/internal/delta"
	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/metrics"
	"github.com/rewired-gh/oidelta/internal/models"
	"github.com/rewired-gh/oidelta/internal/report"
	"github.com/rewired-gh/oidelta/internal/storage"
)

// ErrNoRows is returned when a chain yields no usable strikes.
var ErrNoRows = errors.New("no usable strikes in option chain")

// Source supplies the current option chain.
type Source interface {
	FetchChain(ctx context.Context) (*models.OptionChain, error)
}

// Store persists the baseline between cycles.
type Store interface {
	Load(ctx context.Context) (models.Snapshot, storage.LoadInfo)
	Save(ctx context.Context, observations []models.StrikeObservation) bool
}

// Sink publishes report text.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Gate reports whether a cycle may run at t.
type Gate interface {
	IsOpen(t time.Time) bool
}

// Config tunes a Runner.
type Config struct {
	Force        bool
	TopN         int
	MessageDelay time.Duration
	Now          func() time.Time
}

// Summary describes one Run.
type Summary struct {
	CycleID      string
	Skipped      bool
	Expiry       string
	Spot         float64
	Rows         int
	SkippedRows  int
	Saved        bool
	Sent         int
	SendFailures int
	Duration     time.Duration
	FinishedAt   time.Time
	Err          error
}

// String renders the summary for the /status command.
func (s Summary) String() string {
	at := s.FinishedAt.Format(time.RFC3339)
	switch {
	case s.Err != nil:
		return fmt.Sprintf("Last cycle %s failed at %s: %v", s.CycleID, at, s.Err)
	case s.Skipped:
		return fmt.Sprintf("Last cycle %s skipped at %s: market closed", s.CycleID, at)
	}
	return fmt.Sprintf("Last cycle %s at %s\nExpiry %s, spot %.2f\nRows %d (skipped %d), saved %t\nMessages sent %d, failed %d, took %s",
		s.CycleID, at, s.Expiry, s.Spot, s.Rows, s.SkippedRows, s.Saved, s.Sent, s.SendFailures, s.Duration.Round(time.Millisecond))
}

// Runner sequences a cycle. Runs must not overlap.
type Runner struct {
	source    Source
	store     Store
	sink      Sink
	gate      Gate
	assembler *report.Assembler
	metrics   *metrics.Recorder
	cfg       Config

	mu   sync.Mutex
	last *Summary
}

// NewRunner wires a Runner. gate and rec may be nil.
func NewRunner(source Source, store Store, sink Sink, gate Gate, assembler *report.Assembler, rec *metrics.Recorder, cfg Config) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		source:    source,
		store:     store,
		sink:      sink,
		gate:      gate,
		assembler: assembler,
		metrics:   rec,
		cfg:       cfg,
	}
}

// Status returns a description of the most recent cycle.
func (r *Runner) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return ""
	}
	return r.last.String()
}

// Run executes one cycle. A fetch failure aborts before the store is touched;
// delivery failures are counted in the summary and do not fail the cycle.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := r.cfg.Now()
	summary := Summary{CycleID: uuid.NewString()}
	log := logger.With(logger.Fields{"cycle": summary.CycleID})

	finish := func(result string, err error) (Summary, error) {
		summary.Duration = r.cfg.Now().Sub(start)
		summary.FinishedAt = r.cfg.Now()
		summary.Err = err
		r.metrics.ObserveCycle(result, summary.Duration)
		r.mu.Lock()
		last := summary
		r.last = &last
		r.mu.Unlock()
		return summary, err
	}

	if r.gate != nil && !r.gate.IsOpen(start) {
		if !r.cfg.Force {
			log.Info("Market closed, skipping cycle")
			summary.Skipped = true
			return finish(metrics.ResultSkipped, nil)
		}
		log.Warn("Market closed, running anyway (forced)")
	}

	chain, err := r.source.FetchChain(ctx)
	if err != nil {
		log.WithError(err).Error("Fetch failed, leaving store untouched")
		return finish(metrics.ResultFailed, fmt.Errorf("failed to fetch option chain: %w", err))
	}
	summary.Expiry = chain.Expiry
	summary.Spot = chain.Spot
	r.metrics.ObserveSpot(chain.Spot)
	if len(chain.Observations) == 0 {
		return finish(metrics.ResultFailed, ErrNoRows)
	}

	previous, info := r.store.Load(ctx)
	if info.Migrated {
		r.metrics.ObserveMigration()
	}

	batch := delta.Compute(chain.Observations, previous)
	rows := batch.Rows()
	summary.Rows = len(rows)
	summary.SkippedRows = len(batch.Skipped())
	r.metrics.ObserveRows(summary.Rows, summary.SkippedRows)
	for _, s := range batch.Skipped() {
		log.WithField("strike", s.Strike).Warn("Skipped row: " + s.Reason)
	}
	if len(rows) == 0 {
		return finish(metrics.ResultFailed, ErrNoRows)
	}

	summary.Saved = r.store.Save(ctx, batch.Observations())
	if !summary.Saved {
		r.metrics.ObserveSaveFailure()
	}

	asm := r.assembler.ForExpiry(chain.Expiry)
	for i, side := range []models.Side{models.Call, models.Put} {
		if i > 0 {
			if err := sleep(ctx, r.cfg.MessageDelay); err != nil {
				return finish(metrics.ResultFailed, err)
			}
		}
		text := asm.Assemble(rows, side, chain.Spot, r.cfg.TopN)
		err := r.sink.Send(ctx, text)
		r.metrics.ObserveMessage(side.Code(), err)
		if err != nil {
			summary.SendFailures++
			log.WithError(err).Warnf("Failed to send %s report", side.Code())
			continue
		}
		summary.Sent++
	}

	log.WithFields(logger.Fields{
		"expiry":  summary.Expiry,
		"rows":    summary.Rows,
		"skipped": summary.SkippedRows,
		"sent":    summary.Sent,
	}).Info("Cycle complete")
	return finish(metrics.ResultOK, nil)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
