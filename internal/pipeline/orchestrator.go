// Package pipeline drives batches of extraction targets through their
// strategies and into the sink.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/law-makers/harvest/internal/engine"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/retry"
	"github.com/law-makers/harvest/internal/store"
	"github.com/law-makers/harvest/pkg/models"
)

// Config controls concurrency and retries. CallTimeout bounds one strategy
// call or sink write, which batch cancellation does not interrupt.
type Config struct {
	Workers     int
	Retry       retry.Config
	CallTimeout time.Duration
}

// Orchestrator runs targets on a fixed-size worker pool. It holds no state
// between runs and may be reused.
type Orchestrator struct {
	strategies map[models.SourceKind]engine.Strategy
	sink       store.Sink
	cfg        Config
	now        func() time.Time
}

// New creates an orchestrator with dependency injection
func New(sink store.Sink, cfg Config, strategies ...engine.Strategy) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Workers > 64 {
		cfg.Workers = 64
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	o := &Orchestrator{
		strategies: make(map[models.SourceKind]engine.Strategy, len(strategies)),
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, s := range strategies {
		o.strategies[s.Kind()] = s
	}
	return o
}

// Strategy returns the strategy registered for kind
func (o *Orchestrator) Strategy(kind models.SourceKind) (engine.Strategy, bool) {
	s, ok := o.strategies[kind]
	return s, ok
}

// Option customizes one Run
type Option func(*runOptions)

type runOptions struct {
	observer  func(models.TargetOutcome)
	errorSink store.ErrorWriter
}

// WithObserver is called once per target as it reaches a terminal state.
// Calls are serialized.
func WithObserver(fn func(models.TargetOutcome)) Option {
	return func(o *runOptions) { o.observer = fn }
}

// WithErrorSink records every failed target, e.g. as JSON error files
func WithErrorSink(w store.ErrorWriter) Option {
	return func(o *runOptions) { o.errorSink = w }
}

// Run processes every target and returns one outcome per target in input
// order. A failing target never stops the others. When ctx is canceled no
// new targets are started; targets that never started are reported as
// FAILED(CANCELED) at PENDING. A running target finishes its current fetch
// or write and fails with CANCELED at the next stage boundary.
func (o *Orchestrator) Run(ctx context.Context, targets []models.ExtractionTarget, opts ...Option) *models.BatchReport {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	report := &models.BatchReport{
		RunID:     uuid.New().String(),
		StartedAt: o.now(),
		Outcomes:  make([]models.TargetOutcome, len(targets)),
	}
	runLog := log.With().Str("run_id", report.RunID).Logger()
	runLog.Info().
		Int("targets", len(targets)).
		Int("workers", o.cfg.Workers).
		Msg("Batch started")

	var mu sync.Mutex
	finished := make([]bool, len(targets))
	record := func(out models.TargetOutcome) {
		mu.Lock()
		defer mu.Unlock()
		report.Outcomes[out.Index] = out
		finished[out.Index] = true
		if out.State == models.StateFailed && ro.errorSink != nil {
			if err := ro.errorSink.WriteError(out.Target, fmt.Errorf("%s", out.Error)); err != nil {
				runLog.Warn().Err(err).Str("target", out.Target.String()).Msg("Failed to record target error")
			}
		}
		if c, ok := ro.errorSink.(store.ErrorClearer); ok && out.State == models.StateDone {
			if err := c.ClearError(out.Target); err != nil {
				runLog.Warn().Err(err).Str("target", out.Target.String()).Msg("Failed to clear target error")
			}
		}
		if ro.observer != nil {
			ro.observer(out)
		}
	}

	jobs := make(chan int)
	var g errgroup.Group
	workers := o.cfg.Workers
	if workers > len(targets) {
		workers = len(targets)
	}
	for w := 1; w <= workers; w++ {
		id := w
		g.Go(func() error {
			runLog.Debug().Int("worker_id", id).Msg("Worker started")
			for idx := range jobs {
				record(o.process(ctx, idx, targets[idx]))
			}
			runLog.Debug().Int("worker_id", id).Msg("Worker finished")
			return nil
		})
	}

dispatch:
	for idx := range targets {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	g.Wait()

	for idx, t := range targets {
		if finished[idx] {
			continue
		}
		record(models.TargetOutcome{
			Index:       idx,
			Target:      t,
			State:       models.StateFailed,
			FailedAt:    models.StatePending,
			FailureKind: string(fault.KindCanceled),
			Error:       "batch canceled before the target started",
		})
	}

	report.FinishedAt = o.now()
	runLog.Info().
		Int("done", report.Done()).
		Int("failed", report.Failed()).
		Int("records", report.Records()).
		Dur("duration", report.Duration()).
		Msg("Batch finished")
	return report
}

// RunOne processes a single target synchronously
func (o *Orchestrator) RunOne(ctx context.Context, target models.ExtractionTarget) models.TargetOutcome {
	return o.process(ctx, 0, target)
}

// process walks one target through its state machine
func (o *Orchestrator) process(ctx context.Context, idx int, target models.ExtractionTarget) models.TargetOutcome {
	start := o.now()
	out := models.TargetOutcome{Index: idx, Target: target, State: models.StatePending}
	tlog := log.With().Str("target", target.String()).Logger()

	state := models.StatePending
	transition := func(s models.TargetState) {
		if s == state {
			return
		}
		tlog.Debug().Str("from", string(state)).Str("state", string(s)).Msg("Target state")
		state = s
	}
	fail := func(err error) models.TargetOutcome {
		out.State = models.StateFailed
		out.FailedAt = state
		out.FailureKind = string(fault.KindOf(err))
		out.Error = err.Error()
		out.Duration = o.now().Sub(start)
		tlog.Warn().
			Err(err).
			Str("fault", out.FailureKind).
			Str("failed_at", string(state)).
			Int("attempts", out.Attempts).
			Msg("Target failed")
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(fault.FromContext(fault.DomainExtraction, err))
	}

	strategy, ok := o.strategies[target.SourceKind]
	if !ok {
		return fail(fault.Extraction(fault.KindUnknown,
			fmt.Sprintf("no strategy registered for %q", target.SourceKind), nil))
	}

	sctx := engine.WithStageReporter(ctx, transition)
	sctx = engine.WithSkipCounter(sctx, func(n int) { out.Skipped += n })

	var records []*models.CanonicalRecord
	attempts, err := retry.Do(ctx, o.cfg.Retry, func(attempt int) error {
		if err := engine.Checkpoint(ctx); err != nil {
			return err
		}
		if attempt > 1 {
			tlog.Info().Int("attempt", attempt).Str("strategy", strategy.Name()).Msg("Retrying target")
			out.Skipped = 0
		}
		callCtx, cancel := engine.Detach(sctx, o.cfg.CallTimeout)
		defer cancel()
		var err error
		records, err = strategy.Extract(callCtx, target)
		return err
	})
	out.Attempts = attempts
	if err != nil {
		return fail(err)
	}
	if err := engine.Checkpoint(ctx); err != nil {
		return fail(err)
	}

	fetchedAt := o.now().UTC()
	transition(models.StatePersisting)
	for _, rec := range records {
		if rec == nil || rec.Identifier == "" {
			return fail(fault.Extraction(fault.KindMissingIdentifier, "record without identifier reached persistence", nil))
		}
		if rec.FetchedAt.IsZero() {
			rec.FetchedAt = fetchedAt
		}

		var ack store.Ack
		n, err := retry.Do(ctx, o.cfg.Retry, func(int) error {
			if err := engine.Checkpoint(ctx); err != nil {
				return err
			}
			writeCtx, cancel := engine.Detach(ctx, o.cfg.CallTimeout)
			defer cancel()
			var err error
			ack, err = o.sink.Upsert(writeCtx, rec)
			return err
		})
		out.Attempts += n - 1
		if err != nil {
			return fail(err)
		}
		out.Records++
		out.Identifiers = append(out.Identifiers, ack.Identifier)
		tlog.Debug().
			Str("collection", ack.Collection).
			Str("identifier", ack.Identifier).
			Bool("inserted", ack.Inserted).
			Msg("Record persisted")
	}

	transition(models.StateDone)
	out.State = models.StateDone
	out.Duration = o.now().Sub(start)
	return out
}
