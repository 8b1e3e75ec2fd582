// Package engine holds the extraction contract shared by every strategy and
// the normalization steps that turn raw fragments into canonical records.
package engine

import (
	"context"
	"time"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// Strategy extracts canonical records for one target. Single-entity sources
// return exactly one record; list sources may return zero or more.
type Strategy interface {
	// Name returns the name of the strategy implementation
	Name() string

	// Kind is the source kind this strategy serves
	Kind() models.SourceKind

	// Extract fetches, parses and normalizes the target
	Extract(ctx context.Context, target models.ExtractionTarget) ([]*models.CanonicalRecord, error)
}

// StageFunc is notified when a strategy moves a target to a new state
type StageFunc func(models.TargetState)

type stageKey struct{}

// WithStageReporter attaches a state callback to ctx
func WithStageReporter(ctx context.Context, fn StageFunc) context.Context {
	return context.WithValue(ctx, stageKey{}, fn)
}

// Stage reports a state transition if the caller asked for it
func Stage(ctx context.Context, state models.TargetState) {
	if fn, ok := ctx.Value(stageKey{}).(StageFunc); ok && fn != nil {
		fn(state)
	}
}

// SkipFunc is told how many list items a strategy dropped
type SkipFunc func(n int)

type skipKey struct{}

// WithSkipCounter attaches a skipped-item callback to ctx
func WithSkipCounter(ctx context.Context, fn SkipFunc) context.Context {
	return context.WithValue(ctx, skipKey{}, fn)
}

// Skipped reports items that were parsed but could not become records
func Skipped(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	if fn, ok := ctx.Value(skipKey{}).(SkipFunc); ok && fn != nil {
		fn(n)
	}
}

type batchKey struct{}

// Detach returns a context for one strategy call. It keeps the values of ctx
// but not its cancellation, so a request already on the wire completes; the
// call is bounded by timeout instead. Checkpoint still sees ctx.
func Detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	d := context.WithValue(context.WithoutCancel(ctx), batchKey{}, ctx)
	if timeout <= 0 {
		return context.WithCancel(d)
	}
	return context.WithTimeout(d, timeout)
}

// Checkpoint returns a CANCELED (or TIMEOUT) fault once the batch that owns
// ctx has stopped. Strategies call it between stages.
func Checkpoint(ctx context.Context) error {
	if err := Interruptible(ctx).Err(); err != nil {
		return fault.FromContext(fault.DomainExtraction, err)
	}
	return nil
}

// Interruptible returns the batch context behind a detached one, for waits
// that hold no request open such as rate admission
func Interruptible(ctx context.Context) context.Context {
	if parent, ok := ctx.Value(batchKey{}).(context.Context); ok && parent != nil {
		return parent
	}
	return ctx
}
