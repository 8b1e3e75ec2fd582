package models

import (
	"sort"
	"time"
)

// TargetState is a position in a target's lifecycle
type TargetState string

const (
	StatePending     TargetState = "PENDING"
	StateRateGated   TargetState = "RATE_GATED"
	StateFetching    TargetState = "FETCHING"
	StateParsing     TargetState = "PARSING"
	StateNormalizing TargetState = "NORMALIZING"
	StatePersisting  TargetState = "PERSISTING"
	StateDone        TargetState = "DONE"
	StateFailed      TargetState = "FAILED"
)

// Terminal reports whether no further transitions can happen
func (s TargetState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TargetOutcome is the terminal result of one target
type TargetOutcome struct {
	Index       int              `json:"index"`
	Target      ExtractionTarget `json:"target"`
	State       TargetState      `json:"state"`
	FailedAt    TargetState      `json:"failed_at,omitempty"`
	FailureKind string           `json:"failure_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	Attempts    int              `json:"attempts"`
	Records     int              `json:"records"`
	Skipped     int              `json:"skipped,omitempty"`
	Identifiers []string         `json:"identifiers,omitempty"`
	Duration    time.Duration    `json:"duration_ns"`
}

// Succeeded reports whether the target reached DONE
func (o TargetOutcome) Succeeded() bool {
	return o.State == StateDone
}

// BatchReport collects one outcome per target, in input order
type BatchReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcomes   []TargetOutcome `json:"outcomes"`
}

// Done counts targets that reached DONE
func (r *BatchReport) Done() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == StateDone {
			n++
		}
	}
	return n
}

// Failed counts failed targets
func (r *BatchReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			n++
		}
	}
	return n
}

// Records counts records persisted across all targets
func (r *BatchReport) Records() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Records
	}
	return n
}

// FailuresByKind groups failed targets by failure kind
func (r *BatchReport) FailuresByKind() map[string]int {
	out := make(map[string]int)
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			out[o.FailureKind]++
		}
	}
	return out
}

// FailureKinds returns the distinct failure kinds, sorted
func (r *BatchReport) FailureKinds() []string {
	byKind := r.FailuresByKind()
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Duration is the wall time of the batch
func (r *BatchReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
