package sync

import (
	"fmt"
	"strings"
	"time"
)

// Result summarizes a finished (or failed) sync operation for callers
// and CLI output.
type Result struct {
	OperationID string        `json:"operation_id" yaml:"operation_id"`
	FabricID    string        `json:"fabric_id" yaml:"fabric_id"`
	Direction   Direction     `json:"direction" yaml:"direction"`
	Phase       Phase         `json:"phase" yaml:"phase"`
	Counts      Counts        `json:"counts" yaml:"counts"`
	Duration    time.Duration `json:"duration" yaml:"duration"`

	// Outcomes carries the per-resource detail, in recording order.
	Outcomes []ResourceOutcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`

	// Blocking lists conflict IDs still holding resources in Pending.
	Blocking []string `json:"blocking_conflicts,omitempty" yaml:"blocking_conflicts,omitempty"`

	Failure string `json:"failure,omitempty" yaml:"failure,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// NewResult builds a Result from an operation snapshot.
func NewResult(op *Operation, dryRun bool) *Result {
	return ResultFromSnapshot(op.Snapshot(), dryRun)
}

// ResultFromSnapshot builds a Result from an already-taken snapshot.
func ResultFromSnapshot(snap Snapshot, dryRun bool) *Result {
	r := &Result{
		OperationID: snap.ID,
		FabricID:    snap.FabricID,
		Direction:   snap.Direction,
		Phase:       snap.Phase,
		Counts:      snap.Counts,
		Outcomes:    snap.Outcomes,
		Blocking:    snap.Blocking,
		Failure:     snap.Failure,
		DryRun:      dryRun,
	}
	if snap.FinishedAt != nil {
		r.Duration = snap.FinishedAt.Sub(snap.StartedAt)
	}
	return r
}

// Success reports whether the run completed with no errored resources.
func (r *Result) Success() bool {
	return r.Phase == PhaseCompleted && r.Counts.Errored == 0
}

// HasConflicts reports whether unresolved conflicts remain.
func (r *Result) HasConflicts() bool {
	return len(r.Blocking) > 0
}

// Summary renders a short human-readable report.
func (r *Result) Summary() string {
	var b strings.Builder

	label := "Sync"
	if r.DryRun {
		label = "Dry-run sync"
	}
	fmt.Fprintf(&b, "%s %s (%s, %s): %s", label, r.OperationID, r.FabricID, r.Direction, r.Phase)
	if r.Duration > 0 {
		fmt.Fprintf(&b, " in %s", r.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n")

	c := r.Counts
	fmt.Fprintf(&b, "  %d resources: %d created, %d updated, %d deleted, %d skipped\n",
		c.Total(), c.Created, c.Updated, c.Deleted, c.Skipped)
	if c.AutoReconciled > 0 {
		fmt.Fprintf(&b, "  %d auto-reconciled\n", c.AutoReconciled)
	}
	if c.Orphaned > 0 {
		fmt.Fprintf(&b, "  %d orphaned (awaiting recovery)\n", c.Orphaned)
	}
	if c.Conflicted > 0 {
		fmt.Fprintf(&b, "  %d conflicted (%d awaiting resolution)\n", c.Conflicted, len(r.Blocking))
	}
	if c.Errored > 0 {
		fmt.Fprintf(&b, "  %d errored:\n", c.Errored)
		for _, out := range r.Outcomes {
			if out.Kind == OutcomeErrored {
				fmt.Fprintf(&b, "    %s: %s\n", out.Resource, out.Error)
			}
		}
	}
	if r.Failure != "" {
		fmt.Fprintf(&b, "  failure: %s\n", r.Failure)
	}
	return b.String()
}
