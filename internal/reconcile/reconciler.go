package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
)

// DefaultBackoff is used for transient provider failures.
var DefaultBackoff = wait.Backoff{
	Steps:    3,
	Duration: 500 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// Result is the outcome of one action.
type Result struct {
	Action Action
	// RecordID is the id the provider reported for a create, or the target
	// of an update or no-op.
	RecordID string
	Err      error
	// Skipped is set when the action was planned but not sent (dry run).
	Skipped bool
}

// Failed reports whether the action was attempted and failed.
func (r Result) Failed() bool { return r.Err != nil }

// Report collects the results of one reconciliation.
type Report struct {
	Results []Result
}

// Counts returns how many non-noop actions were attempted, succeeded and failed.
func (r Report) Counts() (attempted, succeeded, failed int) {
	for _, res := range r.Results {
		if res.Skipped || (res.Action.Kind == NoOp && res.Err == nil) {
			continue
		}
		attempted++
		if res.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return attempted, succeeded, failed
}

// Err aggregates the failures of the report, or nil when every action succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", res.Action.Kind, res.Action.Record.Triple(), res.Err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Reconciler brings a zone's records in line with the desired set. It never
// deletes records.
type Reconciler struct {
	Log         logr.Logger
	Provider    dns.Provider
	Concurrency int
	Backoff     wait.Backoff
	DryRun      bool
}

func (r *Reconciler) limit() int {
	if r.Concurrency <= 0 {
		return 1
	}
	return r.Concurrency
}

func (r *Reconciler) backoff() wait.Backoff {
	if r.Backoff.Steps == 0 {
		return DefaultBackoff
	}
	return r.Backoff
}

// Reconcile fetches the live state of every desired triple, plans and
// applies. A failure on one triple never stops the others.
func (r *Reconciler) Reconcile(ctx context.Context, zoneID string, desired []dns.DesiredRecord) Report {
	snap, listErrs := r.FetchSnapshot(ctx, zoneID, desired)

	var (
		plannable []dns.DesiredRecord
		failed    []Result
	)
	for _, rec := range desired {
		if err, ok := listErrs[rec.Triple()]; ok {
			failed = append(failed, Result{Action: Action{Kind: List, Record: rec}, Err: err})
			continue
		}
		plannable = append(plannable, rec)
	}

	actions := Plan(plannable, snap)
	for _, a := range actions {
		if len(a.Stale) > 0 {
			r.Log.Info("multiple live records on one line, updating the first only",
				"anomaly", "ambiguous-live-state",
				"record", a.Record.Triple().String(),
				"target", a.TargetID,
				"stale", a.Stale)
		}
	}

	report := r.Apply(ctx, zoneID, actions)
	report.Results = append(report.Results, failed...)
	return report
}

// FetchSnapshot lists live records for each desired triple. Triples whose
// listing failed are returned in the error map instead of the snapshot.
func (r *Reconciler) FetchSnapshot(ctx context.Context, zoneID string, desired []dns.DesiredRecord) (Snapshot, map[dns.Triple]error) {
	var (
		mu   sync.Mutex
		snap = make(Snapshot, len(desired))
		errs = make(map[dns.Triple]error)
		g    errgroup.Group
	)
	g.SetLimit(r.limit())

	for _, rec := range desired {
		t := rec.Triple()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs[t] = err
				mu.Unlock()
				return nil
			}

			var live []dns.LiveRecord
			err := retry.OnError(r.backoff(), dns.IsTransient, func() error {
				var err error
				live, err = r.Provider.ListRecords(ctx, zoneID, t)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[t] = fmt.Errorf("listing records: %w", err)
				return nil
			}
			var kept []dns.LiveRecord
			for _, lr := range live {
				if matches(t, lr) {
					kept = append(kept, lr)
				}
			}
			snap[t] = kept
			return nil
		})
	}
	_ = g.Wait()
	return snap, errs
}

// Apply executes the actions in parallel. Each action succeeds or fails on
// its own; once ctx is done no further provider calls are issued.
func (r *Reconciler) Apply(ctx context.Context, zoneID string, actions []Action) Report {
	results := make([]Result, len(actions))
	var g errgroup.Group
	g.SetLimit(r.limit())

	for i, a := range actions {
		g.Go(func() error {
			results[i] = r.applyOne(ctx, zoneID, a)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Results: results}
}

func (r *Reconciler) applyOne(ctx context.Context, zoneID string, a Action) Result {
	res := Result{Action: a, RecordID: a.TargetID}
	log := r.Log.WithValues("record", a.Record.Triple().String(), "action", a.Kind.String())

	if a.Kind == NoOp {
		log.V(1).Info("record up to date, skipping", "values", a.Record.Values)
		return res
	}
	if r.DryRun {
		log.Info("dry run, not applying", "values", a.Record.Values, "current", a.Current)
		res.Skipped = true
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	res.Err = retry.OnError(r.backoff(), dns.IsTransient, func() error {
		switch a.Kind {
		case Create:
			id, err := r.Provider.CreateRecord(ctx, zoneID, a.Record)
			res.RecordID = id
			return err
		case Update:
			return r.Provider.UpdateRecord(ctx, zoneID, a.TargetID, a.Record)
		}
		return nil
	})

	if res.Err != nil {
		log.Error(res.Err, "failed to apply record")
		return res
	}
	log.Info("applied record", "id", res.RecordID, "values", a.Record.Values)
	return res
}
