package controller

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/reconcile"
)

// FormatResult returns a human-readable summary of a run.
func FormatResult(r RunResult) string {
	var b strings.Builder

	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(&b, "DNS sync %s: %s%s\n", r.Name, r.Outcome(), mode)
	fmt.Fprintf(&b, "  Started: %s (%s)\n", r.Started.Format("2006-01-02 15:04:05"), r.Duration.Round(time.Millisecond))

	if r.Err != nil {
		fmt.Fprintf(&b, "  Error: %v\n", r.Err)
	}
	if r.Rows > 0 {
		fmt.Fprintf(&b, "  Rows: %d (dropped %d)\n", r.Rows, r.Dropped)
	}

	// Buckets
	if len(r.Buckets) > 0 {
		fmt.Fprintf(&b, "  Buckets:\n")
		for _, k := range r.Buckets.Keys() {
			fmt.Fprintf(&b, "    - %s: %d\n", k, len(r.Buckets[k]))
		}
	}

	if r.Zone.ID != "" {
		fmt.Fprintf(&b, "  Zone: %s (%s)\n", r.Zone.Name, r.Zone.ID)
	}

	// Actions
	if len(r.Report.Results) > 0 {
		fmt.Fprintf(&b, "  Actions: %s\n", countsLine(r.Report))
		for _, res := range r.Report.Results {
			fmt.Fprintf(&b, "    - %s %s", res.Action.Kind, res.Action.Record.Triple())
			switch {
			case res.Err != nil:
				fmt.Fprintf(&b, " FAILED: %v", res.Err)
			case res.Skipped:
				fmt.Fprintf(&b, " skipped")
			case res.RecordID != "":
				fmt.Fprintf(&b, " id=%s", res.RecordID)
			}
			if len(res.Action.Stale) > 0 {
				fmt.Fprintf(&b, " stale=%s", strings.Join(res.Action.Stale, ","))
			}
			fmt.Fprintln(&b)
		}
	}

	return b.String()
}

func countsLine(r reconcile.Report) string {
	attempted, succeeded, failed := r.Counts()
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d", attempted, succeeded, failed)
}
