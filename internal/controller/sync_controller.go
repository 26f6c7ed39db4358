package controller

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/desired"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/notify"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/reconcile"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/report"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/selector"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/source"
)

// Exit codes of a run.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 3
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// SyncController runs the fetch, select and reconcile pipeline for one record name.
type SyncController struct {
	Log      logr.Logger
	Config   *config.SyncConfig
	Source   source.Source
	Provider dns.Provider
	Zones    *dns.ZoneResolver
	// Reports and Notifier are optional.
	Reports  *report.Writer
	Notifier notify.Notifier
	DryRun   bool
}

// RunResult summarizes one run.
type RunResult struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Rows     int
	Dropped  int
	Buckets  selector.Buckets
	Desired  []dns.DesiredRecord
	Zone     dns.Zone
	Report   reconcile.Report
	DryRun   bool
	// Err is set when the run stopped before reconciling.
	Err error
}

// Outcome classifies the run.
func (r RunResult) Outcome() string {
	switch {
	case r.Err != nil:
		return OutcomeFailed
	case r.Report.Err() != nil:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// ExitCode maps the outcome to the process exit code.
func (r RunResult) ExitCode() int {
	switch r.Outcome() {
	case OutcomeFailed:
		return ExitFatal
	case OutcomePartial:
		return ExitPartial
	default:
		return ExitOK
	}
}

// Run performs one full pass. It never panics on provider or source errors;
// everything ends up in the result.
func (c *SyncController) Run(ctx context.Context) (res RunResult) {
	res = RunResult{
		Name:    c.Config.RecordName(),
		Started: time.Now(),
		DryRun:  c.DryRun,
	}
	log := c.Log.WithValues("record", res.Name)
	log.Info("starting run", "dryRun", c.DryRun)

	defer func() {
		res.Duration = time.Since(res.Started)
		c.observe(res)
	}()

	rows, err := c.Source.Rows(ctx)
	if err != nil {
		res.Err = err
		log.Error(err, "unable to read measurements")
		return res
	}
	res.Rows = len(rows)

	normalizer := measure.NewNormalizer(log.WithName("normalizer"), extraTags(c.Config)...)
	var endpoints []measure.Endpoint
	for ep := range normalizer.Endpoints(slices.Values(rows)) {
		endpoints = append(endpoints, ep)
	}
	res.Dropped = normalizer.Stats().Dropped
	if res.Rows > 0 && res.Dropped == res.Rows {
		res.Err = fmt.Errorf("%w: none of %d rows could be parsed", source.ErrSourceUnavailable, res.Rows)
		log.Error(res.Err, "unable to read measurements")
		return res
	}

	res.Buckets = selector.Select(slices.Values(endpoints), c.Config.MaxPerLine)
	for _, k := range res.Buckets.Keys() {
		log.Info("selected addresses", "bucket", k.String(), "count", len(res.Buckets[k]))
	}

	builder := &desired.Builder{
		Log:        log.WithName("builder"),
		Name:       res.Name,
		TTL:        c.Config.TTL,
		MaxPerLine: c.Config.MaxPerLine,
		Lines:      config.NewLineMap(c.Config.Lines),
		Families:   families(c.Config),
	}
	res.Desired = builder.Build(res.Buckets)

	// From here on the measurements are known: reports and notifications
	// are produced whatever the DNS side does.
	defer c.publish(ctx, log, &res, endpoints)

	if len(res.Desired) == 0 {
		log.Info("no eligible addresses, leaving records untouched")
		return res
	}

	zone, err := c.Zones.Resolve(ctx, res.Name)
	if err != nil {
		res.Err = err
		log.Error(err, "unable to resolve zone")
		return res
	}
	res.Zone = zone

	r := &reconcile.Reconciler{
		Log:         log.WithName("reconciler").WithValues("zone", zone.Name),
		Provider:    c.Provider,
		Concurrency: c.Config.Concurrency,
		DryRun:      c.DryRun,
	}
	res.Report = r.Reconcile(ctx, zone.ID, res.Desired)

	attempted, succeeded, failed := res.Report.Counts()
	log.Info("run finished", "buckets", len(res.Buckets), "records", len(res.Desired),
		"attempted", attempted, "succeeded", succeeded, "failed", failed)
	return res
}

// Start runs the controller every interval until ctx is done.
func (c *SyncController) Start(ctx context.Context, interval time.Duration) {
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		res := c.Run(ctx)
		if res.ExitCode() != ExitOK {
			c.Log.Info("run did not complete cleanly, retrying at next interval",
				"outcome", res.Outcome(), "interval", interval.String())
		}
	}, interval)
}

func (c *SyncController) publish(ctx context.Context, log logr.Logger, res *RunResult, endpoints []measure.Endpoint) {
	res.Duration = time.Since(res.Started)
	if c.Reports != nil {
		if err := c.Reports.Write(res.Buckets, endpoints); err != nil {
			log.Error(err, "unable to write report")
		}
	}
	if c.Notifier != nil {
		// The run context may already be cancelled; still try to deliver.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := c.Notifier.Notify(nctx, FormatResult(*res)); err != nil {
			log.Error(err, "unable to send notification")
		}
	}
}

func (c *SyncController) observe(res RunResult) {
	metrics.Runs.WithLabelValues(res.Outcome()).Inc()
	metrics.RunDuration.Observe(res.Duration.Seconds())
	metrics.RowsDropped.Add(float64(res.Dropped))

	metrics.Selected.Reset()
	for k, addrs := range res.Buckets {
		metrics.Selected.WithLabelValues(k.String()).Set(float64(len(addrs)))
	}
	for _, r := range res.Report.Results {
		outcome := "ok"
		switch {
		case r.Err != nil:
			outcome = "failed"
		case r.Skipped:
			outcome = "skipped"
		}
		metrics.Actions.WithLabelValues(r.Action.Kind.String(), outcome).Inc()
	}
	if res.Outcome() == OutcomeSuccess {
		metrics.LastSuccess.SetToCurrentTime()
	}
}

// extraTags are configured line tags beyond the built-in ones.
func extraTags(cfg *config.SyncConfig) []string {
	var tags []string
	for _, tag := range config.NewLineMap(cfg.Lines).Tags() {
		if !measure.Line(tag).IsCarrier() && tag != config.DefaultTag {
			tags = append(tags, tag)
		}
	}
	return tags
}

func families(cfg *config.SyncConfig) []measure.Family {
	var out []measure.Family
	for _, f := range []measure.Family{measure.IPv4, measure.IPv6} {
		if cfg.FamilyEnabled(string(f)) {
			out = append(out, f)
		}
	}
	return out
}
