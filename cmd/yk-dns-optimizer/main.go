package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/controller"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/notify"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/report"
	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/source"
)

var Version = "dev"

func main() {
	var (
		once   bool
		dryRun bool
		dotenv string
		opts   = zap.Options{Development: true}
	)
	flag.BoolVar(&once, "once", false, "Run a single sync and exit with its status.")
	flag.BoolVar(&dryRun, "dry-run", false, "Plan changes without sending them to the DNS provider.")
	flag.StringVar(&dotenv, "env-file", ".env", "Optional dotenv file loaded before reading the environment.")
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	code, err := run(once, dryRun, dotenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(controller.ExitFatal)
	}
	os.Exit(code)
}

func run(once, dryRun bool, dotenv string) (int, error) {
	log := ctrl.Log.WithName("setup")
	log.Info("starting yk-dns-optimizer", "version", Version)

	env, err := config.LoadEnv(dotenv)
	if err != nil {
		return 0, fmt.Errorf("unable to read environment: %w", err)
	}

	syncCfg, err := config.LoadSyncConfig(env.SyncConfigPath)
	if err != nil {
		return 0, fmt.Errorf("unable to load sync config: %w", err)
	}
	log.Info("loaded sync config", "path", env.SyncConfigPath, "record", syncCfg.RecordName())

	providerCfg, err := config.LoadProviderConfig(env.ProviderConfigPath)
	if err != nil {
		return 0, fmt.Errorf("unable to load provider config: %w", err)
	}
	log.Info("loaded provider config", "provider", providerCfg.Provider)

	dnsProvider, err := dns.NewProvider(providerCfg.Provider, ctrl.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
	if err != nil {
		return 0, fmt.Errorf("unable to create DNS provider: %w", err)
	}

	notifier, err := notify.New(ctrl.Log.WithName("notify"), syncCfg.Notify)
	if err != nil {
		return 0, fmt.Errorf("unable to create notifier: %w", err)
	}

	c := &controller.SyncController{
		Log:    ctrl.Log.WithName("sync-controller"),
		Config: syncCfg,
		Source: &source.HTTPSource{
			Log:     ctrl.Log.WithName("source"),
			URL:     syncCfg.Source.URL,
			Format:  syncCfg.Source.Format,
			Timeout: syncCfg.Source.Timeout,
		},
		Provider: dnsProvider,
		Zones:    dns.NewZoneResolver(ctrl.Log.WithName("zones"), dnsProvider, 0, 0),
		Notifier: notifier,
		DryRun:   dryRun || syncCfg.DryRun,
	}
	if syncCfg.Report.JSONPath != "" || syncCfg.Report.TextPath != "" {
		c.Reports = &report.Writer{
			Log:      ctrl.Log.WithName("report"),
			JSONPath: syncCfg.Report.JSONPath,
			TextPath: syncCfg.Report.TextPath,
		}
	}

	ctx := ctrl.SetupSignalHandler()

	if once {
		res := c.Run(ctx)
		fmt.Print(controller.FormatResult(res))
		return res.ExitCode(), nil
	}

	return 0, serve(ctx, c, env, syncCfg.Interval)
}

// serve runs the sync loop next to the metrics and health endpoints until
// ctx is cancelled.
func serve(ctx context.Context, c *controller.SyncController, env *config.Env, interval time.Duration) error {
	log := ctrl.Log.WithName("setup")

	metrics, err := metricsserver.NewServer(metricsserver.Options{BindAddress: env.MetricsAddr}, nil, nil)
	if err != nil {
		return fmt.Errorf("unable to create metrics server: %w", err)
	}

	checks := &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}}
	mux := http.NewServeMux()
	mux.Handle("/healthz", http.StripPrefix("/healthz", checks))
	mux.Handle("/healthz/", http.StripPrefix("/healthz", checks))
	mux.Handle("/readyz", http.StripPrefix("/readyz", checks))
	mux.Handle("/readyz/", http.StripPrefix("/readyz", checks))
	probes := &http.Server{Addr: env.ProbeAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Start(ctx)
	})
	g.Go(func() error {
		log.Info("serving health probes", "addr", env.ProbeAddr)
		if err := probes.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health probe server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return probes.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("starting sync loop", "interval", interval.String())
		c.Start(ctx, interval)
		return nil
	})

	return g.Wait()
}
