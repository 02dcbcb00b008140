// Package main is the orchestratord daemon entrypoint: it loads
// configuration, constructs the C1-C7 components, loads policies from
// disk, serves the admin event-ingestion endpoint, and runs until
// signalled, exporting the execution ledger and metrics snapshot on
// shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/config"
	"github.com/haltline/haltd/events"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/ledger"
	"github.com/haltline/haltd/ledger/s3sink"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/matcher"
	"github.com/haltline/haltd/metrics"
	"github.com/haltline/haltd/policy"
	"github.com/haltline/haltd/runtime"
	"github.com/haltline/haltd/types"
)

const exitCrash = 1

func main() {
	app := &cli.App{
		Name:           "orchestratord",
		Usage:          "UPS-aware infrastructure orchestrator daemon",
		Version:        "0.1.0",
		Commands:       []*cli.Command{runCommand()},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCrash)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCrash)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the orchestrator daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to orchestrator.yaml", Required: true},
			&cli.StringFlag{Name: "policies", Usage: "Directory of policy spec YAML files", Required: true},
			&cli.StringFlag{Name: "addr", Usage: "Admin HTTP listen address", Value: ":8090"},
			&cli.StringFlag{Name: "instance-id", Usage: "Identity tagged onto emitted metrics", Value: hostnameOrDefault()},
			&cli.StringFlag{Name: "ledger-export", Usage: "Path to write the ledger export on shutdown"},
			&cli.StringFlag{Name: "stats-export", Usage: "Path to write the metrics snapshot on shutdown"},
			&cli.StringFlag{Name: "s3-bucket", Usage: "S3 bucket for durable ledger export (optional)"},
			&cli.StringFlag{Name: "s3-prefix", Usage: "S3 key prefix for durable ledger export"},
			&cli.StringFlag{Name: "s3-region", Usage: "S3 region for durable ledger export"},
			&cli.StringFlag{Name: "s3-endpoint", Usage: "Custom S3 endpoint (for S3-compatible providers)"},
			&cli.BoolFlag{Name: "s3-path-style", Usage: "Use path-style S3 addressing"},
		},
		Action: runAction,
	}
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil {
		return "orchestrator"
	}
	return h
}

func runAction(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New(log.Context{})
	collector := metrics.NewCollector(c.String("instance-id"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitCrash)
	}
	cfg.ApplyDefaults()

	driverLookup, err := buildDriverLookup(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("build driver lookup: %v", err), exitCrash)
	}

	inv := inventory.New(inventory.Config{
		InventoryTTL:        cfg.InventoryTTL.Duration,
		CapabilityTTL:       cfg.CapabilityTTL.Duration,
		InventoryRefreshSLA: cfg.InventoryRefreshSLA.Duration,
	}, driverLookup, logger)

	led := ledger.New(cfg.HistoryPerPolicy)

	sink, err := buildS3Sink(ctx, c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("build s3 sink: %v", err), exitCrash)
	}
	if sink != nil {
		led.OnEvict(sink.Append)
	}

	reg := policy.NewRegistry()
	compiler := policy.NewCompiler(inv)
	if err := loadPolicies(ctx, c.String("policies"), compiler, reg, logger, collector); err != nil {
		return cli.Exit(fmt.Sprintf("load policies: %v", err), exitCrash)
	}

	engine := runtime.New(runtime.Config{
		GlobalConcurrency: cfg.GlobalConcurrency,
		PerHostQueueDepth: cfg.PerHostQueueDepth,
		WorkerIdleTimeout: cfg.WorkerIdleTimeout.Duration,
		ResolutionSLA:     cfg.InventoryRefreshSLA.Duration,
	}, inv, led, driverLookup, logger, collector)
	defer engine.Shutdown()

	resolver := newStateResolver()
	m := matcher.New(reg, led, engine, resolver, logger, collector)

	notif, err := buildNotifier(cfg.Notifier)
	if err != nil {
		return cli.Exit(fmt.Sprintf("build notifier: %v", err), exitCrash)
	}
	if notif != nil {
		defer func() { _ = notif.Close() }()
	}

	srv := &eventServer{
		normaliser: events.New(),
		matcher:    m,
		resolver:   resolver,
		notif:      notif,
		logger:     logger,
	}
	httpServer := &http.Server{Addr: c.String("addr"), Handler: srv.routes()}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("admin server listening", map[string]any{"addr": c.String("addr")})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		logger.Info("shutdown signal received", nil)
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error("admin server failed", map[string]any{"error": runErr.Error()})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if sink != nil {
		if err := sink.Flush(shutdownCtx); err != nil {
			logger.Error("final s3 flush failed", map[string]any{"error": err.Error()})
		}
	}

	if path := c.String("ledger-export"); path != "" {
		if err := exportLedger(led, reg, path); err != nil {
			logger.Error("ledger export failed", map[string]any{"error": err.Error()})
		}
	}
	if path := c.String("stats-export"); path != "" {
		if err := exportSnapshot(collector.Snapshot(), path); err != nil {
			logger.Error("stats export failed", map[string]any{"error": err.Error()})
		}
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), exitCrash)
	}
	return nil
}

func buildS3Sink(ctx context.Context, c *cli.Context) (*s3sink.Sink, error) {
	bucket := c.String("s3-bucket")
	if bucket == "" {
		return nil, nil
	}
	return s3sink.New(ctx, s3sink.Config{
		Bucket:       bucket,
		Prefix:       c.String("s3-prefix"),
		Region:       c.String("s3-region"),
		Endpoint:     c.String("s3-endpoint"),
		UsePathStyle: c.Bool("s3-path-style"),
	})
}

// exportLedger writes every currently-held execution record, across every
// registered policy, as a JSON array — the shape orchestratorctl's
// inspect command reads back.
func exportLedger(led *ledger.Ledger, reg *policy.Registry, path string) error {
	var all []types.ExecutionRecord
	for _, ir := range reg.All() {
		all = append(all, led.Since(ir.PolicyID, time.Time{})...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}

// exportSnapshot writes the final metrics snapshot — the shape
// orchestratorctl's stats command reads back.
func exportSnapshot(snap metrics.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
