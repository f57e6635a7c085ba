package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/batch"
	"mercator-hq/exporter/pkg/export/mapper"
	"mercator-hq/exporter/pkg/export/retention"
	"mercator-hq/exporter/pkg/export/shapes"
	"mercator-hq/exporter/pkg/export/sink"
	"mercator-hq/exporter/pkg/export/spool"
	"mercator-hq/exporter/pkg/export/store"
	"mercator-hq/exporter/pkg/telemetry/health"
	"mercator-hq/exporter/pkg/telemetry/metrics"
)

const shutdownTimeout = 10 * time.Second

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled jobs, the spool watcher and retention",
	Long: `Run the export service until interrupted.

The service runs every configured job on its cron schedule, watches the
spool directory for raw record files when spool.enabled is set, prunes the
record store on retention.prune_schedule, and serves Prometheus metrics and
health endpoints on telemetry.metrics.listen_address.

Examples:
  # Start with a config file
  mercator-export run --config /etc/mercator/export.yaml

  # Override the metrics address
  mercator-export run --listen 0.0.0.0:9464

  # Validate the config and open every sink without starting
  mercator-export run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override metrics and health listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "open the store and sinks, then exit")
}

// service holds everything run starts, so it can be torn down in reverse.
type service struct {
	cfg      *config.Config
	metrics  *metrics.Collector
	store    store.Store
	sinks    map[string]*sink.Named
	mapper   *mapper.Mapper
	checker  *health.Checker
	jobs     *batch.Scheduler
	spool    *spool.Watcher
	pruning  *retention.Scheduler
	server   *http.Server
	serveErr chan error
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if runFlags.logLevel != "" {
			cfg.Telemetry.Logging.Level = runFlags.logLevel
		}
		if runFlags.listenAddress != "" {
			cfg.Telemetry.Metrics.ListenAddress = runFlags.listenAddress
		}
	})
	if err != nil {
		return err
	}

	flushTraces, err := setupTracing(cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Mercator Export v%s\n", Version)

	svc, err := newService(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer svc.close()
	color.New(color.FgGreen).Fprintf(w, "✓ Store and %d sinks ready\n", len(svc.sinks))

	if runFlags.dryRun {
		color.New(color.FgGreen).Fprintln(w, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	if err := svc.start(ctx); err != nil {
		return cli.NewCommandError("run", errors.Join(err, svc.shutdown()))
	}
	svc.printStatus(w)
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")

	select {
	case <-ctx.Done():
		fmt.Fprintln(w, "\nShutting down gracefully...")
	case err := <-svc.serveErr:
		return cli.NewCommandError("run", err)
	}

	if err := svc.shutdown(); err != nil {
		return cli.NewCommandError("run", err)
	}
	color.New(color.FgGreen).Fprintln(w, "✓ Stopped")
	return nil
}

func newService(cfg *config.Config) (*service, error) {
	svc := &service{
		cfg:      cfg,
		sinks:    map[string]*sink.Named{},
		checker:  health.New(cfg.Telemetry.Health.CheckTimeout),
		serveErr: make(chan error, 2),
	}
	if cfg.Telemetry.Metrics.Enabled {
		svc.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	st, err := store.Open(&cfg.Store, store.WithMetrics(svc.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	svc.store = st
	svc.checker.RegisterCriticalCheck("store", health.PingCheck(st))

	registry := shapes.MustRegistry()
	svc.mapper = mapper.New(registry, mapper.WithResolver(st))

	for _, sc := range cfg.Sinks {
		s, err := sink.Open(sc, registry, sink.WithMetrics(svc.metrics))
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.sinks[sc.Name] = s
		svc.checker.RegisterCheck("sink:"+sc.Name, health.PingCheck(s))
	}
	return svc, nil
}

// exporter builds a batch exporter writing to the named sinks. The sinks are
// shared and closed by the service, not by the exporter.
func (s *service) exporter(job string, sinkNames []string) *batch.Exporter {
	var out sink.Multi
	for _, name := range sinkNames {
		out = append(out, s.sinks[name])
	}
	return batch.New(s.mapper, out, batch.Config{
		Workers:  s.cfg.Export.Workers,
		Options:  s.cfg.Export.Options(),
		Job:      job,
		Validate: s.cfg.Export.ValidateRecords,
	}, batch.WithMetrics(s.metrics))
}

func (s *service) start(ctx context.Context) error {
	s.jobs = batch.NewScheduler()
	for _, jc := range s.cfg.Jobs {
		exp := s.exporter(jc.Name, jc.Sinks)
		job := batch.Job{
			Name:     jc.Name,
			Schedule: jc.Schedule,
			Run: func(ctx context.Context) (*batch.Report, error) {
				return exp.Export(ctx, store.Source(s.store, batch.JobQuery(jc, time.Now())))
			},
		}
		if err := s.jobs.Add(job); err != nil {
			return err
		}
	}
	if err := s.jobs.Start(ctx); err != nil {
		return err
	}
	if len(s.cfg.Jobs) > 0 {
		s.checker.RegisterCheck("jobs", health.RunningCheck("job scheduler", s.jobs.IsRunning))
	}

	if s.cfg.Spool.Enabled {
		var tee store.Store
		if s.cfg.Spool.Store {
			tee = s.store
		}
		w, err := spool.New(s.cfg.Spool,
			spool.ExportHandler(s.exporter("", s.cfg.Spool.Sinks), tee),
			spool.WithMetrics(s.metrics))
		if err != nil {
			return err
		}
		s.spool = w
		s.checker.RegisterCriticalCheck("spool", health.DirCheck(s.cfg.Spool.Dir))
		go func() {
			if err := w.Watch(ctx); err != nil {
				s.serveErr <- fmt.Errorf("spool watcher: %w", err)
			}
		}()
	}

	if r := s.cfg.Retention; r.PruneSchedule != "" && (r.Days > 0 || r.MaxRecords > 0) {
		s.pruning = retention.NewScheduler(retention.NewPruner(s.store, &s.cfg.Retention, retention.WithMetrics(s.metrics)))
		if err := s.pruning.Start(ctx); err != nil {
			return err
		}
	}

	if s.metrics != nil || s.cfg.Telemetry.Health.Enabled {
		s.serve()
	}
	return nil
}

func (s *service) serve() {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}
	health.Mount(mux, &s.cfg.Telemetry.Health, s.checker, versionInfo())

	s.server = &http.Server{
		Addr:              s.cfg.Telemetry.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting telemetry server", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- fmt.Errorf("telemetry server: %w", err)
		}
	}()
}

func (s *service) printStatus(w io.Writer) {
	ok := color.New(color.FgGreen)
	for _, jc := range s.cfg.Jobs {
		next := "-"
		if t := s.jobs.NextRun(jc.Name); t != nil {
			next = t.Format(time.RFC3339)
		}
		ok.Fprintf(w, "✓ Job %s scheduled (%s, next %s)\n", jc.Name, jc.Schedule, next)
	}
	if s.spool != nil {
		ok.Fprintf(w, "✓ Watching spool directory %s\n", s.cfg.Spool.Dir)
	}
	if s.pruning != nil {
		ok.Fprintf(w, "✓ Retention scheduled (%s)\n", s.cfg.Retention.PruneSchedule)
	}
	if s.server != nil {
		addr := s.server.Addr
		if s.metrics != nil {
			ok.Fprintf(w, "✓ Metrics endpoint: http://%s%s\n", addr, s.cfg.Telemetry.Metrics.Path)
		}
		if s.cfg.Telemetry.Health.Enabled {
			ok.Fprintf(w, "✓ Health endpoint: http://%s%s\n", addr, s.cfg.Telemetry.Health.LivenessPath)
		}
	}
}

// shutdown stops accepting work and waits for running batches.
func (s *service) shutdown() error {
	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs = append(errs, s.server.Shutdown(ctx))
	}
	if s.spool != nil {
		errs = append(errs, s.spool.Stop())
	}
	if s.pruning != nil {
		s.pruning.Stop()
	}
	if s.jobs != nil {
		s.jobs.Stop()
	}
	return errors.Join(errs...)
}

func (s *service) close() {
	var sinks []export.Sink
	for _, n := range s.sinks {
		sinks = append(sinks, n)
	}
	if err := sink.Multi(sinks).Close(); err != nil {
		slog.Error("failed to close sinks", "error", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("failed to close record store", "error", err)
		}
	}
}
