package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wbrown/horus-datalog/datalog/annotations"
	"github.com/wbrown/horus-datalog/datalog/executor"
	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/metrics"
	"github.com/wbrown/horus-datalog/datalog/storage"
)

func registerRunCmd(rootCmd *cobra.Command) {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "evaluate the program over a trace",
		Long:  "Load input relations from .facts files or a database, evaluate every stratum and write the findings.",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}

	defaults := executor.DefaultOptions()
	runCmd.Flags().String("facts", "", "directory of tab-separated .facts input files")
	runCmd.Flags().String("db", "", "badger database to load inputs from, or to save results into")
	runCmd.Flags().String("out", "", "directory for tab-separated .csv results")
	runCmd.Flags().IntP("jobs", "j", defaults.Workers, "number of rule workers")
	runCmd.Flags().Int("stratum", executor.AllStrata, "run only this stratum (-1 runs all)")
	runCmd.Flags().Bool("keep-relations", false, "never purge relations")
	runCmd.Flags().Bool("save-results", false, "store output relations in --db")
	runCmd.Flags().Bool("dump", false, "print output relations as tables on stdout")
	runCmd.Flags().BoolP("verbose", "v", false, "print evaluation events on stderr")
	runCmd.Flags().String("metrics-addr", "", "address to serve Prometheus metrics on while running")
	runCmd.Flags().Bool("profile-hints", false, "print per-relation hint statistics; implies --keep-relations")

	rootCmd.AddCommand(runCmd)
}

type runConfig struct {
	facts, db, out, metricsAddr string
	saveResults, dump, verbose  bool
	profileHints                bool
	opts                        executor.Options
}

func runFlags(cmd *cobra.Command) (runConfig, error) {
	f := cmd.Flags()
	cfg := runConfig{opts: executor.DefaultOptions()}
	var errs []error
	get := func(name string, dst *string) {
		v, err := f.GetString(name)
		errs = append(errs, err)
		*dst = v
	}
	getBool := func(name string, dst *bool) {
		v, err := f.GetBool(name)
		errs = append(errs, err)
		*dst = v
	}
	get("facts", &cfg.facts)
	get("db", &cfg.db)
	get("out", &cfg.out)
	get("metrics-addr", &cfg.metricsAddr)
	getBool("save-results", &cfg.saveResults)
	getBool("dump", &cfg.dump)
	getBool("verbose", &cfg.verbose)
	getBool("profile-hints", &cfg.profileHints)
	getBool("keep-relations", &cfg.opts.KeepRelations)

	jobs, err := f.GetInt("jobs")
	errs = append(errs, err)
	stratum, err := f.GetInt("stratum")
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}

	cfg.opts.Workers = jobs
	cfg.opts.Stratum = stratum
	if cfg.profileHints {
		cfg.opts.KeepRelations = true
	}

	switch {
	case cfg.facts == "" && cfg.db == "":
		return cfg, errors.New("one of --facts or --db is required")
	case cfg.saveResults && cfg.db == "":
		return cfg, errors.New("--save-results needs --db")
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := runFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prog, err := loadProgram(cmd)
	if err != nil {
		return err
	}
	plan, err := executor.Compile(prog, nil, cfg.opts)
	if err != nil {
		return err
	}

	var store *storage.BadgerStore
	if cfg.db != "" && (cfg.facts == "" || cfg.saveResults) {
		store, err = storage.NewBadgerStore(cfg.db)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var loader executor.Loader = store
	if cfg.facts != "" {
		loader = storage.NewFactDir(cfg.facts)
	}

	var sinks storage.MultiSink
	if cfg.out != "" {
		sinks = append(sinks, storage.NewCSVDir(cfg.out))
	}
	if cfg.saveResults {
		sinks = append(sinks, store)
	}
	if cfg.dump {
		sinks = append(sinks, storage.NewTableSink(os.Stdout))
	}

	// the collector always runs so the summary can be printed
	handlers := []annotations.Handler{func(annotations.Event) {}}
	if cfg.verbose {
		handlers = append(handlers, annotations.ConsoleHandler())
	}
	if cfg.metricsAddr != "" {
		shutdown, recorder, err := serveMetrics(cfg.metricsAddr)
		if err != nil {
			return err
		}
		defer shutdown()
		handlers = append(handlers, recorder.Handle)
	}
	ectx := executor.NewContext(annotations.Multi(handlers...))

	logging.Info().
		Str("program", plan.Name()).
		Int("workers", cfg.opts.Workers).
		Msg("starting evaluation")

	start := time.Now()
	runErr := plan.RunWithContext(ctx, ectx, loader, sinks)

	summary := annotations.Summary(ectx.Collector().Named(annotations.RelationEmitted))
	if summary != "" {
		fmt.Fprint(os.Stderr, color.New(color.Bold).Sprint("findings\n"), summary)
	}
	if cfg.profileHints {
		printHintStats(plan)
	}
	if runErr != nil {
		return runErr
	}

	logging.Info().
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("evaluation complete")
	return nil
}

func printHintStats(plan *executor.Plan) {
	fmt.Fprintln(os.Stderr, " -- Operation Hint Statistics --")
	for _, rel := range plan.Relations() {
		fmt.Fprintf(os.Stderr, "%-28s %10s tuples  %s\n", rel.Name(), humanize.Comma(int64(rel.Size())), rel.HintStats())
	}
}

// serveMetrics exposes a fresh registry on addr until shutdown is
// called.
func serveMetrics(addr string) (func(), *metrics.Recorder, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serve metrics: %w", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	logging.Info().Str("addr", ln.Addr().String()).Msg("metrics server started")

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}
	return shutdown, recorder, nil
}
