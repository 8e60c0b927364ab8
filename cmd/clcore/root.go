package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cwbudde/clcore/internal/config"
)

var (
	cfgFile      string
	logLevel     string
	backendName  string
	cacheDir     string
	traceEnabled bool
	metricsAddr  string

	cfg    config.Config
	logger *slog.Logger

	shutdownHooks []func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "clcore",
	Short: "Compute device discovery, kernel registry and dispatch",
	Long: `clcore discovers GPU devices, compiles and caches compute kernels, manages
device buffers behind integer handles and dispatches kernels over an index space.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if flags.Changed("backend") {
			loaded.Backend = backendName
		}
		if flags.Changed("cache-dir") {
			loaded.CacheDir = cacheDir
		}
		if flags.Changed("otel") {
			loaded.Trace = traceEnabled
		}
		if flags.Changed("metrics-addr") {
			loaded.MetricsAddr = metricsAddr
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		// Setup logger
		level, _ := cfg.Level()
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		if cfg.Trace {
			stop, err := initTracer(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			shutdownHooks = append(shutdownHooks, stop)
		}
		if cfg.MetricsAddr != "" {
			shutdownHooks = append(shutdownHooks, startMetricsServer(cfg.MetricsAddr))
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Path to a TOML config file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&backendName, "backend", "sim", "Compute backend (sim, opencl)")
	pf.StringVar(&cacheDir, "cache-dir", "", "Program binary cache directory (empty disables the cache)")
	pf.BoolVar(&traceEnabled, "otel", false, "Export OpenTelemetry spans to stderr")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// execute runs the selected command and then drains the shutdown hooks,
// whether or not the command failed, so spans recording the failure still
// reach the exporter.
func execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, shutdown())
}

func shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(shutdownHooks) - 1; i >= 0; i-- {
		errs = append(errs, shutdownHooks[i](ctx))
	}
	shutdownHooks = nil
	return errors.Join(errs...)
}

func initTracer(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "clcore"),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

func startMetricsServer(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return srv.Shutdown
}
