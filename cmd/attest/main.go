// Trace validation for hermetic test runs
// Reads captured OTel spans and checks them against declarative expectations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
	"github.com/andrewh/attest/pkg/validate"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "attest",
		Short:        "Validate OpenTelemetry traces against declarative expectations",
		SilenceUsage: true,
	}

	root.AddCommand(validateCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(diffCmd())
	root.AddCommand(versionCmd())

	return root
}

// newEnvViper reads ATTEST_* environment variables as flag defaults,
// e.g. ATTEST_EXPECT, ATTEST_BASELINE, ATTEST_ENDPOINT.
func newEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ATTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// envDefault returns the ATTEST_* environment value for a flag the user
// did not set explicitly. Explicit flags always win.
func envDefault(v *viper.Viper, cmd *cobra.Command, name, current string) string {
	if cmd.Flags().Changed(name) || !v.IsSet(name) {
		return current
	}
	return v.GetString(name)
}

func validateCmd() *cobra.Command {
	var (
		expectPath    string
		format        string
		failFast      bool
		jsonOut       bool
		traceOut      string
		protocol      string
		pyroscopeAddr string
	)

	cmd := &cobra.Command{
		Use:   "validate <trace.json> [trace.json...]",
		Short: "Validate trace files against an expectation document",
		Long: "Validate trace files against an expectation document.\n\n" +
			"Each trace file is a JSON span array or an OTLP/JSON export.\n" +
			"Files are validated concurrently; the command exits nonzero if\n" +
			"any file fails validation.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing trace file\n\nUsage: attest validate --expect expectations.yaml <trace.json>")
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnvViper()
			expectPath = envDefault(env, cmd, "expect", expectPath)
			traceOut = envDefault(env, cmd, "trace-out", traceOut)
			protocol = envDefault(env, cmd, "protocol", protocol)
			pyroscopeAddr = envDefault(env, cmd, "pyroscope", pyroscopeAddr)
			if expectPath == "" {
				return fmt.Errorf("missing expectation document\n\nUsage: attest validate --expect expectations.yaml <trace.json>")
			}

			if pyroscopeAddr != "" {
				profiler, err := pyroscope.Start(pyroscope.Config{
					ApplicationName: "attest",
					ServerAddress:   pyroscopeAddr,
				})
				if err != nil {
					return fmt.Errorf("starting profiler: %w", err)
				}
				defer func() { _ = profiler.Stop() }()
			}

			set, err := expect.LoadFile(expectPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reports, err := validateFiles(ctx, args, set, validate.Options{FailFast: failFast}, format)
			if err != nil {
				return err
			}

			if traceOut != "" {
				if err := emitRunSpans(ctx, traceOut, protocol, args, reports); err != nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: emitting telemetry: %v\n", err)
				}
			}

			if jsonOut {
				if err := renderJSON(cmd.OutOrStdout(), args, reports); err != nil {
					return err
				}
			} else {
				renderTables(cmd.OutOrStdout(), args, reports)
			}

			failed := 0
			for _, rep := range reports {
				if !rep.Passed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("validation failed for %d of %d trace file(s)", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expectPath, "expect", "", "expectation document (YAML)")
	cmd.Flags().StringVar(&format, "format", "auto", "trace input format: auto, spans, or otlp")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failing check family")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit reports as JSON instead of tables")
	cmd.Flags().StringVar(&traceOut, "trace-out", "", "emit one span per run: stdout or an OTLP endpoint (e.g. localhost:4318)")
	cmd.Flags().StringVar(&protocol, "protocol", "http/protobuf", "OTLP protocol for --trace-out (http/protobuf or grpc)")
	cmd.Flags().StringVar(&pyroscopeAddr, "pyroscope", "", "send continuous profiles to this Pyroscope server")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "attest %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}

// validateFiles runs one validation per trace file concurrently. Report
// order matches the input order. A parse or I/O error aborts the whole
// batch; validation failures are reported, not returned as errors.
func validateFiles(ctx context.Context, paths []string, set *expect.Set, opts validate.Options, format string) ([]*validate.Report, error) {
	reports := make([]*validate.Report, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			rep, err := validateFile(ctx, path, set, opts, format)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func validateFile(ctx context.Context, path string, set *expect.Set, opts validate.Options, format string) (*validate.Report, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied file path is expected
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer f.Close() //nolint:errcheck // best-effort close on read-only file

	spans, err := trace.ParseSpans(f, trace.Format(format))
	if err != nil {
		return nil, err
	}
	return validate.NewRunner(opts).Run(ctx, spans, set)
}

// emitRunSpans emits one span per validated file so a run of attest is
// itself observable. Adapted exporter selection: stdout, OTLP/HTTP, or
// OTLP/gRPC.
func emitRunSpans(ctx context.Context, out, protocol string, paths []string, reports []*validate.Report) error {
	exporter, err := createTraceExporter(ctx, out, protocol)
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := tp.Tracer("attest")
	for i, rep := range reports {
		_, span := tracer.Start(ctx, "attest.validate")
		span.SetAttributes(
			attribute.String("attest.file", paths[i]),
			attribute.String("attest.run_id", rep.RunID),
			attribute.String("attest.digest", rep.Digest),
			attribute.Bool("attest.passed", rep.Passed),
		)
		span.End()
	}
	return nil
}

func createTraceExporter(ctx context.Context, out, protocol string) (sdktrace.SpanExporter, error) {
	if out == "stdout" {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}
	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(out), otlptracegrpc.WithInsecure())
	case "http/protobuf", "":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(out), otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported protocol %q, supported: http/protobuf, grpc", protocol)
	}
}
