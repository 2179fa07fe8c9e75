package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/andrewh/attest/pkg/baseline"
	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/validate"
	"github.com/spf13/cobra"
)

const defaultBaselinePath = "attest.db"

func recordCmd() *cobra.Command {
	var (
		expectPath   string
		format       string
		baselinePath string
		name         string
	)

	cmd := &cobra.Command{
		Use:   "record <trace.json>",
		Short: "Validate a trace file and record its digest as a baseline",
		Long: "Validate a trace file and record its digest as a baseline.\n\n" +
			"A later `attest diff` against the same baseline name detects any\n" +
			"change in trace shape or expectations.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing trace file\n\nUsage: attest record --expect expectations.yaml <trace.json>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnvViper()
			expectPath = envDefault(env, cmd, "expect", expectPath)
			baselinePath = envDefault(env, cmd, "baseline", baselinePath)
			if expectPath == "" {
				return fmt.Errorf("missing expectation document\n\nUsage: attest record --expect expectations.yaml <trace.json>")
			}
			if name == "" {
				name = baselineName(args[0])
			}

			set, err := expect.LoadFile(expectPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := validateFile(ctx, args[0], set, validate.Options{}, format)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			store, err := baseline.Open(baselinePath)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // best-effort close after write

			if err := store.Put(ctx, baseline.Entry{
				Name:   name,
				Digest: rep.Digest,
				Passed: rep.Passed,
			}); err != nil {
				return err
			}

			verdict := "PASS"
			if !rep.Passed {
				verdict = "FAIL"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Recorded baseline %q (%s)\ndigest: %s\n", name, verdict, rep.Digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&expectPath, "expect", "", "expectation document (YAML)")
	cmd.Flags().StringVar(&format, "format", "auto", "trace input format: auto, spans, or otlp")
	cmd.Flags().StringVar(&baselinePath, "baseline", defaultBaselinePath, "baseline database path")
	cmd.Flags().StringVar(&name, "name", "", "baseline name (default: trace file name without extension)")

	return cmd
}

func diffCmd() *cobra.Command {
	var (
		expectPath   string
		format       string
		baselinePath string
		name         string
	)

	cmd := &cobra.Command{
		Use:   "diff <trace.json>",
		Short: "Validate a trace file and compare its digest against a baseline",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing trace file\n\nUsage: attest diff --expect expectations.yaml <trace.json>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnvViper()
			expectPath = envDefault(env, cmd, "expect", expectPath)
			baselinePath = envDefault(env, cmd, "baseline", baselinePath)
			if expectPath == "" {
				return fmt.Errorf("missing expectation document\n\nUsage: attest diff --expect expectations.yaml <trace.json>")
			}
			if name == "" {
				name = baselineName(args[0])
			}

			set, err := expect.LoadFile(expectPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := validateFile(ctx, args[0], set, validate.Options{}, format)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			store, err := baseline.Open(baselinePath)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // read-only comparison

			match, recorded, err := store.Compare(ctx, name, rep.Digest)
			if err != nil {
				return err
			}
			if !match {
				return fmt.Errorf("digest mismatch for baseline %q\n  recorded: %s (at %s)\n  current:  %s",
					name, recorded.Digest, recorded.RecordedAt.Format("2006-01-02 15:04:05"), rep.Digest)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Baseline %q matches\ndigest: %s\n", name, rep.Digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&expectPath, "expect", "", "expectation document (YAML)")
	cmd.Flags().StringVar(&format, "format", "auto", "trace input format: auto, spans, or otlp")
	cmd.Flags().StringVar(&baselinePath, "baseline", defaultBaselinePath, "baseline database path")
	cmd.Flags().StringVar(&name, "name", "", "baseline name (default: trace file name without extension)")

	return cmd
}

func baselineName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
