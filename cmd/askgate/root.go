package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/config"
	"github.com/ShayCichocki/askgate/internal/logging"
)

var (
	configPath string
	verbose    bool

	// cfg and logger are populated by the root PersistentPreRunE.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "askgate",
	Short: "Quality gates and observability tooling for the Ask service",
	Long: `askgate surrounds the Ask service with quality gates and observability.

It validates suite and golden datasets, probes the running service one
question at a time, clusters routing misses, generates and audits the
Grafana dashboards and Prometheus rules, replays narrator shadow
experiments and runs the support audits (embeddings store, formatting
policy, entity library, data fingerprints).

Configuration is layered: defaults, ~/.config/askgate/config.yaml,
.askgate.yaml in the current directory or a parent, ASKGATE_* environment
variables, then --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		l, err := logging.New(logging.Options{
			Level:   loaded.Log.Level,
			Format:  logging.Format(loaded.Log.Format),
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		cfg = loaded
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exitError carries a non-default exit code out of a RunE handler.
// A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode builds an exitError with no message; the handler has already
// reported the outcome on stdout.
func exitCode(code int) error {
	return &exitError{code: code}
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(errorCode(err))
}

// errorCode reports err on stderr and returns the process exit code.
func errorCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Explicit config file (highest precedence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(suiteCmd)
	rootCmd.AddCommand(goldenCmd)
	rootCmd.AddCommand(routingCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(obsCmd)
	rootCmd.AddCommand(shadowCmd)
	rootCmd.AddCommand(embeddingsCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(hashguardCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(historyCmd)
}
