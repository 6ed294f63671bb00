// Command parseforge synthesizes document parsers: it drives the
// plan → generate → execute → validate loop for one target or a whole
// manifest of targets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"parseforge/internal/engine"
	"parseforge/internal/gen"
	"parseforge/internal/sandbox"
	"parseforge/internal/store"
)

var (
	flagTarget      string
	flagInput       string
	flagReference   string
	flagManifest    string
	flagDataDir     string
	flagStoreDir    string
	flagBudget      int
	flagModel       string
	flagExecTimeout time.Duration
	flagCallTimeout time.Duration
	flagDebug       bool
)

func main() {
	root := &cobra.Command{
		Use:   "parseforge",
		Short: "Iterative parser synthesis against reference output",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Synthesize a parser for one target or a whole manifest",
		RunE:  runSynthesis,
	}
	runCmd.Flags().StringVar(&flagTarget, "target", "", "target name, e.g. icici")
	runCmd.Flags().StringVar(&flagInput, "input", "", "sample input path (default <data-dir>/<target>/<target>_sample.txt)")
	runCmd.Flags().StringVar(&flagReference, "reference", "", "reference CSV path (default <data-dir>/<target>/<target>_sample.csv)")
	runCmd.Flags().StringVar(&flagManifest, "manifest", "", "YAML manifest of targets (runs all of them)")
	runCmd.Flags().StringVar(&flagDataDir, "data-dir", "data", "base directory for derived target paths")
	runCmd.Flags().StringVar(&flagStoreDir, "store-dir", "candidates", "directory for persisted attempts and promoted parsers")
	runCmd.Flags().IntVar(&flagBudget, "budget", 3, "maximum attempts per target")
	runCmd.Flags().StringVar(&flagModel, "model", "", "generation model name")
	runCmd.Flags().DurationVar(&flagExecTimeout, "exec-timeout", sandbox.DefaultTimeout, "per-candidate execution timeout")
	runCmd.Flags().DurationVar(&flagCallTimeout, "call-timeout", gen.DefaultCallTimeout, "per-collaborator-call timeout")
	runCmd.Flags().BoolVar(&flagDebug, "debug", false, "verbose logging")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if flagDebug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func runSynthesis(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	targets, err := resolveTargets()
	if err != nil {
		return err
	}

	// A cancel signal lets any in-flight candidate finish; the run reports
	// CANCELLED at the next state boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := buildClient(ctx, logger)

	ledger, err := store.OpenLedger(filepath.Join(flagStoreDir, "ledger.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	eng := engine.New(engine.Config{
		Planner:   gen.NewPlanner(client, logger),
		Generator: gen.NewGenerator(client, logger),
		Store:     store.New(flagStoreDir),
		Ledger:    ledger,
		Executor:  sandbox.New(flagExecTimeout, logger),
		Logger:    logger,
	})

	results, err := eng.RunAll(ctx, targets, flagBudget)
	report(results)
	if err != nil {
		return err
	}
	for name, res := range results {
		if res.Outcome != engine.OutcomeSuccess {
			return fmt.Errorf("target %s ended %s", name, res.Outcome)
		}
	}
	return nil
}

// buildClient returns the Gemini client, or nil when no key is configured so
// every attempt uses the local fallbacks.
func buildClient(ctx context.Context, logger *zap.Logger) gen.LLMClient {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		logger.Warn("GEMINI_API_KEY not set, running with local fallbacks only")
		return nil
	}
	client, err := gen.NewGeminiClient(ctx, apiKey, flagModel, flagCallTimeout)
	if err != nil {
		logger.Warn("gemini client unavailable, running with local fallbacks only", zap.Error(err))
		return nil
	}
	return client
}

func resolveTargets() ([]engine.Target, error) {
	if flagManifest != "" {
		return engine.LoadTargets(flagManifest)
	}
	if flagTarget == "" {
		return nil, fmt.Errorf("either --target or --manifest is required")
	}

	input := flagInput
	if input == "" {
		input = filepath.Join(flagDataDir, flagTarget, flagTarget+"_sample.txt")
	}
	reference := flagReference
	if reference == "" {
		reference = filepath.Join(flagDataDir, flagTarget, flagTarget+"_sample.csv")
	}
	return []engine.Target{{Name: flagTarget, Input: input, Reference: reference}}, nil
}

func report(results map[string]*engine.RunResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results[name]
		if res == nil {
			continue
		}
		switch res.Outcome {
		case engine.OutcomeSuccess:
			fmt.Printf("%s: SUCCESS after %d attempt(s), parser at %s\n", name, res.AttemptsUsed, res.CanonicalPath)
		case engine.OutcomeExhausted:
			fmt.Printf("%s: EXHAUSTED after %d attempt(s)\n", name, res.AttemptsUsed)
			if res.LastDiagnostic != "" {
				fmt.Printf("  last diagnostic: %s\n", res.LastDiagnostic)
			}
		default:
			fmt.Printf("%s: %s\n", name, res.Outcome)
		}
	}
}
