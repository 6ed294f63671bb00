// Package engine drives the synthesis cycle for one target: plan once, then
// generate, persist, execute and validate candidates until one passes or the
// retry budget runs out. Each attempt is an immutable value produced at its
// transition; nothing is mutated across stages.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parseforge/internal/extract"
	"parseforge/internal/feedback"
	"parseforge/internal/sandbox"
	"parseforge/internal/store"
	"parseforge/internal/table"
	"parseforge/internal/validate"
)

// Planner produces one strategy per run. Implementations must not fail; a
// broken collaborator is absorbed into a local fallback.
type Planner interface {
	Plan(ctx context.Context, target string, schema []string, sampleText string) string
}

// Generator produces one candidate source per attempt under the same
// no-failure contract as Planner.
type Generator interface {
	Generate(ctx context.Context, plan string, schema []string, priorFeedback string) string
}

// feedbackWindow bounds how many prior diagnostics are carried into the next
// generation prompt.
const feedbackWindow = 3

const defaultSampleLimit = 4000

// Attempt is one synthesis round. Kept for audit; never deleted.
type Attempt struct {
	Seq        int
	Source     string
	Path       string
	Passed     bool
	Diagnostic string
}

// RunResult is the caller-visible outcome of one run.
type RunResult struct {
	Target         string
	RunID          string
	Outcome        Outcome
	AttemptsUsed   int
	FinalAttempt   *Attempt
	CanonicalPath  string
	LastDiagnostic string
}

// Config wires an Engine.
type Config struct {
	Planner       Planner
	Generator     Generator
	Store         *store.CandidateStore
	Ledger        *store.Ledger // optional
	Executor      *sandbox.Executor
	Logger        *zap.Logger
	MaxMismatches int
	SampleLimit   int
}

// Engine runs synthesis cycles. Safe for concurrent runs on distinct
// targets; a single target is owned by a single run.
type Engine struct {
	planner       Planner
	generator     Generator
	store         *store.CandidateStore
	ledger        *store.Ledger
	executor      *sandbox.Executor
	logger        *zap.Logger
	maxMismatches int
	sampleLimit   int
}

// New creates an engine from cfg, filling in defaults for the executor,
// logger and bounds.
func New(cfg Config) *Engine {
	e := &Engine{
		planner:       cfg.Planner,
		generator:     cfg.Generator,
		store:         cfg.Store,
		ledger:        cfg.Ledger,
		executor:      cfg.Executor,
		logger:        cfg.Logger,
		maxMismatches: cfg.MaxMismatches,
		sampleLimit:   cfg.SampleLimit,
	}
	if e.executor == nil {
		e.executor = sandbox.New(sandbox.DefaultTimeout, cfg.Logger)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.maxMismatches <= 0 {
		e.maxMismatches = validate.DefaultMaxMismatches
	}
	if e.sampleLimit <= 0 {
		e.sampleLimit = defaultSampleLimit
	}
	return e
}

// Run executes the full cycle for one target. Only configuration and store
// failures return an error; collaborator, execution and validation failures
// are absorbed into the retry loop. Cancellation is honored between states
// only; an in-flight candidate always finishes, bounded by its timeout.
func (e *Engine) Run(ctx context.Context, target Target, budget int) (*RunResult, error) {
	if err := e.checkConfig(target, budget); err != nil {
		return &RunResult{Target: target.Name, Outcome: OutcomeConfigError}, err
	}

	reference, err := table.LoadCSV(target.Reference)
	if err != nil {
		cfgErr := &ConfigurationError{Target: target.Name, Reason: err.Error()}
		return &RunResult{Target: target.Name, Outcome: OutcomeConfigError}, cfgErr
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("target", target.Name), zap.String("run_id", runID))
	logger.Info("run started", zap.Int("budget", budget), zap.Strings("schema", reference.Columns))

	if ctx.Err() != nil {
		return e.cancelled(logger, target, runID, 0, nil), nil
	}

	logger.Debug("state transition", zap.Stringer("state", StatePlanning))
	sample := extract.Sample(target.Input, e.sampleLimit)
	plan := e.planner.Plan(ctx, target.Name, reference.Columns, sample)

	var diagnostics []string
	var last *Attempt

	for seq := 1; seq <= budget; seq++ {
		if ctx.Err() != nil {
			return e.cancelled(logger, target, runID, seq-1, last), nil
		}

		logger.Debug("state transition", zap.Stringer("state", StateGenerating), zap.Int("attempt", seq))
		source := e.generator.Generate(ctx, plan, reference.Columns, carried(diagnostics))

		path, err := e.store.Save(target.Name, seq, source)
		if err != nil {
			logger.Error("attempt persistence failed, aborting run", zap.Error(err))
			return nil, err
		}

		logger.Debug("state transition", zap.Stringer("state", StateExecuting), zap.Int("attempt", seq))
		produced, execErr := e.executor.Execute(ctx, path, target.Input)

		logger.Debug("state transition", zap.Stringer("state", StateValidating), zap.Int("attempt", seq))
		attempt := e.validated(seq, source, path, produced, reference, execErr)

		if attempt.Passed {
			canonical, err := e.store.Promote(target.Name, source)
			if err != nil {
				logger.Error("promotion failed, aborting run", zap.Error(err))
				return nil, err
			}
			if err := e.record(runID, target.Name, attempt); err != nil {
				return nil, err
			}
			logger.Info("run succeeded", zap.Int("attempts_used", seq), zap.String("canonical", canonical))
			return &RunResult{
				Target:        target.Name,
				RunID:         runID,
				Outcome:       OutcomeSuccess,
				AttemptsUsed:  seq,
				FinalAttempt:  attempt,
				CanonicalPath: canonical,
			}, nil
		}

		if err := e.record(runID, target.Name, attempt); err != nil {
			return nil, err
		}
		logger.Info("attempt failed",
			zap.Int("attempt", seq),
			zap.String("diagnostic", attempt.Diagnostic))

		diagnostics = append(diagnostics, fmt.Sprintf("Attempt %d: %s", seq, attempt.Diagnostic))
		last = attempt

		if ctx.Err() != nil {
			return e.cancelled(logger, target, runID, seq, last), nil
		}
		if seq < budget {
			logger.Debug("state transition", zap.Stringer("state", StateRetrying), zap.Int("attempts_left", budget-seq))
		}
	}

	logger.Warn("retry budget exhausted", zap.Int("attempts_used", budget))
	return &RunResult{
		Target:         target.Name,
		RunID:          runID,
		Outcome:        OutcomeExhausted,
		AttemptsUsed:   budget,
		FinalAttempt:   last,
		LastDiagnostic: lastDiagnostic(last),
	}, nil
}

// validated builds the immutable attempt value for one round.
func (e *Engine) validated(seq int, source, path string, produced, reference *table.Table, execErr error) *Attempt {
	attempt := &Attempt{Seq: seq, Source: source, Path: path}

	var failure error
	if execErr != nil {
		failure = execErr
	} else {
		report := validate.CompareN(produced, reference, e.maxMismatches)
		if report.Pass {
			attempt.Passed = true
			return attempt
		}
		failure = report.Err()
	}

	attempt.Diagnostic = feedback.Summarize(failure)
	return attempt
}

func (e *Engine) checkConfig(target Target, budget int) error {
	if budget < 1 {
		return &ConfigurationError{Target: target.Name, Reason: fmt.Sprintf("retry budget must be at least 1, got %d", budget)}
	}
	if _, err := os.Stat(target.Input); err != nil {
		return &ConfigurationError{Target: target.Name, Reason: fmt.Sprintf("sample input not found: %s", target.Input)}
	}
	if _, err := os.Stat(target.Reference); err != nil {
		return &ConfigurationError{Target: target.Name, Reason: fmt.Sprintf("reference output not found: %s", target.Reference)}
	}
	return nil
}

func (e *Engine) record(runID, target string, attempt *Attempt) error {
	if e.ledger == nil {
		return nil
	}
	outcome := "failed"
	if attempt.Passed {
		outcome = "success"
	}
	return e.ledger.Record(store.AttemptRecord{
		RunID:      runID,
		Target:     target,
		Seq:        attempt.Seq,
		Outcome:    outcome,
		Diagnostic: attempt.Diagnostic,
	})
}

func (e *Engine) cancelled(logger *zap.Logger, target Target, runID string, attemptsUsed int, last *Attempt) *RunResult {
	logger.Warn("run cancelled", zap.Int("attempts_used", attemptsUsed))
	return &RunResult{
		Target:         target.Name,
		RunID:          runID,
		Outcome:        OutcomeCancelled,
		AttemptsUsed:   attemptsUsed,
		FinalAttempt:   last,
		LastDiagnostic: lastDiagnostic(last),
	}
}

// carried joins the trailing window of attempt diagnostics for the next
// generation prompt.
func carried(diagnostics []string) string {
	if len(diagnostics) > feedbackWindow {
		diagnostics = diagnostics[len(diagnostics)-feedbackWindow:]
	}
	return strings.Join(diagnostics, "\n\n")
}

func lastDiagnostic(last *Attempt) string {
	if last == nil {
		return ""
	}
	return last.Diagnostic
}
