package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"parseforge/internal/sandbox"
	"parseforge/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleInput = `Bank Statement - August 2024
01/08/2024 ATM WITHDRAWAL 500.00 1200.50
02/08/2024 SALARY CREDIT
AUGUST 75000.00 76200.50
03/08/2024 POS PURCHASE 1234.50 74966.00
`

const referenceCSV = `Date,Description,Amount,Balance
01/08/2024,ATM WITHDRAWAL,500.00,1200.50
02/08/2024,SALARY CREDIT AUGUST,75000.00,76200.50
03/08/2024,POS PURCHASE,1234.5,74966.00
`

// correctCandidate returns the reference rows exactly.
const correctCandidate = `package main

func Parse(inputPath string) ([][]string, error) {
	return [][]string{
		{"Date", "Description", "Amount", "Balance"},
		{"01/08/2024", "ATM WITHDRAWAL", "500.00", "1,200.50"},
		{"02/08/2024", "SALARY CREDIT AUGUST", "75000.00", "76200.50"},
		{"03/08/2024", "POS PURCHASE", "1234.50", "74966.00"},
	}, nil
}
`

// shortCandidate drops a transaction, tripping the row count check.
const shortCandidate = `package main

func Parse(inputPath string) ([][]string, error) {
	return [][]string{
		{"Date", "Description", "Amount", "Balance"},
		{"01/08/2024", "ATM WITHDRAWAL", "500.00", "1200.50"},
		{"02/08/2024", "SALARY CREDIT AUGUST", "75000.00", "76200.50"},
	}, nil
}
`

func newTarget(t *testing.T, name string) Target {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, name+"_sample.txt")
	ref := filepath.Join(dir, name+"_sample.csv")
	if err := os.WriteFile(input, []byte(sampleInput), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ref, []byte(referenceCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return Target{Name: name, Input: input, Reference: ref}
}

type stubPlanner struct{ plan string }

func (p stubPlanner) Plan(ctx context.Context, target string, schema []string, sampleText string) string {
	return p.plan
}

// scriptedGenerator returns sources in order, sticking on the last one, and
// records the feedback passed to each call.
type scriptedGenerator struct {
	mu        sync.Mutex
	sources   []string
	feedbacks []string
	hook      func(call int)
}

func (g *scriptedGenerator) Generate(ctx context.Context, plan string, schema []string, priorFeedback string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := len(g.feedbacks)
	g.feedbacks = append(g.feedbacks, priorFeedback)
	if g.hook != nil {
		g.hook(call)
	}
	if call >= len(g.sources) {
		return g.sources[len(g.sources)-1]
	}
	return g.sources[call]
}

func newTestEngine(t *testing.T, generator Generator) (*Engine, *store.CandidateStore, string) {
	t.Helper()
	root := t.TempDir()
	cs := store.New(root)
	ledger, err := store.OpenLedger(filepath.Join(root, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	e := New(Config{
		Planner:   stubPlanner{plan: "parse the statement"},
		Generator: generator,
		Store:     cs,
		Ledger:    ledger,
		Executor:  sandbox.New(10*time.Second, nil),
	})
	return e, cs, root
}

func attemptFiles(t *testing.T, root, target string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, target))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "attempt_") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRunFirstAttemptSuccess(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{correctCandidate}}
	e, cs, root := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(context.Background(), target, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want SUCCESS (diag: %s)", res.Outcome, res.LastDiagnostic)
	}
	if res.AttemptsUsed != 1 {
		t.Errorf("attemptsUsed = %d, want 1", res.AttemptsUsed)
	}
	if res.CanonicalPath != cs.CanonicalPath("icici") {
		t.Errorf("canonical path = %q", res.CanonicalPath)
	}
	data, err := os.ReadFile(res.CanonicalPath)
	if err != nil {
		t.Fatalf("canonical file missing: %v", err)
	}
	if string(data) != correctCandidate {
		t.Error("canonical file not byte-identical to the passing source")
	}
	if got := attemptFiles(t, root, "icici"); len(got) != 1 {
		t.Errorf("attempt files = %v, want exactly 1", got)
	}
}

func TestRunExhausted(t *testing.T) {
	const budget = 3
	gen := &scriptedGenerator{sources: []string{shortCandidate}}
	e, _, root := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(context.Background(), target, budget)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want EXHAUSTED", res.Outcome)
	}
	if res.AttemptsUsed != budget {
		t.Errorf("attemptsUsed = %d, want %d", res.AttemptsUsed, budget)
	}
	if got := attemptFiles(t, root, "icici"); len(got) != budget {
		t.Errorf("attempt files = %v, want exactly %d", got, budget)
	}
	if res.LastDiagnostic == "" {
		t.Error("exhausted run must surface the last diagnostic")
	}
}

func TestRunRowCountFailureThenSuccess(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{shortCandidate, correctCandidate}}
	e, cs, _ := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(context.Background(), target, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want SUCCESS (diag: %s)", res.Outcome, res.LastDiagnostic)
	}
	if res.AttemptsUsed != 2 {
		t.Errorf("attemptsUsed = %d, want 2", res.AttemptsUsed)
	}
	if _, err := os.Stat(cs.CanonicalPath("icici")); err != nil {
		t.Errorf("canonical file not written: %v", err)
	}

	// The second generation call must carry the row-count diagnostic.
	if len(gen.feedbacks) < 2 {
		t.Fatalf("generator called %d times, want 2", len(gen.feedbacks))
	}
	if gen.feedbacks[0] != "" {
		t.Errorf("first attempt should carry no feedback, got %q", gen.feedbacks[0])
	}
	if !strings.Contains(gen.feedbacks[1], "rows") {
		t.Errorf("second attempt feedback missing row diagnostic: %q", gen.feedbacks[1])
	}
}

func TestRunLedgerAudit(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{shortCandidate, correctCandidate}}
	root := t.TempDir()
	ledger, err := store.OpenLedger(filepath.Join(root, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()

	e := New(Config{
		Planner:   stubPlanner{},
		Generator: gen,
		Store:     store.New(root),
		Ledger:    ledger,
	})
	target := newTarget(t, "icici")
	if _, err := e.Run(context.Background(), target, 3); err != nil {
		t.Fatal(err)
	}

	history, err := ledger.History("icici")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(history))
	}
	if history[0].Outcome != "failed" || history[1].Outcome != "success" {
		t.Errorf("ledger outcomes = %s, %s", history[0].Outcome, history[1].Outcome)
	}
	if history[0].Diagnostic == "" {
		t.Error("failed attempt must carry its diagnostic in the ledger")
	}
}

func TestRunCancelledAfterInFlightAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while the first candidate is being produced: the attempt still
	// executes to completion, then the run reports CANCELLED.
	gen := &scriptedGenerator{
		sources: []string{shortCandidate},
		hook: func(call int) {
			if call == 0 {
				cancel()
			}
		},
	}
	e, cs, root := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(ctx, target, 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want CANCELLED", res.Outcome)
	}
	if res.AttemptsUsed != 1 {
		t.Errorf("attemptsUsed = %d, want 1", res.AttemptsUsed)
	}

	// The in-flight attempt finished and was fully persisted.
	data, err := os.ReadFile(cs.AttemptPath("icici", 1))
	if err != nil {
		t.Fatalf("attempt file missing after cancellation: %v", err)
	}
	if string(data) != shortCandidate {
		t.Error("attempt file is not fully written")
	}
	if got := attemptFiles(t, root, "icici"); len(got) != 1 {
		t.Errorf("attempt files = %v, want exactly 1", got)
	}
}

func TestRunCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{sources: []string{correctCandidate}}
	e, _, root := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(ctx, target, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want CANCELLED", res.Outcome)
	}
	if res.AttemptsUsed != 0 {
		t.Errorf("attemptsUsed = %d, want 0", res.AttemptsUsed)
	}
	if _, err := os.Stat(filepath.Join(root, "icici")); !os.IsNotExist(err) {
		t.Error("cancelled-before-start run must persist nothing")
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{correctCandidate}}
	e, _, root := newTestEngine(t, gen)
	valid := newTarget(t, "icici")

	tests := []struct {
		name   string
		target Target
		budget int
	}{
		{"zero budget", valid, 0},
		{"negative budget", valid, -2},
		{"missing input", Target{Name: "icici", Input: filepath.Join(t.TempDir(), "no.txt"), Reference: valid.Reference}, 3},
		{"missing reference", Target{Name: "icici", Input: valid.Input, Reference: filepath.Join(t.TempDir(), "no.csv")}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Run(context.Background(), tt.target, tt.budget)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want *ConfigurationError, got %T: %v", err, err)
			}
			if res.Outcome != OutcomeConfigError {
				t.Errorf("outcome = %s, want CONFIGURATION_ERROR", res.Outcome)
			}
			if _, statErr := os.Stat(filepath.Join(root, "icici")); !os.IsNotExist(statErr) {
				t.Error("configuration error must not persist any attempt")
			}
		})
	}
}

func TestRunStoreErrorAborts(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{correctCandidate}}
	e, cs, _ := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	// Occupy attempt slot 1 with foreign content: persistence must fail and
	// the failure must abort the run.
	if _, err := cs.Save("icici", 1, "occupied by another run\n"); err != nil {
		t.Fatal(err)
	}

	_, err := e.Run(context.Background(), target, 3)
	var storeErr *store.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("want *StoreError, got %T: %v", err, err)
	}
}

func TestRunFallbackCandidatesExhaustBudget(t *testing.T) {
	// A generator that always produces the same naive candidate: every
	// attempt fails validation and occupies its own slot.
	const budget = 2
	gen := &scriptedGenerator{sources: []string{shortCandidate}}
	e, cs, root := newTestEngine(t, gen)
	target := newTarget(t, "icici")

	res, err := e.Run(context.Background(), target, budget)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want EXHAUSTED", res.Outcome)
	}
	for seq := 1; seq <= budget; seq++ {
		if _, err := os.Stat(cs.AttemptPath("icici", seq)); err != nil {
			t.Errorf("attempt %d not persisted: %v", seq, err)
		}
	}
	if got := attemptFiles(t, root, "icici"); len(got) != budget {
		t.Errorf("attempt files = %v, want %d", got, budget)
	}
}

func TestRunAllIndependentTargets(t *testing.T) {
	gen := &scriptedGenerator{sources: []string{correctCandidate}}
	e, cs, _ := newTestEngine(t, gen)

	targets := []Target{
		newTarget(t, "icici"),
		newTarget(t, "sbi"),
		{Name: "broken", Input: "missing.txt", Reference: "missing.csv"},
	}

	results, err := e.RunAll(context.Background(), targets, 2)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want *ConfigurationError from broken target, got %v", err)
	}

	for _, name := range []string{"icici", "sbi"} {
		res := results[name]
		if res == nil || res.Outcome != OutcomeSuccess {
			t.Fatalf("target %s: result %+v, want SUCCESS", name, res)
		}
		if _, err := os.Stat(cs.CanonicalPath(name)); err != nil {
			t.Errorf("target %s: canonical missing: %v", name, err)
		}
	}
	if results["broken"] == nil || results["broken"].Outcome != OutcomeConfigError {
		t.Errorf("broken target result = %+v", results["broken"])
	}
}

func TestStateAndOutcomeStrings(t *testing.T) {
	if fmt.Sprint(StatePlanning, StateRetrying, StateCancelled) != "PLANNING RETRYING CANCELLED" {
		t.Error("state names drifted")
	}
	if fmt.Sprint(OutcomeSuccess, OutcomeExhausted, OutcomeCancelled, OutcomeConfigError) !=
		"SUCCESS EXHAUSTED CANCELLED CONFIGURATION_ERROR" {
		t.Error("outcome names drifted")
	}
}
