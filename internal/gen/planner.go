package gen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Planner produces one natural-language parsing strategy per run.
type Planner struct {
	client LLMClient
	logger *zap.Logger
}

// NewPlanner creates a planner. A nil client means the local fallback plan is
// always used, which keeps offline runs working.
func NewPlanner(client LLMClient, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{client: client, logger: logger}
}

// Plan asks the collaborator for a strategy. Unreachable, timed-out or empty
// responses all substitute the deterministic fallback plan; Plan never fails.
func (p *Planner) Plan(ctx context.Context, target string, schema []string, sampleText string) string {
	if p.client == nil {
		p.logger.Debug("no planning collaborator configured, using fallback plan",
			zap.String("target", target))
		return FallbackPlan(target, schema)
	}

	prompt := planPrompt(target, schema, sampleText)
	resp, err := p.client.Complete(ctx, prompt)
	if err != nil {
		cerr := &CollaboratorError{Collaborator: "planner", Err: err}
		p.logger.Warn("planning collaborator failed, using fallback plan",
			zap.String("target", target), zap.Error(cerr))
		return FallbackPlan(target, schema)
	}
	if strings.TrimSpace(resp) == "" {
		p.logger.Warn("planning collaborator returned empty plan, using fallback",
			zap.String("target", target))
		return FallbackPlan(target, schema)
	}
	return strings.TrimSpace(resp)
}

func planPrompt(target string, schema []string, sampleText string) string {
	return fmt.Sprintf(`You are an expert Go developer. Create a concise step-by-step plan for writing a Go function:

	func Parse(inputPath string) ([][]string, error)

The function reads a plain-text statement for document class %q and returns the
transaction table as records, first record being the header row.

Expected columns: %v

Document sample:
%s

Focus on: locating transaction lines, merging multi-line descriptions, and
extracting every expected column. Return only the plan, no code.`, target, schema, sampleText)
}

// FallbackPlan is the deterministic local strategy used whenever the
// planning collaborator is unavailable or degenerate.
func FallbackPlan(target string, schema []string) string {
	return fmt.Sprintf(
		"1. Read the input for %s line by line and locate the transaction table header.\n"+
			"2. Treat lines starting with a date as transactions; merge continuation lines into the previous description.\n"+
			"3. Split each transaction into the columns %v, keeping amounts as written.\n"+
			"4. Return the header row followed by one record per transaction; report missing files as errors.",
		target, schema)
}
