package gen

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"go.uber.org/zap"
)

// minCandidateLen filters degenerate completions: anything shorter cannot be
// a real implementation of the entry-point contract.
const minCandidateLen = 50

// Generator produces candidate parser source, one candidate per attempt.
type Generator struct {
	client LLMClient
	logger *zap.Logger
}

// NewGenerator creates a generator. A nil client means every attempt uses the
// deterministic fallback implementation.
func NewGenerator(client LLMClient, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, logger: logger}
}

// Generate asks the collaborator for candidate source. Markdown fences are
// stripped and the result must parse as Go; empty, too-short or unparseable
// output substitutes the fallback implementation, which always satisfies the
// entry-point contract. Generate never fails.
func (g *Generator) Generate(ctx context.Context, plan string, schema []string, priorFeedback string) string {
	if g.client == nil {
		g.logger.Debug("no generation collaborator configured, using fallback implementation")
		return FallbackSource(schema)
	}

	prompt := generatePrompt(plan, schema, priorFeedback)
	resp, err := g.client.Complete(ctx, prompt)
	if err != nil {
		cerr := &CollaboratorError{Collaborator: "generator", Err: err}
		g.logger.Warn("generation collaborator failed, using fallback implementation", zap.Error(cerr))
		return FallbackSource(schema)
	}

	candidate := CleanCodeBlock(resp)
	if len(candidate) < minCandidateLen {
		g.logger.Warn("generation collaborator returned degenerate output, using fallback implementation",
			zap.Int("length", len(candidate)))
		return FallbackSource(schema)
	}
	if !strings.Contains(candidate, "package main") {
		candidate = "package main\n\n" + candidate
	}
	if !compiles(candidate) {
		g.logger.Warn("generated candidate does not parse, using fallback implementation")
		return FallbackSource(schema)
	}
	return candidate
}

func generatePrompt(plan string, schema []string, priorFeedback string) string {
	if priorFeedback == "" {
		priorFeedback = "No previous feedback."
	}
	return fmt.Sprintf(`You are an expert Go developer. Based on the plan below, write a complete Go file in package main that defines:

	func Parse(inputPath string) ([][]string, error)

Constraints:
- The first returned record must be exactly the header %v; each following record is one transaction with cells in the same column order.
- Import only basic stdlib packages (bufio, os, strings, strconv, regexp, fmt, sort, encoding/csv, time, unicode).
- Do NOT include markdown fences or explanatory text. Return ONLY raw Go code.

Plan:
%s

Previous feedback:
%s`, schema, plan, priorFeedback)
}

// CleanCodeBlock strips markdown fences and language hints from a completion,
// returning the fenced content when fences are present and the trimmed text
// otherwise.
func CleanCodeBlock(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}

	rest := trimmed[start+3:]
	// Drop a language hint on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		fenceLine := strings.TrimSpace(rest[:nl])
		if fenceLine == "" || isLangHint(fenceLine) {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLangHint(s string) bool {
	for _, r := range s {
		if !(r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func compiles(src string) bool {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "candidate.go", src, 0)
	return err == nil
}
