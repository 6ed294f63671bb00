// Package feedback turns execution and validation failures into compact
// diagnostics for the next generation round. Summarize is total: any error
// (or nil) yields a bounded string, never a panic.
package feedback

import (
	"errors"
	"fmt"
	"strings"

	"parseforge/internal/sandbox"
	"parseforge/internal/validate"
)

// MaxLen bounds one diagnostic. Long traces and diffs are truncated while the
// failure kind and location are preserved, so the text stays actionable as
// prompt input.
const MaxLen = 1200

const stackFrames = 6

// Summarize renders a failure as generation feedback.
func Summarize(failure error) string {
	if failure == nil {
		return ""
	}

	var execErr *sandbox.ExecutionError
	if errors.As(failure, &execErr) {
		return summarizeExecution(execErr)
	}

	var schemaErr *validate.SchemaError
	if errors.As(failure, &schemaErr) {
		return truncate(fmt.Sprintf(
			"The returned table has the wrong columns. %s. Return exactly the expected column set.",
			schemaErr.Error()))
	}

	var rowErr *validate.RowCountError
	if errors.As(failure, &rowErr) {
		return truncate(fmt.Sprintf(
			"The returned table has the wrong number of rows: expected %d, got %d. "+
				"Check transaction line detection and multi-line description merging.",
			rowErr.Expected, rowErr.Actual))
	}

	var mismatchErr *validate.MismatchError
	if errors.As(failure, &mismatchErr) {
		return summarizeMismatches(mismatchErr)
	}

	return truncate("Attempt failed: " + failure.Error())
}

func summarizeExecution(execErr *sandbox.ExecutionError) string {
	var b strings.Builder
	switch execErr.Kind {
	case sandbox.KindNoEntryPoint:
		fmt.Fprintf(&b, "The code must define func %s(inputPath string) ([][]string, error) in package main. %s",
			sandbox.EntryPoint, execErr.Msg)
	case sandbox.KindBadSignature:
		fmt.Fprintf(&b, "Wrong entry point shape: %s", execErr.Msg)
	case sandbox.KindForbiddenImport:
		fmt.Fprintf(&b, "Disallowed imports: %s. Use only basic text-processing stdlib packages.", execErr.Msg)
	case sandbox.KindTimeout:
		fmt.Fprintf(&b, "Execution timed out: %s. Avoid unbounded loops and expensive scans.", execErr.Msg)
	default:
		fmt.Fprintf(&b, "Execution failed (%s): %s", execErr.Kind, execErr.Msg)
	}

	if execErr.Stack != "" {
		b.WriteString("\nTrace:\n")
		b.WriteString(headLines(execErr.Stack, stackFrames))
	}
	return truncate(b.String())
}

func summarizeMismatches(mismatchErr *validate.MismatchError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table values do not match the reference (%d mismatching cells). First differences:", mismatchErr.Total)
	for _, m := range mismatchErr.Mismatches {
		b.WriteString("\n- ")
		b.WriteString(m.String())
	}
	return truncate(b.String())
}

func headLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func truncate(s string) string {
	if len(s) <= MaxLen {
		return s
	}
	return s[:MaxLen-15] + "\n...[truncated]"
}
