package feedback

import (
	"errors"
	"strings"
	"testing"

	"parseforge/internal/sandbox"
	"parseforge/internal/validate"
)

func TestSummarizeNil(t *testing.T) {
	if got := Summarize(nil); got != "" {
		t.Errorf("Summarize(nil) = %q, want empty", got)
	}
}

func TestSummarizeRowCount(t *testing.T) {
	got := Summarize(&validate.RowCountError{Expected: 3, Actual: 2})
	if !strings.Contains(got, "expected 3") || !strings.Contains(got, "got 2") {
		t.Errorf("diagnostic lost row counts: %q", got)
	}
}

func TestSummarizeSchema(t *testing.T) {
	got := Summarize(&validate.SchemaError{Missing: []string{"Balance"}, Extra: []string{"Bal"}})
	if !strings.Contains(got, "Balance") || !strings.Contains(got, "Bal") {
		t.Errorf("diagnostic lost column names: %q", got)
	}
}

func TestSummarizeMismatchKeepsLocation(t *testing.T) {
	got := Summarize(&validate.MismatchError{
		Total: 7,
		Mismatches: []validate.ValueMismatch{
			{Row: 2, Column: "Amount", Expected: "10.01", Actual: "10.00"},
		},
	})
	for _, want := range []string{"row 2", "Amount", "10.01", "10.00", "7"} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostic missing %q: %q", want, got)
		}
	}
}

func TestSummarizeExecutionKinds(t *testing.T) {
	tests := []struct {
		kind sandbox.ErrKind
		want string
	}{
		{sandbox.KindNoEntryPoint, "package main"},
		{sandbox.KindBadSignature, "entry point"},
		{sandbox.KindForbiddenImport, "imports"},
		{sandbox.KindTimeout, "timed out"},
		{sandbox.KindRuntime, "Execution failed"},
	}
	for _, tt := range tests {
		got := Summarize(&sandbox.ExecutionError{Kind: tt.kind, Msg: "detail"})
		if !strings.Contains(got, tt.want) {
			t.Errorf("kind %s: diagnostic %q missing %q", tt.kind, got, tt.want)
		}
	}
}

func TestSummarizeTruncatesTrace(t *testing.T) {
	stack := strings.Repeat("goroutine frame line\n", 500)
	got := Summarize(&sandbox.ExecutionError{Kind: sandbox.KindRuntime, Msg: "panic: index out of range", Stack: stack})
	if len(got) > MaxLen {
		t.Errorf("diagnostic length %d exceeds bound %d", len(got), MaxLen)
	}
	if !strings.Contains(got, "index out of range") {
		t.Errorf("truncation dropped the failure message: %q", got)
	}
}

func TestSummarizeUnknownError(t *testing.T) {
	got := Summarize(errors.New("something odd"))
	if !strings.Contains(got, "something odd") {
		t.Errorf("unknown error not preserved: %q", got)
	}
}

func TestSummarizeBounded(t *testing.T) {
	long := &validate.MismatchError{Total: 1}
	long.Mismatches = append(long.Mismatches, validate.ValueMismatch{
		Row: 0, Column: "Description", Expected: strings.Repeat("x", 5000), Actual: "y",
	})
	if got := Summarize(long); len(got) > MaxLen {
		t.Errorf("diagnostic length %d exceeds bound %d", len(got), MaxLen)
	}
}
