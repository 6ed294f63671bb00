// Package sandbox executes one candidate parser in an isolated yaegi
// interpreter. A fresh interpreter is created per execution so no state ever
// leaks between attempts. Every fault inside the candidate, from a missing
// entry point or forbidden import to a panic or timeout, surfaces as a typed
// ExecutionError instead of a raw interpreter error.
package sandbox

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"parseforge/internal/table"
)

// EntryPoint is the function every candidate must define in package main:
//
//	func Parse(inputPath string) ([][]string, error)
//
// The first returned record is the header row.
const EntryPoint = "Parse"

// DefaultTimeout bounds one candidate execution.
const DefaultTimeout = 10 * time.Second

// ErrKind classifies execution failures.
type ErrKind int

const (
	KindEval            ErrKind = iota // source does not evaluate
	KindNoEntryPoint                   // Parse not defined
	KindBadSignature                   // Parse has the wrong shape
	KindForbiddenImport                // candidate imports outside the allowlist
	KindBadResult                      // Parse returned an unusable record set
	KindRuntime                        // panic or error inside the candidate
	KindTimeout                        // wall-clock budget exceeded
)

func (k ErrKind) String() string {
	switch k {
	case KindEval:
		return "eval"
	case KindNoEntryPoint:
		return "no_entry_point"
	case KindBadSignature:
		return "bad_signature"
	case KindForbiddenImport:
		return "forbidden_import"
	case KindBadResult:
		return "bad_result"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// ExecutionError is the only error type Execute returns. Stack is populated
// for runtime faults.
type ExecutionError struct {
	Kind  ErrKind
	Msg   string
	Stack string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("candidate execution failed (%s): %s", e.Kind, e.Msg)
}

// Executor runs candidate sources. Safe for concurrent use; each call owns
// its interpreter.
type Executor struct {
	timeout time.Duration
	allowed map[string]bool
	logger  *zap.Logger
}

// New creates an executor with the given per-execution timeout.
func New(timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		timeout: timeout,
		logger:  logger,
		allowed: map[string]bool{
			// Candidates must read their input artifact, so file access
			// stays open; process, network and unsafe access do not.
			"bufio":        true,
			"encoding/csv": true,
			"errors":       true,
			"fmt":          true,
			"os":           true,
			"regexp":       true,
			"sort":         true,
			"strconv":      true,
			"strings":      true,
			"time":         true,
			"unicode":      true,
			"unicode/utf8": true,
		},
	}
}

// Execute loads the candidate at sourcePath into a fresh interpreter and
// invokes its entry point against inputPath. The run context is not consulted
// mid-flight; only the executor's own timeout bounds the call.
func (ex *Executor) Execute(ctx context.Context, sourcePath, inputPath string) (*table.Table, error) {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, &ExecutionError{Kind: KindEval, Msg: fmt.Sprintf("read candidate: %v", err)}
	}

	code := string(src)
	if err := ex.checkImports(code); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &ExecutionError{Kind: KindEval, Msg: fmt.Sprintf("load stdlib symbols: %v", err)}
	}

	if _, err := i.Eval(code); err != nil {
		return nil, &ExecutionError{Kind: KindEval, Msg: err.Error()}
	}

	entry, err := i.Eval("main." + EntryPoint)
	if err != nil {
		return nil, &ExecutionError{Kind: KindNoEntryPoint, Msg: fmt.Sprintf("candidate does not define %s: %v", EntryPoint, err)}
	}

	parseFn, ok := entry.Interface().(func(string) ([][]string, error))
	if !ok {
		return nil, &ExecutionError{
			Kind: KindBadSignature,
			Msg:  fmt.Sprintf("%s has the wrong signature (want func(string) ([][]string, error))", EntryPoint),
		}
	}

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ex.timeout)
	defer cancel()

	records, err := ex.invoke(execCtx, parseFn, inputPath)
	if err != nil {
		return nil, err
	}

	tbl, err := table.FromRecords(records)
	if err != nil {
		return nil, &ExecutionError{Kind: KindBadResult, Msg: err.Error()}
	}
	return tbl, nil
}

// invoke calls the candidate entry point on its own goroutine so a hung
// candidate cannot stall the run past the timeout. Panics are contained here.
func (ex *Executor) invoke(ctx context.Context, fn func(string) ([][]string, error), inputPath string) ([][]string, *ExecutionError) {
	type outcome struct {
		records [][]string
		err     *ExecutionError
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &ExecutionError{
					Kind:  KindRuntime,
					Msg:   fmt.Sprintf("panic: %v", r),
					Stack: string(debug.Stack()),
				}}
			}
		}()
		records, err := fn(inputPath)
		if err != nil {
			done <- outcome{err: &ExecutionError{Kind: KindRuntime, Msg: err.Error()}}
			return
		}
		done <- outcome{records: records}
	}()

	select {
	case out := <-done:
		return out.records, out.err
	case <-ctx.Done():
		ex.logger.Warn("candidate execution timed out", zap.Duration("timeout", ex.timeout))
		return nil, &ExecutionError{Kind: KindTimeout, Msg: fmt.Sprintf("execution exceeded %s", ex.timeout)}
	}
}

// checkImports parses the candidate and rejects imports outside the
// allowlist before any code runs.
func (ex *Executor) checkImports(code string) *ExecutionError {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", code, parser.ImportsOnly)
	if err != nil {
		return &ExecutionError{Kind: KindEval, Msg: fmt.Sprintf("syntax error: %v", err)}
	}

	var forbidden []string
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !ex.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return &ExecutionError{
			Kind: KindForbiddenImport,
			Msg:  fmt.Sprintf("forbidden imports: %v", forbidden),
		}
	}
	return nil
}
