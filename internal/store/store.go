// Package store persists every synthesis attempt durably and promotes the
// first passing candidate to the target's canonical parser slot. Persistence
// failures are fatal to a run: if the audit trail cannot be written, the run
// must not continue.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// CanonicalName is the file name of a target's promoted parser.
const CanonicalName = "parser.go"

// StoreError wraps any persistence failure.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CandidateStore writes candidates under <root>/<target>/.
type CandidateStore struct {
	root string
}

// New creates a candidate store rooted at dir.
func New(root string) *CandidateStore {
	return &CandidateStore{root: root}
}

// AttemptPath is the deterministic location of one attempt's source.
func (s *CandidateStore) AttemptPath(target string, attempt int) string {
	return filepath.Join(s.root, target, fmt.Sprintf("attempt_%d.go", attempt))
}

// CanonicalPath is the location of a target's promoted parser.
func (s *CandidateStore) CanonicalPath(target string) string {
	return filepath.Join(s.root, target, CanonicalName)
}

// Save persists one attempt's source. Attempt slots are written exactly once:
// saving different source into an existing slot fails, while re-saving
// identical source is a no-op (so a retried write cannot corrupt the audit
// trail).
func (s *CandidateStore) Save(target string, attempt int, source string) (string, error) {
	path := s.AttemptPath(target, attempt)

	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, []byte(source)) {
			return path, nil
		}
		return "", &StoreError{Op: "save", Path: path, Err: fmt.Errorf("attempt slot already written with different source")}
	}

	if err := s.write(path, source); err != nil {
		return "", &StoreError{Op: "save", Path: path, Err: err}
	}
	return path, nil
}

// Promote writes the successful source to the canonical slot, overwriting any
// previous promotion. Promoting the same source twice is idempotent.
func (s *CandidateStore) Promote(target, source string) (string, error) {
	path := s.CanonicalPath(target)
	if err := s.write(path, source); err != nil {
		return "", &StoreError{Op: "promote", Path: path, Err: err}
	}
	return path, nil
}

// write lands content atomically: temp file in the target directory, then
// rename. A crashed or cancelled run never leaves a half-written file behind.
func (s *CandidateStore) write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pending-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
