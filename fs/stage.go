// Package fs provides file-based persistence helpers and the JSON article source.
package fs

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Stage implements temp-then-rename writes for a single file.
// Content is written to a temporary path next to the final one and moved into
// place on Commit, so readers never observe a partially written file.
type Stage struct {
	final string
}

// NewStage creates a Stage for the given final path. Any leftover temporary
// file from an earlier interrupted write is removed.
func NewStage(final string) (*Stage, error) {
	s := &Stage{final: final}
	if dir := filepath.Dir(final); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	if err := s.Abort(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the temporary path content should be written to.
func (s *Stage) Path() string {
	return s.final + ".tmp"
}

// Final returns the path the staged file is committed to.
func (s *Stage) Final() string {
	return s.final
}

// Commit atomically replaces the final file with the staged one.
func (s *Stage) Commit() error {
	return os.Rename(s.Path(), s.final)
}

// Abort removes the staged file and any SQLite rollback journal next to it.
func (s *Stage) Abort() error {
	var errs []error
	for _, p := range []string{s.Path(), s.Path() + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteFile stages path, streams content through write, syncs and commits.
// On any failure the staged file is removed and path is left untouched.
func WriteFile(path string, write func(w io.Writer) error) (err error) {
	s, err := NewStage(path)
	if err != nil {
		return err
	}
	if err := WriteStaged(s, write); err != nil {
		return err
	}
	return s.Commit()
}

// WriteStaged writes the staged file of s without committing it.
// The staged file is removed on failure.
func WriteStaged(s *Stage, write func(w io.Writer) error) (err error) {
	defer func() {
		if err != nil {
			_ = s.Abort()
		}
	}()

	f, err := os.OpenFile(s.Path(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Exists reports whether a regular file exists at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}
