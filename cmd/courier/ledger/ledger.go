// Package ledger tracks which backup artifacts have been handed to the
// depot. The ledger is the single source of truth for sent/unsent state
// and survives process crashes: every mutation rewrites the full CSV to
// disk before returning.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotTracked is returned when a sent-state operation references an
// artifact the ledger has never seen.
var ErrNotTracked = errors.New("artifact not tracked in ledger")

var header = []string{"filename", "is_sent"}

// Ledger is a durable filename -> sent mapping. It is not safe for
// concurrent use; delivery cycles are externally serialized.
type Ledger struct {
	path    string
	entries map[string]bool
}

// Load reads the ledger CSV at path. A missing file yields an empty
// ledger, not an error.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[string]bool),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}

	for i, row := range rows {
		if i == 0 {
			// Header row
			continue
		}
		if len(row) != 2 {
			return nil, fmt.Errorf("ledger %s: malformed row %d", path, i+1)
		}
		l.entries[row[0]] = row[1] == "true"
	}

	return l, nil
}

// Record idempotently adds an unsent entry for name. Recording an
// already-tracked artifact is a no-op and does not touch its sent state.
func (l *Ledger) Record(name string) error {
	if _, ok := l.entries[name]; ok {
		return nil
	}
	l.entries[name] = false
	return l.persist()
}

// MarkSent marks name as delivered. The transition is one-way; it fails
// with ErrNotTracked if the artifact was never recorded.
func (l *Ledger) MarkSent(name string) error {
	if _, ok := l.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, name)
	}
	l.entries[name] = true
	return l.persist()
}

// Remove deletes the entry for name unconditionally.
func (l *Ledger) Remove(name string) error {
	if _, ok := l.entries[name]; !ok {
		return nil
	}
	delete(l.entries, name)
	return l.persist()
}

// UnsentNames returns the names awaiting delivery, sorted ascending so
// repeated calls and repeated runs process artifacts in the same order.
func (l *Ledger) UnsentNames() []string {
	names := make([]string, 0, len(l.entries))
	for name, sent := range l.entries {
		if !sent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Names returns all tracked names, sorted ascending.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSent reports the sent state for name and whether it is tracked.
func (l *Ledger) IsSent(name string) (sent, tracked bool) {
	sent, tracked = l.entries[name]
	return sent, tracked
}

// Len returns the number of tracked artifacts.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// persist rewrites the full ledger to a temp file in the same directory,
// fsyncs it, and renames it over the old file. A crash at any point
// leaves either the previous or the new complete ledger on disk.
func (l *Ledger) persist() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("failed to create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, name := range l.Names() {
		sent := "false"
		if l.entries[name] {
			sent = "true"
		}
		if err := w.Write([]string{name, sent}); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush ledger: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger %s: %w", l.path, err)
	}
	return nil
}
