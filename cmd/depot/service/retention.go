package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// resident is one artifact currently on disk for a stream.
type resident struct {
	name  string
	size  int64
	mtime time.Time
}

// enforce applies the stream's retention budget: while total resident
// bytes exceed the budget and any artifact remains, delete the oldest
// by modification time. The artifact that triggered the enforcement
// gets no special treatment; a single backup larger than the whole
// budget is evicted right after its own ingest, leaving the stream
// empty. Callers hold the stream lock.
//
// Returns the eviction count and the resident total after enforcement.
func (s *Store) enforce(stream string, spec StreamSpec) (int, int64, error) {
	files, err := listResident(spec.ArchiveDir)
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, f := range files {
		total += f.size
	}

	if spec.BudgetBytes <= 0 {
		// Retention disabled: unlimited stream
		return 0, total, nil
	}

	evicted := 0
	for total > spec.BudgetBytes && len(files) > 0 {
		oldest := files[0]
		files = files[1:]

		if err := os.Remove(filepath.Join(spec.ArchiveDir, oldest.name)); err != nil {
			return evicted, total, fmt.Errorf("failed to evict %s: %w", oldest.name, err)
		}
		total -= oldest.size
		evicted++
		s.metrics.IncEvicted(stream)
		s.log.WithStream(stream).Info("evicted old backup", "filename", oldest.name, "reason", "size limit")
	}

	return evicted, total, nil
}

// listResident returns the stream's artifacts sorted oldest-first by
// modification time, ties broken by name so enforcement order is
// deterministic under coarse filesystem timestamps. Staging files and
// subdirectories are ignored.
func listResident(dir string) ([]resident, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive %s: %w", dir, err)
	}

	files := make([]resident, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".incoming-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, resident{
			name:  entry.Name(),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mtime.Equal(files[j].mtime) {
			return files[i].name < files[j].name
		}
		return files[i].mtime.Before(files[j].mtime)
	})

	return files, nil
}
