package ledger

import (
	"fmt"
	"strings"
)

// ReconcileStats reports what a reconciliation pass changed.
type ReconcileStats struct {
	Added   int
	Removed int
}

// Reconcile brings the ledger back in line with the watched directory:
// tracked artifacts no longer on disk are dropped, and backup files not
// yet tracked are recorded unsent. listing is the directory's file names;
// extensions filters which of them count as backup artifacts.
//
// This runs at the start of every delivery cycle and is the only place
// new artifacts enter the ledger.
func (l *Ledger) Reconcile(listing []string, extensions []string) (ReconcileStats, error) {
	var stats ReconcileStats

	current := make(map[string]struct{}, len(listing))
	for _, name := range listing {
		if IsBackupFile(name, extensions) {
			current[name] = struct{}{}
		}
	}

	// Tracked but gone from disk: stop tracking
	for _, name := range l.Names() {
		if _, ok := current[name]; !ok {
			if err := l.Remove(name); err != nil {
				return stats, fmt.Errorf("failed to drop vanished artifact %s: %w", name, err)
			}
			stats.Removed++
		}
	}

	// On disk but untracked: record as unsent
	for name := range current {
		if _, tracked := l.entries[name]; !tracked {
			if err := l.Record(name); err != nil {
				return stats, fmt.Errorf("failed to record new artifact %s: %w", name, err)
			}
			stats.Added++
		}
	}

	return stats, nil
}

// IsBackupFile reports whether name carries one of the configured backup
// extensions. An empty extension list matches everything.
func IsBackupFile(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
