package service

import (
	"fmt"
	"math"
	"time"
)

// BackupInfo describes one resident artifact in a stats response.
type BackupInfo struct {
	Filename string  `json:"filename"`
	SizeMB   float64 `json:"size_mb"`
	Modified string  `json:"modified"`
}

// StreamStats is the per-stream stats payload.
type StreamStats struct {
	BackupCount int          `json:"backup_count"`
	TotalSizeGB float64      `json:"total_size_gb"`
	MaxSizeGB   float64      `json:"max_size_gb"`
	Backups     []BackupInfo `json:"backups"`
}

// statsListingLimit caps the per-stream artifact listing at the newest
// entries.
const statsListingLimit = 10

// Stats computes retention stats for one stream, or for all streams when
// stream is empty. Stats are derived from a fresh directory scan each
// time; no index is kept, so they can never drift from disk reality.
func (s *Store) Stats(stream string) (map[string]StreamStats, error) {
	selected := make(map[string]*streamState)
	if stream == "" {
		for name, st := range s.streams {
			selected[name] = st
		}
	} else {
		st, ok := s.streams[stream]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStream, stream)
		}
		selected[stream] = st
	}

	out := make(map[string]StreamStats, len(selected))
	for name, st := range selected {
		files, err := listResident(st.spec.ArchiveDir)
		if err != nil {
			return nil, err
		}

		var total int64
		for _, f := range files {
			total += f.size
		}

		// listResident is oldest-first; stats list newest first
		limit := statsListingLimit
		if len(files) < limit {
			limit = len(files)
		}
		backups := make([]BackupInfo, 0, limit)
		for i := len(files) - 1; i >= 0 && len(backups) < limit; i-- {
			backups = append(backups, BackupInfo{
				Filename: files[i].name,
				SizeMB:   toMB(files[i].size),
				Modified: files[i].mtime.Format(time.RFC3339),
			})
		}

		out[name] = StreamStats{
			BackupCount: len(files),
			TotalSizeGB: toGB(total),
			MaxSizeGB:   st.spec.MaxSizeGB,
			Backups:     backups,
		}
	}

	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
