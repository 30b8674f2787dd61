// Package service implements the archive store: durable per-stream
// directories for received backups, with a retention budget enforced
// synchronously after every accepted artifact.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/backhaul-io/backhaul/common/logger"
	"github.com/backhaul-io/backhaul/common/metrics"
)

// ErrUnknownStream is returned when an artifact arrives for a stream
// identity that is not configured.
var ErrUnknownStream = errors.New("unknown stream")

// StreamSpec configures one archive stream. BudgetBytes <= 0 disables
// retention for the stream.
type StreamSpec struct {
	ArchiveDir  string
	BudgetBytes int64
	MaxSizeGB   float64 // reported in stats
}

// streamState holds a stream's runtime state. The mutex serializes the
// write+enforce sequence so concurrent ingests into the same stream
// never compute stale retention totals.
type streamState struct {
	spec StreamSpec
	mu   sync.Mutex
}

// Store holds received artifacts on disk, one directory per stream.
// Construct it once at startup and pass the handle into every
// request path; there is no ambient global.
type Store struct {
	streams map[string]*streamState
	log     *logger.Logger
	metrics metrics.DepotMetrics
}

// NewStore creates the store and its archive directories.
func NewStore(streams map[string]StreamSpec, log *logger.Logger, m metrics.DepotMetrics) (*Store, error) {
	if m == nil {
		m = metrics.Noop{}
	}
	s := &Store{
		streams: make(map[string]*streamState, len(streams)),
		log:     log,
		metrics: m,
	}
	for name, spec := range streams {
		if err := os.MkdirAll(spec.ArchiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory for stream %s: %w", name, err)
		}
		s.streams[name] = &streamState{spec: spec}
		log.Info("archive stream configured",
			"stream", name,
			"archive", spec.ArchiveDir,
			"max_size_gb", spec.MaxSizeGB,
		)
	}
	return s, nil
}

// IngestResult reports what one accepted artifact did to the stream.
type IngestResult struct {
	StoredBytes int64
	Evicted     int
}

// Ingest writes the incoming bytes to <archiveDir>/<filename>,
// overwriting any existing artifact of that name (re-delivery after a
// lost acknowledgment simply rewrites the same bytes), then enforces
// the stream's retention budget before returning. The artifact only
// becomes visible in the archive once fully received.
func (s *Store) Ingest(ctx context.Context, stream, filename string, r io.Reader) (IngestResult, error) {
	st, ok := s.streams[stream]
	if !ok {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}

	// Artifact identity is its base name; never let a filename escape
	// the archive directory.
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		return IngestResult{}, fmt.Errorf("invalid filename")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	size, err := s.receive(st.spec.ArchiveDir, filename, r)
	if err != nil {
		return IngestResult{}, err
	}

	log := s.log.WithStream(stream)
	log.Info("backup received", "filename", filename, "size_mb", toMB(size))
	s.metrics.IncReceived(stream)
	s.metrics.AddBytesReceived(stream, size)

	evicted, remaining, err := s.enforce(stream, st.spec)
	if err != nil {
		return IngestResult{StoredBytes: size}, fmt.Errorf("retention enforcement failed: %w", err)
	}
	if evicted > 0 {
		log.Info("retention cleanup",
			"evicted", evicted,
			"resident_gb", toGB(remaining),
			"max_size_gb", st.spec.MaxSizeGB,
		)
	}

	return IngestResult{StoredBytes: size, Evicted: evicted}, nil
}

// receive streams the body to a temp file in the archive directory and
// renames it into place, so a half-written upload is never visible to
// retention or stats.
func (s *Store) receive(dir, filename string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to receive artifact body: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close staging file: %w", err)
	}

	final := filepath.Join(dir, filename)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return 0, fmt.Errorf("failed to move artifact into archive: %w", err)
	}
	return size, nil
}

// Streams returns the configured stream names.
func (s *Store) Streams() []string {
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	return names
}

func toMB(bytes int64) float64 {
	return round2(float64(bytes) / (1024 * 1024))
}

func toGB(bytes int64) float64 {
	return round2(float64(bytes) / (1024 * 1024 * 1024))
}
