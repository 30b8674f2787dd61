// Package agent orchestrates one delivery cycle: reconcile the ledger
// against the watch directory, then stabilize and upload every unsent
// artifact, committing each one sent only after the depot confirms it.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/backhaul-io/backhaul/cmd/courier/ledger"
	"github.com/backhaul-io/backhaul/cmd/courier/upload"
	"github.com/backhaul-io/backhaul/common/logger"
	"github.com/backhaul-io/backhaul/common/metrics"
	"github.com/backhaul-io/backhaul/common/stability"
)

// Uploader is the transfer dependency; satisfied by *upload.Client.
type Uploader interface {
	Send(ctx context.Context, path, stream string) upload.Result
}

// Agent runs delivery cycles for one stream. Cycles are sequential and
// single-threaded; the invoking scheduler must not overlap them.
type Agent struct {
	stream     string
	watchDir   string
	extensions []string
	led        *ledger.Ledger
	uploader   Uploader
	stability  stability.Options
	log        *logger.Logger
	metrics    metrics.CourierMetrics
}

// New creates an agent.
func New(stream, watchDir string, extensions []string, led *ledger.Ledger, uploader Uploader, stabilityOpts stability.Options, log *logger.Logger, m metrics.CourierMetrics) *Agent {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Agent{
		stream:     stream,
		watchDir:   watchDir,
		extensions: extensions,
		led:        led,
		uploader:   uploader,
		stability:  stabilityOpts,
		log:        log.WithStream(stream),
		metrics:    m,
	}
}

// CycleReport summarizes one delivery cycle.
type CycleReport struct {
	CycleID    string
	Discovered int
	Dropped    int
	Uploaded   int
	Skipped    int
	Failed     int
}

// RunCycle performs one batch cycle. Individual artifact failures are
// logged and counted but never abort the cycle; only ledger or directory
// I/O errors do, since losing delivery state is worse than a late backup.
func (a *Agent) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{CycleID: uuid.NewString()}
	log := a.log.WithCycle(report.CycleID)

	entries, err := os.ReadDir(a.watchDir)
	if err != nil {
		return report, fmt.Errorf("failed to list watch directory %s: %w", a.watchDir, err)
	}
	listing := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			listing = append(listing, entry.Name())
		}
	}

	stats, err := a.led.Reconcile(listing, a.extensions)
	if err != nil {
		return report, fmt.Errorf("reconciliation failed: %w", err)
	}
	report.Discovered = stats.Added
	report.Dropped = stats.Removed
	for i := 0; i < stats.Added; i++ {
		a.metrics.IncDiscovered(a.stream)
	}
	if stats.Added > 0 || stats.Removed > 0 {
		log.Info("ledger reconciled", "added", stats.Added, "removed", stats.Removed)
	}

	for _, name := range a.led.UnsentNames() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		path := filepath.Join(a.watchDir, name)

		res := stability.Wait(ctx, path, a.stability)
		if !res.Stable {
			// Still being written, or gone; retried next cycle
			log.Info("artifact not yet stable, skipping", "artifact", name)
			a.metrics.IncSkippedUnstable(a.stream)
			report.Skipped++
			continue
		}

		log.Info("sending artifact", "artifact", name, "size_bytes", res.Size)
		result := a.uploader.Send(ctx, path, a.stream)

		if result.Outcome != upload.Delivered {
			log.Warn("upload failed, artifact stays unsent",
				"artifact", name,
				"outcome", string(result.Outcome),
				"status", result.StatusCode,
				"error", result.Err,
			)
			a.metrics.IncUploadFailed(a.stream, string(result.Outcome))
			report.Failed++
			continue
		}

		if err := a.led.MarkSent(name); err != nil {
			return report, fmt.Errorf("failed to commit sent state for %s: %w", name, err)
		}
		log.Info("artifact delivered", "artifact", name, "server_message", result.Message)
		a.metrics.IncUploaded(a.stream)
		report.Uploaded++
	}

	return report, nil
}
