// Package stability implements the file-quiescence check used before an
// artifact is transferred: a file is considered write-complete once its
// size has stopped changing across consecutive observations.
package stability

import (
	"context"
	"os"
	"time"
)

// Options tunes the size poll
type Options struct {
	// Interval between size samples
	Interval time.Duration
	// Consecutive is the number of unchanged samples required for stability
	Consecutive int
	// Timeout bounds the whole wait
	Timeout time.Duration
}

// Result is the outcome of a stability wait
type Result struct {
	Stable bool
	Size   int64
}

const (
	defaultInterval    = 2 * time.Second
	defaultConsecutive = 3
	defaultTimeout     = 60 * time.Second
)

// Wait polls the file's size until it is unchanged for opts.Consecutive
// samples in a row. It returns a not-stable Result if the file disappears,
// the timeout elapses, or the context is cancelled. Transient stat errors
// do not count as samples; the poll simply continues.
func Wait(ctx context.Context, path string, opts Options) Result {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Consecutive <= 0 {
		opts.Consecutive = defaultConsecutive
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	deadline := time.Now().Add(opts.Timeout)
	previous := int64(-1)
	streak := 0

	for {
		info, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
			// Producer (or something else) deleted the file mid-check
			return Result{Stable: false}
		case err != nil:
			// Transient read error, keep polling
		default:
			size := info.Size()
			if size == previous {
				streak++
				if streak >= opts.Consecutive {
					return Result{Stable: true, Size: size}
				}
			} else {
				streak = 0
			}
			previous = size
		}

		if time.Now().After(deadline) {
			return Result{Stable: false}
		}

		select {
		case <-ctx.Done():
			return Result{Stable: false}
		case <-time.After(opts.Interval):
		}
	}
}
