// Package batch splits inclusive date ranges into fixed-size windows and
// drives them one at a time with a pause in between, so that a long backfill
// never puts more than one window's worth of load on the event store.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
)

// DefaultDelay is the pause inserted between consecutive windows.
const DefaultDelay = 500 * time.Millisecond

var (
	ErrInvalidRange     = errors.New("invalid date range")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

// Split tiles [start, end] with windows of at most size days. Windows are
// ascending, contiguous and non-overlapping; only the last may be shorter.
// Both dates are truncated to their UTC calendar day.
func Split(start, end time.Time, size int) ([]domain.Window, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	start, end = domain.Day(start), domain.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}

	var windows []domain.Window
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, size) {
		last := cur.AddDate(0, 0, size-1)
		if last.After(end) {
			last = end
		}
		windows = append(windows, domain.Window{Start: cur, End: last})
	}
	return windows, nil
}

// WindowFunc processes one window. idx is zero-based.
type WindowFunc func(ctx context.Context, idx int, w domain.Window) error

// Result tallies a Driver run.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []WindowFailure
}

// WindowFailure records a window whose processing returned an error.
type WindowFailure struct {
	Window domain.Window
	Err    error
}

// Driver runs windows strictly in order, never two at once, and waits Delay
// between them. A failing window is logged and counted; it never stops the
// run and it is not retried.
type Driver struct {
	Delay time.Duration
	Label string

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver returns a driver with the given inter-window delay. A negative
// delay is treated as zero.
func NewDriver(delay time.Duration, label string) *Driver {
	if delay < 0 {
		delay = 0
	}
	return &Driver{Delay: delay, Label: label, sleep: sleepCtx}
}

// Run processes every window. It returns early only if ctx is cancelled.
func (d *Driver) Run(ctx context.Context, windows []domain.Window, fn WindowFunc) Result {
	res := Result{Total: len(windows)}
	sleep := d.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for i, w := range windows {
		if ctx.Err() != nil {
			logger.Warn("batch run cancelled", "label", d.Label, "remaining", len(windows)-i)
			break
		}

		logger.Info("processing window", "label", d.Label, "batch", fmt.Sprintf("%d/%d", i+1, len(windows)),
			"start", w.Start.Format(domain.DateLayout), "end", w.End.Format(domain.DateLayout))

		if err := d.runOne(ctx, i, w, fn); err != nil {
			logger.Error("window failed", "label", d.Label, "batch", fmt.Sprintf("%d/%d", i+1, len(windows)),
				"window", w.String(), "error", err)
			res.Failed++
			res.Failures = append(res.Failures, WindowFailure{Window: w, Err: err})
		} else {
			logger.Info("window completed", "label", d.Label, "batch", fmt.Sprintf("%d/%d", i+1, len(windows)))
			res.Succeeded++
		}

		if i < len(windows)-1 && d.Delay > 0 {
			if err := sleep(ctx, d.Delay); err != nil {
				logger.Warn("batch run cancelled during delay", "label", d.Label, "remaining", len(windows)-i-1)
				break
			}
		}
	}
	return res
}

func (d *Driver) runOne(ctx context.Context, idx int, w domain.Window, fn WindowFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing window %s: %v", w, r)
		}
	}()
	return fn(ctx, idx, w)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
