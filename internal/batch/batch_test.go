package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplit_TenDaysByThree(t *testing.T) {
	windows, err := Split(day("2025-01-01"), day("2025-01-10"), 3)
	require.NoError(t, err)

	var sizes []int
	for _, w := range windows {
		sizes = append(sizes, w.Days())
	}
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)
	assert.Equal(t, day("2025-01-01"), windows[0].Start)
	assert.Equal(t, day("2025-01-10"), windows[3].End)
}

func TestSplit_PartitionsRange(t *testing.T) {
	for _, tc := range []struct {
		start, end string
		size       int
	}{
		{"2025-01-01", "2025-01-01", 3},
		{"2025-01-01", "2025-01-03", 3},
		{"2024-02-27", "2024-03-02", 2},
		{"2024-12-25", "2025-01-08", 7},
		{"2025-03-01", "2025-03-31", 1},
		{"2025-03-01", "2025-03-31", 100},
	} {
		t.Run(tc.start+"_"+tc.end, func(t *testing.T) {
			windows, err := Split(day(tc.start), day(tc.end), tc.size)
			require.NoError(t, err)
			require.NotEmpty(t, windows)

			seen := map[time.Time]int{}
			for i, w := range windows {
				assert.LessOrEqual(t, w.Days(), tc.size)
				assert.False(t, w.Start.After(w.End))
				if i > 0 {
					assert.Equal(t, windows[i-1].End.AddDate(0, 0, 1), w.Start, "windows must be contiguous")
				}
				for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
					seen[d]++
				}
			}
			for d := day(tc.start); !d.After(day(tc.end)); d = d.AddDate(0, 0, 1) {
				assert.Equal(t, 1, seen[d], "day %s", d.Format(domain.DateLayout))
				delete(seen, d)
			}
			assert.Empty(t, seen, "windows cover days outside the range")
		})
	}
}

func TestSplit_TruncatesTimeOfDay(t *testing.T) {
	windows, err := Split(time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC), time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 2, windows[0].Days())
}

func TestSplit_Invalid(t *testing.T) {
	_, err := Split(time.Time{}, day("2025-01-01"), 3)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Split(day("2025-01-01"), time.Time{}, 3)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Split(day("2025-01-05"), day("2025-01-01"), 3)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Split(day("2025-01-01"), day("2025-01-05"), 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestDriver_SequentialWithDelayAndIsolation(t *testing.T) {
	windows, err := Split(day("2025-01-01"), day("2025-01-10"), 3)
	require.NoError(t, err)

	var events []string
	d := NewDriver(500*time.Millisecond, "test")
	d.sleep = func(_ context.Context, dur time.Duration) error {
		events = append(events, "sleep:"+dur.String())
		return nil
	}

	res := d.Run(context.Background(), windows, func(_ context.Context, idx int, w domain.Window) error {
		events = append(events, "run:"+w.Start.Format(domain.DateLayout))
		if idx == 1 {
			return errors.New("store unreachable")
		}
		return nil
	})

	assert.Equal(t, []string{
		"run:2025-01-01", "sleep:500ms",
		"run:2025-01-04", "sleep:500ms",
		"run:2025-01-07", "sleep:500ms",
		"run:2025-01-10",
	}, events)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, day("2025-01-04"), res.Failures[0].Window.Start)
}

func TestDriver_PanicIsAWindowFailure(t *testing.T) {
	windows, _ := Split(day("2025-01-01"), day("2025-01-02"), 1)
	d := NewDriver(0, "panic")

	calls := 0
	res := d.Run(context.Background(), windows, func(_ context.Context, idx int, _ domain.Window) error {
		calls++
		if idx == 0 {
			panic("boom")
		}
		return nil
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Succeeded)
}

func TestDriver_StopsOnCancel(t *testing.T) {
	windows, _ := Split(day("2025-01-01"), day("2025-01-05"), 1)
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDriver(time.Hour, "cancel")
	calls := 0
	res := d.Run(ctx, windows, func(context.Context, int, domain.Window) error {
		calls++
		cancel()
		return nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Succeeded)
}
