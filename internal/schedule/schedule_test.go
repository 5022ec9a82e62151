package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// every fires at a fixed sub-second interval, which cron.Every cannot express.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+msg)
}

func (r *recordingLogger) LogInfo(msg string)  { r.add("INFO", msg) }
func (r *recordingLogger) LogWarn(msg string)  { r.add("WARN", msg) }
func (r *recordingLogger) LogError(msg string) { r.add("ERROR", msg) }

func (r *recordingLogger) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func TestParse(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 3 * * 1-5", "@hourly", "@daily", "@every 10m"}
	for _, expr := range valid {
		_, err := Parse(expr)
		assert.NoError(t, err, expr)
	}

	invalid := []string{"", "* * *", "61 * * * *", "*/5 * * * * *", "@sometimes"}
	for _, expr := range invalid {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestNew_InvalidExpression(t *testing.T) {
	_, err := New("not a cron", func(ctx context.Context) error { return nil }, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestNext(t *testing.T) {
	s, err := New("30 2 * * *", func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, err)

	from := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 2, 2, 30, 0, 0, time.UTC), s.Next(from))
}

func TestRun_TriggersUntilCancelled(t *testing.T) {
	var calls atomic.Int64
	logger := &recordingLogger{}
	s := newScheduler("test", every(30*time.Millisecond), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))

	assert.GreaterOrEqual(t, calls.Load(), int64(2))
	assert.Equal(t, calls.Load(), s.Runs())
	assert.True(t, logger.contains("Stopping scheduler"))

	after := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no runs after Run returns")
}

func TestRun_SkipsOverlappingTriggers(t *testing.T) {
	var active, maxActive atomic.Int64
	logger := &recordingLogger{}
	s := newScheduler("test", every(20*time.Millisecond), func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, int64(1), maxActive.Load())
	assert.Greater(t, s.Skipped(), int64(0))
	assert.True(t, logger.contains("skipping this trigger"))
}

func TestRun_JobErrorIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	s := newScheduler("test", every(20*time.Millisecond), func(ctx context.Context) error {
		return errors.New("2 task(s) failed")
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.True(t, logger.contains("ERROR Scheduled run #1: 2 task(s) failed"))
}

func TestRun_RecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	var calls atomic.Int64
	s := newScheduler("test", every(20*time.Millisecond), func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.GreaterOrEqual(t, calls.Load(), int64(2))
	assert.True(t, logger.contains("panic"))
}

func TestNewScheduler_NilJobPanics(t *testing.T) {
	assert.Panics(t, func() {
		newScheduler("test", every(time.Second), nil, nil)
	})
}
