package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/taskrunner/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeReport(id string, start time.Time, statuses ...string) *models.RunReport {
	report := models.NewRunReport(id, start)
	for i, status := range statuses {
		res := models.TaskResult{
			TaskName:  string(rune('a' + i)),
			Status:    status,
			Attempts:  1,
			StartedAt: start.Add(time.Duration(i) * time.Second),
			Duration:  time.Duration(i+1) * 100 * time.Millisecond,
		}
		if status == models.StatusFailure {
			res.Attempts = 3
			res.Error = errors.New("exit status 1")
			res.Trace = "task failed\nExit code: 1\n"
		}
		report.Add(res)
	}
	report.Finish(start.Add(10 * time.Second))
	return report
}

func TestNewStore_InMemory(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(ctx, makeReport("run-1", time.Now(), models.StatusSuccess), ""))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestRecordRun_AndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	report := makeReport("0f8c2b1e-run", start, models.StatusSuccess, models.StatusFailure)
	require.NoError(t, store.RecordRun(ctx, report, "/logs/run-20240305-140709.log"))

	run, err := store.GetRun(ctx, "0f8c2b1e-run")
	require.NoError(t, err)

	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 10*time.Second, run.Duration())
	assert.True(t, run.StartedAt.Equal(start))
	assert.True(t, run.FinishedAt.Valid)
	assert.Equal(t, "/logs/run-20240305-140709.log", run.FailureLog.String)

	require.Len(t, run.Tasks, 2)
	assert.Equal(t, "a", run.Tasks[0].TaskName)
	assert.Equal(t, models.StatusSuccess, run.Tasks[0].Status)
	assert.False(t, run.Tasks[0].ErrorMessage.Valid)
	assert.Equal(t, "b", run.Tasks[1].TaskName)
	assert.Equal(t, 3, run.Tasks[1].Attempts)
	assert.Equal(t, 200*time.Millisecond, run.Tasks[1].Duration())
	assert.Equal(t, "exit status 1", run.Tasks[1].ErrorMessage.String)
	assert.Contains(t, run.Tasks[1].Trace.String, "Exit code: 1")
}

func TestRecordRun_DuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := makeReport("dup", time.Now(), models.StatusSuccess)
	require.NoError(t, store.RecordRun(ctx, report, ""))
	assert.Error(t, store.RecordRun(ctx, report, ""))
}

func TestGetRun_Prefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordRun(ctx, makeReport("abc111", now, models.StatusSuccess), ""))
	require.NoError(t, store.RecordRun(ctx, makeReport("abc222", now, models.StatusSuccess), ""))

	run, err := store.GetRun(ctx, "abc2")
	require.NoError(t, err)
	assert.Equal(t, "abc222", run.ID)

	_, err = store.GetRun(ctx, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = store.GetRun(ctx, "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// LIKE wildcards in the query are matched literally.
	_, err = store.GetRun(ctx, "abc%")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.RecordRun(ctx, makeReport(id, base.Add(time.Duration(i)*time.Hour), models.StatusSuccess), ""))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
	assert.Nil(t, runs[0].Tasks)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTaskHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun(ctx, makeReport("r1", base, models.StatusFailure), ""))
	require.NoError(t, store.RecordRun(ctx, makeReport("r2", base.Add(time.Hour), models.StatusSuccess), ""))

	records, err := store.TaskHistory(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].RunID)
	assert.Equal(t, models.StatusSuccess, records[0].Status)
	assert.Equal(t, models.StatusFailure, records[1].Status)
}
