package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		DriverMemory: func(t *testing.T) Backend {
			b, err := NewBackend(context.Background(), &Config{Driver: DriverMemory})
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		DriverSQLite: func(t *testing.T) Backend {
			b, err := NewBackend(context.Background(), &Config{
				Driver: DriverSQLite,
				Path:   filepath.Join(t.TempDir(), "db", "attackq.db"),
			})
			if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
				t.Skip("sqlite driver requires cgo")
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
}

func sampleJob(id string, queuedAt time.Time) job.Job {
	j := job.New(id, job.Spec{
		Target:   "192.0.2.5",
		Type:     job.TypeBruteforce,
		Priority: true,
		Parameters: map[string]any{
			"service":   "ssh",
			"user_list": "users.txt",
			"pass_list": "pass.txt",
		},
		Timeout: 30 * time.Minute,
	}, queuedAt)
	return *j
}

func TestBackend_JobRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()
			queued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			j := sampleJob("job-1", queued)
			require.NoError(t, b.SaveJob(ctx, j))

			started := queued.Add(time.Second)
			require.NoError(t, j.Transition(job.TriggerDispatch, started))
			j.Credentials = 2
			j.LastError = "process exited with code 255"
			require.NoError(t, b.SaveJob(ctx, j))

			got, err := b.LoadJob(ctx, "job-1")
			require.NoError(t, err)
			require.Equal(t, job.StateRunning, got.State)
			require.Equal(t, job.LanePriority, got.Lane)
			require.Equal(t, 2, got.Credentials)
			require.Equal(t, "process exited with code 255", got.LastError)
			require.True(t, got.QueuedAt.Equal(queued))
			require.NotNil(t, got.StartedAt)
			require.True(t, got.StartedAt.Equal(started))
			require.Nil(t, got.FinishedAt)
			require.Equal(t, 30*time.Minute, got.Spec.Timeout)
			require.Equal(t, "ssh", got.Spec.Parameters["service"])

			_, err = b.LoadJob(ctx, "missing")
			require.True(t, IsNotFound(err))

			require.True(t, IsInvalidInput(b.SaveJob(ctx, job.Job{})))
		})
	}
}

func TestBackend_ListJobs(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()
			base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			for i, id := range []string{"a", "b", "c", "d", "e"} {
				j := sampleJob(id, base.Add(time.Duration(i)*time.Second))
				if id == "c" {
					j.State = job.StateCompleted
				}
				require.NoError(t, b.SaveJob(ctx, j))
			}

			page, err := b.ListJobs(ctx, JobFilter{Limit: 2})
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, ids(page.Jobs))
			require.NotEmpty(t, page.NextCursor)

			page, err = b.ListJobs(ctx, JobFilter{Limit: 2, Cursor: page.NextCursor})
			require.NoError(t, err)
			require.Equal(t, []string{"c", "d"}, ids(page.Jobs))

			page, err = b.ListJobs(ctx, JobFilter{Limit: 2, Cursor: page.NextCursor})
			require.NoError(t, err)
			require.Equal(t, []string{"e"}, ids(page.Jobs))
			require.Empty(t, page.NextCursor)

			page, err = b.ListJobs(ctx, JobFilter{States: []job.State{job.StateQueued, job.StateRunning}})
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b", "d", "e"}, ids(page.Jobs))

			_, err = b.ListJobs(ctx, JobFilter{Cursor: "%%%"})
			require.True(t, IsInvalidInput(err))
		})
	}
}

func TestBackend_Logs(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			require.NoError(t, b.AppendLog(ctx, "job-1", LevelInfo, "job queued"))
			require.NoError(t, b.AppendLog(ctx, "job-2", LevelInfo, "other job"))
			require.NoError(t, b.AppendLog(ctx, "job-1", LevelWarn, "attempt 1 failed"))
			require.True(t, IsInvalidInput(b.AppendLog(ctx, "job-1", "trace", "x")))

			logs, err := b.Logs(ctx, "job-1")
			require.NoError(t, err)
			require.Len(t, logs, 2)
			require.Equal(t, "job queued", logs[0].Message)
			require.Equal(t, LevelWarn, logs[1].Level)
			require.Less(t, logs[0].Seq, logs[1].Seq)
			require.False(t, logs[0].At.IsZero())

			none, err := b.Logs(ctx, "job-3")
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}

func TestBackend_CredentialsAreUniquePerJob(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()
			found := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			rec := extract.Record{
				Host: "192.0.2.5", Service: "ssh", Port: 22,
				Username: "root", Password: "toor",
				SourceJobID: "job-1", FoundAt: found,
			}
			require.NoError(t, b.SaveCredential(ctx, rec))

			upper := rec
			upper.Host = "192.0.2.5"
			upper.Service = "SSH"
			require.NoError(t, b.SaveCredential(ctx, upper), "duplicates are ignored, not rejected")

			other := rec
			other.SourceJobID = "job-2"
			require.NoError(t, b.SaveCredential(ctx, other))

			orphan := rec
			orphan.SourceJobID = ""
			require.True(t, IsInvalidInput(b.SaveCredential(ctx, orphan)))

			mine, err := b.ListCredentials(ctx, "job-1")
			require.NoError(t, err)
			require.Len(t, mine, 1)
			require.Equal(t, "toor", mine[0].Password)
			require.True(t, mine[0].FoundAt.Equal(found))

			all, err := b.ListCredentials(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
		})
	}
}

func TestBackend_Closed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			require.NoError(t, b.Close())
			require.ErrorIs(t, b.SaveJob(context.Background(), sampleJob("x", time.Now())), ErrClosed)
			_, err := b.LoadJob(context.Background(), "x")
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestSQLite_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attackq.db")
	b, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	if err := b.Initialize(ctx); err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite driver requires cgo")
	} else {
		require.NoError(t, err)
	}
	require.NoError(t, b.Initialize(ctx))

	v, err := b.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, len(migrations), v)
}

func ids(jobs []job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
