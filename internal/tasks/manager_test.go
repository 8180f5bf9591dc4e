package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/shared"
	tu "github.com/desertthunder/cadence/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

// blockingJob returns a job that signals started and then blocks until release is closed or it is canceled.
func blockingJob(lc *LibraryContext, tables ...string) (job *testJob, started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	job = newTestJob(lc, tables, func(ctx context.Context, _ *database.Conn) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	return job, started, release
}

func TestManagerSingleWriterPerTable(t *testing.T) {
	lc := newMemoryContext(t)

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		mu        sync.Mutex
		order     []int
	)

	const n = 6
	for i := range n {
		job := newTestJob(lc, []string{"Tracks"}, func(context.Context, *database.Conn) error {
			cur := active.Add(1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		})
		require.NoError(t, lc.Manager.Register(job))
	}

	waitManager(t, lc.Manager)

	assert.Equal(t, int32(1), maxActive.Load(), "two transactions ran against Tracks at once")
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order, "queued transactions must run in registration order")
	assert.Equal(t, 0, lc.Manager.TableCount())
}

func TestManagerDifferentTablesRunConcurrently(t *testing.T) {
	lc := newMemoryContext(t)

	tracks, tracksStarted, releaseTracks := blockingJob(lc, "Tracks")
	playlists, playlistsStarted, releasePlaylists := blockingJob(lc, "Playlists")

	require.NoError(t, lc.Manager.Register(tracks))
	require.NoError(t, lc.Manager.Register(playlists))

	for _, ch := range []chan struct{}{tracksStarted, playlistsStarted} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("transactions on different tables must not wait for each other")
		}
	}

	assert.Equal(t, 2, lc.Manager.TableCount())
	assert.Len(t, lc.Manager.Running(), 2)

	close(releaseTracks)
	close(releasePlaylists)
	waitManager(t, lc.Manager)
}

func TestManagerMultiTableAdmission(t *testing.T) {
	lc := newMemoryContext(t)

	first, firstStarted, releaseFirst := blockingJob(lc, "Tracks")
	both, bothStarted, releaseBoth := blockingJob(lc, "Tracks", "PlaylistEntries")
	entries, entriesStarted, releaseEntries := blockingJob(lc, "PlaylistEntries")

	require.NoError(t, lc.Manager.Register(first))
	<-firstStarted
	require.NoError(t, lc.Manager.Register(both))
	require.NoError(t, lc.Manager.Register(entries))

	assert.Equal(t, StateQueued, both.State())
	assert.Equal(t, StateQueued, entries.State(), "later job must not overtake one queued on the same table")
	assert.Len(t, lc.Manager.Queued(), 2)

	close(releaseFirst)
	<-bothStarted
	assert.Equal(t, StateQueued, entries.State())

	close(releaseBoth)
	<-entriesStarted
	close(releaseEntries)
	waitManager(t, lc.Manager)
}

func TestManagerTableless(t *testing.T) {
	lc := newMemoryContext(t)

	holder, holderStarted, release := blockingJob(lc, "Tracks")
	require.NoError(t, lc.Manager.Register(holder))
	<-holderStarted

	free, freeStarted, releaseFree := blockingJob(lc)
	require.NoError(t, lc.Manager.Register(free))

	select {
	case <-freeStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("a transaction without tables must start immediately")
	}
	assert.Equal(t, 1, lc.Manager.TableCount())

	close(release)
	close(releaseFree)
	waitManager(t, lc.Manager)
}

func TestManagerTopExecution(t *testing.T) {
	lc := newMemoryContext(t)
	assert.Nil(t, lc.Manager.TopExecution())

	a, aStarted, releaseA := blockingJob(lc, "Tracks")
	b, bStarted, releaseB := blockingJob(lc, "Playlists")

	require.NoError(t, lc.Manager.Register(a))
	<-aStarted
	assert.Same(t, a.Transaction, lc.Manager.TopExecution())

	require.NoError(t, lc.Manager.Register(b))
	<-bStarted
	assert.Same(t, b.Transaction, lc.Manager.TopExecution())

	close(releaseB)
	waitFinished(t, b.Transaction)
	tu.Eventually(t, 5*time.Second, func() bool {
		return lc.Manager.TopExecution() == a.Transaction
	}, "top execution falls back to the older transaction")

	close(releaseA)
	waitManager(t, lc.Manager)
	assert.Nil(t, lc.Manager.TopExecution())
}

func TestManagerRegister(t *testing.T) {
	t.Run("rejects a second registration", func(t *testing.T) {
		lc := newMemoryContext(t)
		job, started, release := blockingJob(lc, "Tracks")

		require.NoError(t, lc.Manager.Register(job))
		<-started
		assert.ErrorIs(t, lc.Manager.Register(job), shared.ErrTransactionStarted)

		close(release)
		waitManager(t, lc.Manager)
		assert.ErrorIs(t, lc.Manager.Register(job), shared.ErrTransactionDone)
	})

	t.Run("rejects after close", func(t *testing.T) {
		lc := newMemoryContext(t)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, lc.Manager.Close(ctx))

		assert.ErrorIs(t, lc.Manager.Register(newTestJob(lc, nil, nil)), shared.ErrManagerClosed)
	})

	t.Run("register through the transaction", func(t *testing.T) {
		lc := newMemoryContext(t)
		job := newTestJob(lc, []string{"Tracks"}, nil)

		require.NoError(t, job.Register())
		waitFinished(t, job.Transaction)
		waitManager(t, lc.Manager)
	})
}

func TestManagerCancel(t *testing.T) {
	t.Run("by kind cancels running and queued", func(t *testing.T) {
		lc := newMemoryContext(t)

		running, started, _ := blockingJob(lc, "Tracks")
		ranQueued := atomic.Bool{}
		queued := newTestJob(lc, []string{"Tracks"}, func(context.Context, *database.Conn) error {
			ranQueued.Store(true)
			return nil
		})
		other, otherStarted, releaseOther := blockingJob(lc, "Playlists")
		other.kind = "other"

		require.NoError(t, lc.Manager.Register(running))
		require.NoError(t, lc.Manager.Register(other))
		<-started
		<-otherStarted
		require.NoError(t, lc.Manager.Register(queued))

		require.NoError(t, lc.Manager.Cancel("test"))
		waitFinished(t, running.Transaction)
		waitFinished(t, queued.Transaction)

		assert.Equal(t, StateCanceled, running.State())
		assert.Equal(t, StateCanceled, queued.State())
		assert.False(t, ranQueued.Load(), "a canceled queued transaction must never run")
		assert.Equal(t, StateRunning, other.State(), "other kinds are untouched")

		close(releaseOther)
		waitManager(t, lc.Manager)
		assert.Equal(t, StateFinished, other.State())
	})

	t.Run("all joins timeouts", func(t *testing.T) {
		lc := newMemoryContext(t)
		lc.Options.CancelGrace = 30 * time.Millisecond

		stuck := make(chan struct{})
		defer close(stuck)
		var jobs []*testJob
		for _, table := range []string{"Tracks", "Playlists"} {
			started := make(chan struct{})
			job := newTestJob(lc, []string{table}, func(context.Context, *database.Conn) error {
				close(started)
				<-stuck
				return nil
			})
			require.NoError(t, lc.Manager.Register(job))
			<-started
			jobs = append(jobs, job)
		}

		err := lc.Manager.CancelAll()
		require.ErrorIs(t, err, shared.ErrCancelTimeout)
		for _, job := range jobs {
			waitFinished(t, job.Transaction)
			assert.ErrorIs(t, job.LastError(), shared.ErrCancelTimeout)
		}
		assert.Equal(t, 2, lc.Manager.TableCount(), "abandoned workers keep their tables until they return")
	})

	t.Run("abandoned transaction releases its table on exit", func(t *testing.T) {
		lc := newMemoryContext(t)
		lc.Options.CancelGrace = 30 * time.Millisecond

		started := make(chan struct{})
		stuck := make(chan struct{})
		abandoned := newTestJob(lc, []string{"Tracks"}, func(context.Context, *database.Conn) error {
			close(started)
			<-stuck
			return nil
		})
		next := newTestJob(lc, []string{"Tracks"}, nil)

		require.NoError(t, lc.Manager.Register(abandoned))
		<-started
		require.ErrorIs(t, abandoned.Cancel(), shared.ErrCancelTimeout)

		require.NoError(t, lc.Manager.Register(next))
		assert.Equal(t, StateQueued, next.State())

		close(stuck)
		waitFinished(t, next.Transaction)
		waitManager(t, lc.Manager)
		assert.Equal(t, StateFinished, next.State())
	})
}
