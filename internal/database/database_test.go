package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "library.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func worker(t *testing.T, db *Database, id string) *Conn {
	t.Helper()

	c, err := db.Worker(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(func() { db.Release(id) })
	return c
}

func TestOpen(t *testing.T) {
	t.Run("bootstraps library schema", func(t *testing.T) {
		db := openTestDB(t)
		c := worker(t, db, "w1")
		ctx := context.Background()

		for _, table := range []string{"Tracks", "Playlists", "PlaylistEntries", "CoreConfiguration"} {
			ok, err := c.TableExists(ctx, table)
			require.NoError(t, err)
			assert.True(t, ok, table)
		}

		ok, err := c.TableExists(ctx, "ArtworkCache")
		require.NoError(t, err)
		assert.False(t, ok, "artwork block must not run for the library schema")
	})

	t.Run("is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "library.db")
		ctx := context.Background()

		for range 3 {
			db, err := Open(ctx, Options{Path: path})
			require.NoError(t, err)
			require.NoError(t, db.Close())
		}

		db, err := Open(ctx, Options{Path: path})
		require.NoError(t, err)
		defer db.Close()

		c, err := db.Worker(ctx, "check")
		require.NoError(t, err)
		defer db.Release("check")

		n, err := c.QueryInt(ctx, statement.Count("CoreConfiguration").Append(
			statement.Where(statement.Compare("Key", "=", "DatabaseVersion"))))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("artwork schema", func(t *testing.T) {
		db, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "art.db"), Schema: "artwork"})
		require.NoError(t, err)
		defer db.Close()

		c := worker(t, db, "w1")
		ok, err := c.TableExists(context.Background(), "ArtworkCache")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown schema", func(t *testing.T) {
		_, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "x.db"), Schema: "podcasts"})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Open(context.Background(), Options{})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestParseScript(t *testing.T) {
	script := `
-- header
USE one
--IF TABLE NOT EXISTS A
CREATE TABLE A (
    ID INTEGER, -- trailing
    Name TEXT DEFAULT '--not a comment'
);
INSERT INTO A VALUES (1, 'x;y');
USE two
--IF TABLE NOT EXISTS B
CREATE TABLE B (ID INTEGER)
`
	got := parseScript(script)
	require.Len(t, got, 3)

	assert.Equal(t, "one", got[0].Schema)
	assert.Equal(t, "A", got[0].Guard)
	assert.Contains(t, got[0].SQL, "'--not a comment'")
	assert.NotContains(t, got[0].SQL, "trailing")

	assert.Equal(t, "one", got[1].Schema)
	assert.Empty(t, got[1].Guard, "guard applies to one statement only")

	assert.Equal(t, "two", got[2].Schema)
	assert.Equal(t, "B", got[2].Guard)
	assert.Equal(t, "CREATE TABLE B (ID INTEGER)", got[2].SQL)
}

func TestBootstrapGuards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := worker(t, db, "w1")

	script := `
USE extra
--IF TABLE NOT EXISTS Extra
CREATE TABLE Extra (ID INTEGER PRIMARY KEY, Label TEXT);
--IF TABLE NOT EXISTS Extra
INSERT INTO Extra (Label) VALUES ('seed');
`
	require.NoError(t, bootstrapScript(ctx, c, script, "extra"))
	require.NoError(t, bootstrapScript(ctx, c, script, "extra"))

	n, err := c.QueryInt(ctx, statement.Count("Extra"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	raw, err := shared.NewDatabase(path, 0)
	require.NoError(t, err)
	_, err = raw.Exec("CREATE TABLE Tracks (TrackID INTEGER PRIMARY KEY, Uri TEXT NOT NULL UNIQUE, Title TEXT)")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer db.Close()

	c := worker(t, db, "w1")
	cols, err := c.ColumnMap(ctx, "Tracks")
	require.NoError(t, err)

	for _, name := range []string{"MimeType", "LastPlayedStamp", "Rating"} {
		_, ok := cols.Index(name)
		assert.True(t, ok, name)
	}
	_, ok := cols.Index("Artist")
	assert.False(t, ok, "guarded CREATE must not rerun for an existing table")
}

func TestWorkerConnections(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	t.Run("same id same connection", func(t *testing.T) {
		a, err := db.Worker(ctx, "a")
		require.NoError(t, err)
		again, err := db.Worker(ctx, "a")
		require.NoError(t, err)
		assert.Same(t, a, again)
		require.NoError(t, db.Release("a"))
	})

	t.Run("distinct ids distinct connections", func(t *testing.T) {
		a := worker(t, db, "a")
		b := worker(t, db, "b")
		assert.NotSame(t, a, b)
		assert.Equal(t, "a", a.Worker())
		assert.Equal(t, "b", b.Worker())
	})

	t.Run("concurrent workers never share", func(t *testing.T) {
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			conns = make(map[*Conn]string)
		)
		for _, id := range []string{"w1", "w2", "w3", "w4"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				c, err := db.Worker(ctx, id)
				if !assert.NoError(t, err) {
					return
				}
				_, err = c.Insert(ctx, statement.Insert("Tracks", true, "Uri", "file:///"+id, "Title", id))
				assert.NoError(t, err)

				mu.Lock()
				if owner, ok := conns[c]; ok {
					t.Errorf("connection of %s handed to %s", owner, id)
				}
				conns[c] = id
				mu.Unlock()
			}(id)
		}
		wg.Wait()
		assert.Equal(t, 4, db.WorkerCount())

		for _, id := range conns {
			require.NoError(t, db.Release(id))
		}
		assert.Equal(t, 0, db.WorkerCount())
	})

	t.Run("release unknown is a no-op", func(t *testing.T) {
		assert.NoError(t, db.Release("nobody"))
	})

	t.Run("closed database refuses workers", func(t *testing.T) {
		closed, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "closed.db")})
		require.NoError(t, err)
		require.NoError(t, closed.Close())

		_, err = closed.Worker(ctx, "late")
		assert.ErrorIs(t, err, shared.ErrDatabaseClosed)
		assert.False(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestWriteCycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := worker(t, db, "writer")

	var cycles []WriteCycle
	unsubscribe := db.Subscribe(func(wc WriteCycle) { cycles = append(cycles, wc) })

	id, err := c.Insert(ctx, statement.Insert("Tracks", true, "Uri", "file:///a.mp3", "Title", "A"))
	require.NoError(t, err)
	assert.Positive(t, id)

	n, err := c.Execute(ctx, statement.Update("Tracks", "Rating", 4).Append(
		statement.Where(statement.Compare("TrackID", "=", id))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := c.Query(ctx, statement.Select("Tracks"))
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	require.Len(t, cycles, 2, "only mutations notify")
	assert.Equal(t, "writer", cycles[0].Worker)
	assert.Equal(t, int64(1), cycles[1].RowsAffected)

	unsubscribe()
	_, err = c.Execute(ctx, statement.Delete("Tracks"))
	require.NoError(t, err)
	assert.Len(t, cycles, 2)
}

func TestQuerySingle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := worker(t, db, "w1")

	v, err := c.QuerySingle(ctx, statement.Select("CoreConfiguration", "Value").Append(
		statement.Where(statement.Compare("Key", "=", "DatabaseVersion"))))
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = c.QuerySingle(ctx, statement.Select("Tracks", "Title").Append(
		statement.Where(statement.Compare("TrackID", "=", 999))))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestErrorKinds(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := worker(t, db, "w1")

	_, err := c.Insert(ctx, statement.Insert("Tracks", true, "Uri", "file:///dup.mp3"))
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
		want Kind
	}{
		{
			name: "constraint",
			run: func() error {
				_, err := c.Insert(ctx, statement.Insert("Tracks", true, "Uri", "file:///dup.mp3"))
				return err
			},
			want: KindConstraint,
		},
		{
			name: "missing column",
			run: func() error {
				_, err := c.Query(ctx, statement.Select("Tracks", "Nope"))
				return err
			},
			want: KindSchemaMismatch,
		},
		{
			name: "missing table",
			run: func() error {
				_, err := c.Query(ctx, statement.Select("Nope"))
				return err
			},
			want: KindSchemaMismatch,
		},
		{
			name: "syntax",
			run: func() error {
				_, err := c.Execute(ctx, statement.Raw("UPDTE Tracks SET Title = 'x'"))
				return err
			},
			want: KindSyntax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.True(t, IsKind(err, tt.want))

			var de *Error
			require.True(t, errors.As(err, &de))
			var se sqlite3.Error
			assert.True(t, errors.As(err, &se), "driver error stays reachable")
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.False(t, IsKind(nil, KindUnknown))
	})
}

func TestColumnMap(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := worker(t, db, "w1")

	m, err := c.ColumnMap(ctx, "PlaylistEntries")
	require.NoError(t, err)
	assert.Equal(t, []string{"EntryID", "PlaylistID", "TrackID", "ViewOrder"}, m.Names())

	i, ok := m.Index("trackid")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	name, ok := m.Name(3)
	assert.True(t, ok)
	assert.Equal(t, "ViewOrder", name)

	_, ok = m.Name(4)
	assert.False(t, ok)

	cached, err := c.ColumnMap(ctx, "PlaylistEntries")
	require.NoError(t, err)
	assert.Same(t, m, cached)

	_, err = c.ColumnMap(ctx, "Missing")
	assert.True(t, IsKind(err, KindSchemaMismatch))
}

func TestParseColumns(t *testing.T) {
	m, err := ParseColumns(`CREATE TABLE "X" ("A" INTEGER, B TEXT DEFAULT 'a,b', C NUMERIC(10, 2), PRIMARY KEY (A), UNIQUE (B, C))`)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, m.Names())

	_, err = ParseColumns("CREATE TABLE X")
	assert.Error(t, err)
}
