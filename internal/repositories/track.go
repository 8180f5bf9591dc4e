package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
)

// TrackColumns lists the Tracks columns in the order the repository scans them.
var TrackColumns = []string{
	"TrackID", "Uri", "MimeType", "Artist", "AlbumTitle", "Title", "Genre", "Year", "TrackNumber",
	"TrackCount", "Duration", "DateAddedStamp", "NumberOfPlays", "LastPlayedStamp", "Rating",
}

// TrackRepository implements models.Repository[*models.Track] for the Tracks table.
type TrackRepository struct {
	conn *database.Conn
}

// NewTrackRepository creates a new TrackRepository on the given worker connection
func NewTrackRepository(conn *database.Conn) *TrackRepository {
	return &TrackRepository{conn: conn}
}

// Create inserts a new [models.Track] and records its assigned ID
func (r *TrackRepository) Create(ctx context.Context, track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if track.DateAdded.IsZero() {
		track.DateAdded = time.Now()
	}

	id, err := r.conn.Insert(ctx, statement.Insert("Tracks", true, r.values(track)...))
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	track.SetKey(id)
	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(ctx context.Context, id int64) (*models.Track, error) {
	return r.one(ctx, statement.Compare("TrackID", "=", id), strconv.FormatInt(id, 10))
}

// GetByURI retrieves a track by its file URI
func (r *TrackRepository) GetByURI(ctx context.Context, uri string) (*models.Track, error) {
	return r.one(ctx, statement.Compare("Uri", "=", uri), uri)
}

// Update writes every column of an existing track
func (r *TrackRepository) Update(ctx context.Context, track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	stmt := statement.Update("Tracks", r.values(track)...).Append(
		statement.Where(statement.Compare("TrackID", "=", track.ID)),
	)
	n, err := r.conn.Execute(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrTrackNotFound, track.ID)
	}
	return nil
}

// Delete removes a track by ID
func (r *TrackRepository) Delete(ctx context.Context, id int64) error {
	n, err := r.DeleteMany(ctx, []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrTrackNotFound, id)
	}
	return nil
}

// DeleteStatement builds the batched DELETE for ids. Split large sets with [Batches].
func DeleteStatement(ids []int64) statement.Statement {
	return statement.Delete("Tracks").Append(statement.Where(IDChain("TrackID", ids)))
}

// DeleteMany removes every track in ids, one statement per batch, and returns the affected row count
func (r *TrackRepository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	var total int64
	for _, batch := range Batches(ids, MaxBatch) {
		n, err := r.conn.Execute(ctx, DeleteStatement(batch))
		if err != nil {
			return total, fmt.Errorf("failed to delete tracks: %w", err)
		}
		total += n
	}
	return total, nil
}

// List retrieves all tracks matching the given criteria ordered by artist, album and track number.
//
// Supported criteria: "artist", "album", "genre" (exact match) and "limit" (int).
func (r *TrackRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Track, error) {
	var conds []statement.Statement
	for _, f := range [][2]string{{"artist", "Artist"}, {"album", "AlbumTitle"}, {"genre", "Genre"}} {
		if v, ok := criteria[f[0]].(string); ok && v != "" {
			conds = append(conds, statement.Compare(f[1], "=", v))
		}
	}

	stmt := statement.Select("Tracks", TrackColumns...).Append(
		statement.Where(statement.And(conds...)),
		statement.OrderBy("Artist", "AlbumTitle", "TrackNumber", "TrackID"),
	)
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		stmt = stmt.Append(statement.Limit(limit))
	}

	rows, err := r.conn.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Count returns the number of tracks in the library
func (r *TrackRepository) Count(ctx context.Context) (int64, error) {
	return r.conn.QueryInt(ctx, statement.Count("Tracks"))
}

func (r *TrackRepository) one(ctx context.Context, cond statement.Statement, key string) (*models.Track, error) {
	rows, err := r.conn.Query(ctx, statement.Select("Tracks", TrackColumns...).Append(
		statement.Where(cond), statement.Limit(1),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("row iteration error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, key)
	}
	return scanTrack(rows)
}

func (r *TrackRepository) values(t *models.Track) []any {
	return []any{
		"Uri", t.URI,
		"MimeType", nullable(t.MimeType),
		"Artist", nullable(t.Artist),
		"AlbumTitle", nullable(t.Album),
		"Title", nullable(t.Title),
		"Genre", nullable(t.Genre),
		"Year", t.Year,
		"TrackNumber", t.TrackNumber,
		"TrackCount", t.TrackCount,
		"Duration", t.Duration.Milliseconds(),
		"DateAddedStamp", t.DateAdded.Unix(),
		"NumberOfPlays", t.PlayCount,
		"LastPlayedStamp", stamp(t.LastPlayed),
		"Rating", t.Rating,
	}
}

// scanTrack scans a row selected with [TrackColumns] into a [models.Track]
func scanTrack(rows *sql.Rows) (*models.Track, error) {
	var (
		track      models.Track
		mime       sql.NullString
		artist     sql.NullString
		album      sql.NullString
		title      sql.NullString
		genre      sql.NullString
		duration   int64
		added      sql.NullInt64
		lastPlayed sql.NullInt64
	)

	err := rows.Scan(&track.ID, &track.URI, &mime, &artist, &album, &title, &genre, &track.Year,
		&track.TrackNumber, &track.TrackCount, &duration, &added, &track.PlayCount, &lastPlayed, &track.Rating)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track.MimeType = mime.String
	track.Artist = artist.String
	track.Album = album.String
	track.Title = title.String
	track.Genre = genre.String
	track.Duration = time.Duration(duration) * time.Millisecond
	track.DateAdded = fromStamp(added)
	track.LastPlayed = fromStamp(lastPlayed)
	return &track, nil
}

// TrackFromRow builds a track from an arbitrary result row, matching column names
// case-insensitively against the Tracks columns. Unknown columns are ignored.
func TrackFromRow(columns []string, values []any) *models.Track {
	var t models.Track
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		v := values[i]
		switch strings.ToLower(col) {
		case "trackid":
			t.ID = asInt(v)
		case "uri":
			t.URI = asString(v)
		case "mimetype":
			t.MimeType = asString(v)
		case "artist":
			t.Artist = asString(v)
		case "albumtitle":
			t.Album = asString(v)
		case "title":
			t.Title = asString(v)
		case "genre":
			t.Genre = asString(v)
		case "year":
			t.Year = int(asInt(v))
		case "tracknumber":
			t.TrackNumber = int(asInt(v))
		case "trackcount":
			t.TrackCount = int(asInt(v))
		case "duration":
			t.Duration = time.Duration(asInt(v)) * time.Millisecond
		case "dateaddedstamp":
			t.DateAdded = fromStamp(sql.NullInt64{Int64: asInt(v), Valid: v != nil})
		case "numberofplays":
			t.PlayCount = int(asInt(v))
		case "lastplayedstamp":
			t.LastPlayed = fromStamp(sql.NullInt64{Int64: asInt(v), Valid: v != nil})
		case "rating":
			t.Rating = int(asInt(v))
		}
	}
	return &t
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	default:
		return 0
	}
}

// IsNotFound reports whether err means the looked-up track or playlist does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrTrackNotFound) || errors.Is(err, shared.ErrPlaylistNotFound)
}
