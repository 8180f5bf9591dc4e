package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
)

var playlistColumns = []string{"PlaylistID", "Name", "SortColumn", "SortType"}

// PlaylistRepository implements models.Repository[*models.Playlist] and manages playlist membership.
type PlaylistRepository struct {
	conn *database.Conn
}

// NewPlaylistRepository creates a new PlaylistRepository on the given worker connection
func NewPlaylistRepository(conn *database.Conn) *PlaylistRepository {
	return &PlaylistRepository{conn: conn}
}

// Create inserts a new playlist and records its assigned ID
func (r *PlaylistRepository) Create(ctx context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id, err := r.conn.Insert(ctx, statement.Insert("Playlists", true,
		"Name", playlist.Name,
		"SortColumn", playlist.SortColumn,
		"SortType", playlist.SortType,
	))
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	playlist.SetKey(id)
	return nil
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(ctx context.Context, id int64) (*models.Playlist, error) {
	return r.one(ctx, statement.Compare("PlaylistID", "=", id), strconv.FormatInt(id, 10))
}

// GetByName retrieves a playlist by its unique name
func (r *PlaylistRepository) GetByName(ctx context.Context, name string) (*models.Playlist, error) {
	return r.one(ctx, statement.Compare("Name", "=", name), name)
}

// FindOrCreate returns the playlist named name, creating it when absent.
func (r *PlaylistRepository) FindOrCreate(ctx context.Context, name string) (*models.Playlist, bool, error) {
	p, err := r.GetByName(ctx, name)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, false, err
	}

	p = models.NewPlaylist(name)
	if err := r.Create(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Update modifies the name and sort of an existing playlist
func (r *PlaylistRepository) Update(ctx context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	n, err := r.conn.Execute(ctx, statement.Update("Playlists",
		"Name", playlist.Name,
		"SortColumn", playlist.SortColumn,
		"SortType", playlist.SortType,
	).Append(statement.Where(statement.Compare("PlaylistID", "=", playlist.ID))))
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrPlaylistNotFound, playlist.ID)
	}
	return nil
}

// Delete removes a playlist and, through the foreign key, its entries
func (r *PlaylistRepository) Delete(ctx context.Context, id int64) error {
	n, err := r.conn.Execute(ctx, statement.Delete("Playlists").Append(
		statement.Where(statement.Compare("PlaylistID", "=", id)),
	))
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrPlaylistNotFound, id)
	}
	return nil
}

// List retrieves all playlists ordered by name. Supported criteria: "name" (LIKE pattern).
func (r *PlaylistRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Playlist, error) {
	stmt := statement.Select("Playlists", playlistColumns...)
	if name, ok := criteria["name"].(string); ok && name != "" {
		stmt = stmt.Append(statement.Where(statement.Compare("Name", "LIKE", name)))
	}
	stmt = stmt.Append(statement.OrderBy("Name"))

	rows, err := r.conn.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.SortColumn, &p.SortType); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// AddEntry appends a track to a playlist at entry.ViewOrder
func (r *PlaylistRepository) AddEntry(ctx context.Context, entry *models.PlaylistEntry) error {
	id, err := r.conn.Insert(ctx, statement.Insert("PlaylistEntries", true,
		"PlaylistID", entry.PlaylistID,
		"TrackID", entry.TrackID,
		"ViewOrder", entry.ViewOrder,
	))
	if err != nil {
		return fmt.Errorf("failed to insert playlist entry: %w", err)
	}
	entry.ID = id
	return nil
}

// Entries returns the membership rows of a playlist in view order
func (r *PlaylistRepository) Entries(ctx context.Context, playlistID int64) ([]models.PlaylistEntry, error) {
	rows, err := r.conn.Query(ctx, statement.Select("PlaylistEntries", "EntryID", "PlaylistID", "TrackID", "ViewOrder").Append(
		statement.Where(statement.Compare("PlaylistID", "=", playlistID)),
		statement.OrderBy("ViewOrder", "EntryID"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist entries: %w", err)
	}
	defer rows.Close()

	var entries []models.PlaylistEntry
	for rows.Next() {
		var e models.PlaylistEntry
		if err := rows.Scan(&e.ID, &e.PlaylistID, &e.TrackID, &e.ViewOrder); err != nil {
			return nil, fmt.Errorf("failed to scan playlist entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// TrackIDs returns the track IDs of a playlist in view order
func (r *PlaylistRepository) TrackIDs(ctx context.Context, playlistID int64) ([]int64, error) {
	entries, err := r.Entries(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.TrackID)
	}
	return ids, nil
}

// ClearEntries deletes every membership row of a playlist
func (r *PlaylistRepository) ClearEntries(ctx context.Context, playlistID int64) (int64, error) {
	n, err := r.conn.Execute(ctx, statement.Delete("PlaylistEntries").Append(
		statement.Where(statement.Compare("PlaylistID", "=", playlistID)),
	))
	if err != nil {
		return 0, fmt.Errorf("failed to clear playlist entries: %w", err)
	}
	return n, nil
}

// EntriesDeleteStatement builds the batched DELETE of ids scoped to one playlist.
func EntriesDeleteStatement(playlistID int64, ids []int64) statement.Statement {
	return statement.Delete("PlaylistEntries").Append(statement.Where(statement.And(
		statement.Compare("PlaylistID", "=", playlistID),
		statement.ParenGroup(IDChain("TrackID", ids)),
	)))
}

// RemoveEntries deletes the given tracks from one playlist, one statement per batch
func (r *PlaylistRepository) RemoveEntries(ctx context.Context, playlistID int64, ids []int64) (int64, error) {
	var total int64
	for _, batch := range Batches(ids, MaxBatch) {
		n, err := r.conn.Execute(ctx, EntriesDeleteStatement(playlistID, batch))
		if err != nil {
			return total, fmt.Errorf("failed to remove playlist entries: %w", err)
		}
		total += n
	}
	return total, nil
}

// RemoveTrackEntries deletes the given tracks from every playlist
func (r *PlaylistRepository) RemoveTrackEntries(ctx context.Context, ids []int64) (int64, error) {
	var total int64
	for _, batch := range Batches(ids, MaxBatch) {
		n, err := r.conn.Execute(ctx, statement.Delete("PlaylistEntries").Append(
			statement.Where(IDChain("TrackID", batch)),
		))
		if err != nil {
			return total, fmt.Errorf("failed to remove track entries: %w", err)
		}
		total += n
	}
	return total, nil
}

func (r *PlaylistRepository) one(ctx context.Context, cond statement.Statement, key string) (*models.Playlist, error) {
	rows, err := r.conn.Query(ctx, statement.Select("Playlists", playlistColumns...).Append(
		statement.Where(cond), statement.Limit(1),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("row iteration error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}

	var p models.Playlist
	if err := rows.Scan(&p.ID, &p.Name, &p.SortColumn, &p.SortType); err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return &p, nil
}
