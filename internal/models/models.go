// package models defines the data model for the music library engine
package models

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/cadence/internal/shared"
)

// Model defines the base interface for all persistent models in the library.
// Implementations include Track and Playlist.
type Model interface {
	Key() int64      // Key returns the database identity, 0 until persisted
	SetKey(id int64) // SetKey records the identity assigned by the database
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) error                      // Create inserts a new model into the database
	Get(ctx context.Context, id int64) (T, error)                   // Get retrieves a model by its ID
	Update(ctx context.Context, model T) error                      // Update modifies an existing model in the database
	Delete(ctx context.Context, id int64) error                     // Delete removes a model from the database by its ID
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
	UnknownTitle  = "Unknown Title"
)

// Track is one library entry backed by a file.
type Track struct {
	ID          int64
	URI         string
	MimeType    string
	Artist      string
	Album       string
	Title       string
	Genre       string
	Year        int
	TrackNumber int
	TrackCount  int
	Duration    time.Duration
	DateAdded   time.Time
	PlayCount   int
	LastPlayed  time.Time
	Rating      int
}

// NewTrack creates a track for the file at path with the title derived from its name.
func NewTrack(path string) *Track {
	return &Track{
		URI:       FileURI(path),
		Title:     TitleFromPath(path),
		DateAdded: time.Now(),
	}
}

func (t *Track) Key() int64      { return t.ID }
func (t *Track) SetKey(id int64) { t.ID = id }

// Validate checks the URI is present and the rating in range.
func (t *Track) Validate() error {
	if strings.TrimSpace(t.URI) == "" {
		return fmt.Errorf("%w: track uri is required", shared.ErrInvalidInput)
	}
	if t.Rating < 0 || t.Rating > 5 {
		return fmt.Errorf("%w: rating %d out of range 0-5", shared.ErrInvalidInput, t.Rating)
	}
	if t.Year < 0 || t.TrackNumber < 0 || t.TrackCount < 0 {
		return fmt.Errorf("%w: negative year or track number", shared.ErrInvalidInput)
	}
	return nil
}

// Path returns the filesystem path of a file:// URI, or the URI unchanged.
func (t *Track) Path() string {
	return strings.TrimPrefix(t.URI, "file://")
}

// DisplayArtist returns the artist or a placeholder.
func (t *Track) DisplayArtist() string { return orDefault(t.Artist, UnknownArtist) }

// DisplayAlbum returns the album title or a placeholder.
func (t *Track) DisplayAlbum() string { return orDefault(t.Album, UnknownAlbum) }

// DisplayTitle returns the title or a placeholder.
func (t *Track) DisplayTitle() string { return orDefault(t.Title, UnknownTitle) }

// Playlist is a named, ordered list of tracks.
type Playlist struct {
	ID         int64
	Name       string
	SortColumn int
	SortType   int
}

// NewPlaylist creates an unsorted playlist.
func NewPlaylist(name string) *Playlist {
	return &Playlist{Name: name, SortColumn: -1}
}

func (p *Playlist) Key() int64      { return p.ID }
func (p *Playlist) SetKey(id int64) { p.ID = id }

// Validate checks the playlist has a name.
func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}
	return nil
}

// PlaylistEntry links a track to a playlist at a position.
type PlaylistEntry struct {
	ID         int64
	PlaylistID int64
	TrackID    int64
	ViewOrder  int
}

// FileURI converts a filesystem path into a file:// URI.
func FileURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

// TitleFromPath derives a display title from a file name: extension removed,
// a leading track number dropped and underscores turned into spaces.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")

	trimmed := strings.TrimLeft(base, "0123456789")
	if trimmed != base {
		trimmed = strings.TrimLeft(trimmed, " .-")
		if trimmed != "" {
			base = trimmed
		}
	}
	return strings.TrimSpace(base)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
