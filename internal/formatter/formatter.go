// package formatter renders loaded tracks to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/dustin/go-humanize"
)

// Format names an output rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatText     Format = "txt"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted format names in display order.
var Formats = []Format{FormatText, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat resolves a format name, accepting "text" and "md" as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
}

// Extension returns the file extension used when writing f to disk.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	default:
		return "." + string(f)
	}
}

// TrackRecord is the serialized form of a track.
type TrackRecord struct {
	ID        int64  `json:"id"`
	URI       string `json:"uri"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	Album     string `json:"album,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Year      int    `json:"year,omitempty"`
	Track     int    `json:"track,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Rating    int    `json:"rating,omitempty"`
	PlayCount int    `json:"play_count,omitempty"`
	DateAdded string `json:"date_added,omitempty"`
}

// NewTrackRecord flattens t into its serialized form.
func NewTrackRecord(t *models.Track) TrackRecord {
	r := TrackRecord{
		ID:        t.ID,
		URI:       t.URI,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		Genre:     t.Genre,
		Year:      t.Year,
		Track:     t.TrackNumber,
		Rating:    t.Rating,
		PlayCount: t.PlayCount,
	}
	if t.Duration > 0 {
		r.Duration = FormatDuration(t.Duration)
	}
	if !t.DateAdded.IsZero() {
		r.DateAdded = t.DateAdded.UTC().Format(time.RFC3339)
	}
	return r
}

// FormatDuration renders d as m:ss, or h:mm:ss from one hour up.
func FormatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ExportToJSON renders tracks as an indented JSON array.
func ExportToJSON(tracks []*models.Track) ([]byte, error) {
	records := make([]TrackRecord, 0, len(tracks))
	for _, t := range tracks {
		records = append(records, NewTrackRecord(t))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tracks: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV renders tracks with columns: ID, Title, Artist, Album, Genre, Year, Duration, URI
func ExportToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Genre", "Year", "Duration", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range tracks {
		r := NewTrackRecord(t)
		year := ""
		if r.Year > 0 {
			year = strconv.Itoa(r.Year)
		}
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.Title,
			r.Artist,
			r.Album,
			r.Genre,
			year,
			r.Duration,
			r.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders tracks as a titled, numbered Markdown list.
func ExportToMarkdown(title string, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", title)
	}
	fmt.Fprintf(&buf, "**Tracks**: %s\n", humanize.Comma(int64(len(tracks))))

	var total time.Duration
	for _, t := range tracks {
		total += t.Duration
	}
	if total > 0 {
		fmt.Fprintf(&buf, "**Length**: %s\n", FormatDuration(total))
	}

	buf.WriteString("\n## Tracks\n\n")
	for i, t := range tracks {
		albumPart := ""
		if t.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", t.Album)
		}
		durationPart := ""
		if t.Duration > 0 {
			durationPart = fmt.Sprintf(" [%s]", FormatDuration(t.Duration))
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s%s\n", i+1, t.DisplayArtist(), t.DisplayTitle(), albumPart, durationPart)
	}

	return buf.Bytes(), nil
}

// ExportToText renders tracks as plain numbered lines.
func ExportToText(title string, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "%s\n", title)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))

	for i, t := range tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, t.DisplayArtist(), t.DisplayTitle())
	}

	return buf.Bytes(), nil
}

// Render encodes tracks in format f.
func Render(f Format, title string, tracks []*models.Track) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ExportToJSON(tracks)
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown:
		return ExportToMarkdown(title, tracks)
	case FormatText, "":
		return ExportToText(title, tracks)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
}

// Write renders tracks to w.
func Write(w io.Writer, f Format, title string, tracks []*models.Track) error {
	data, err := Render(f, title, tracks)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s output: %w", f, err)
	}
	return nil
}

// WriteExport renders tracks to a file and returns its path.
//
// An empty path defaults to {base}_tracks{ext} in the working directory, where base is derived from title.
// Missing parent directories are created.
func WriteExport(f Format, title string, tracks []*models.Track, path string) (string, error) {
	if path == "" {
		path = exportBase(title) + "_tracks" + f.Extension()
	}

	data, err := Render(f, title, tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}

func exportBase(title string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(title))
	base = strings.Trim(base, "_")
	if base == "" {
		return "export"
	}
	return base
}
