package tasks

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/dhowden/tag"
	"golang.org/x/time/rate"
)

// FileLoad recursively imports audio files into the library.
//
// Directories are walked depth-first in name order with dot-directories skipped. Each new file is
// tagged, optionally copied into the managed library tree, stored and announced through
// [Transaction.OnHaveTrack]. Files already in the library are announced again without being
// re-inserted. Unreadable files are skipped.
type FileLoad struct {
	*Transaction

	paths    []string
	preload  bool
	copy     bool
	limiter  *rate.Limiter
	imported atomic.Int64
	skipped  atomic.Int64
}

// NewFileLoad creates an import of paths. With preload set the files are counted first so the
// progress total is known.
func NewFileLoad(lc *LibraryContext, preload bool, paths ...string) *FileLoad {
	f := &FileLoad{paths: paths, preload: preload, copy: lc.Options.CopyOnImport}
	f.Transaction = newTransaction(lc, KindFileLoad, "Importing Media", f)
	if lc.Options.ScanRate > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(lc.Options.ScanRate), 1)
	}
	return f
}

// SetCopy overrides whether imported files are copied into the library root.
func (f *FileLoad) SetCopy(enabled bool) { f.copy = enabled }

// Imported returns how many files were stored or re-announced.
func (f *FileLoad) Imported() int { return int(f.imported.Load()) }

// Skipped returns how many audio files failed to import.
func (f *FileLoad) Skipped() int { return int(f.skipped.Load()) }

func (f *FileLoad) Tables() []string { return []string{"Tracks"} }

func (f *FileLoad) Run(ctx context.Context, conn *database.Conn) error {
	repo := repositories.NewTrackRepository(conn)

	if f.preload {
		f.SetStatus("Counting files...")
		total := 0
		for _, p := range f.paths {
			if f.CancelRequested() {
				return nil
			}
			total += f.count(p)
		}
		f.SetTotal(total)
	}

	for _, p := range f.paths {
		if f.CancelRequested() {
			return nil
		}
		f.visit(ctx, repo, p)
	}

	metrics.SetTracks(f.lc.Library.Len())
	f.SetStatus("Imported %d files", f.Imported())
	f.logger.Info("import finished", "imported", f.Imported(), "skipped", f.Skipped())
	return nil
}

func (f *FileLoad) visit(ctx context.Context, repo *repositories.TrackRepository, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if f.isAudio(path) {
			f.skip(path, err)
			f.Step()
		}
		return
	}

	if !info.IsDir() {
		if f.isAudio(path) {
			f.importFile(ctx, repo, path)
		}
		return
	}

	if f.CancelRequested() {
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		f.logger.Debug("skipping unreadable directory", "path", path, "error", err)
		return
	}
	for _, e := range entries {
		if f.CancelRequested() {
			return
		}
		if e.IsDir() && isHidden(e.Name()) {
			continue
		}
		f.visit(ctx, repo, filepath.Join(path, e.Name()))
	}
}

func (f *FileLoad) count(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		if f.isAudio(path) {
			return 1
		}
		return 0
	}
	if !info.IsDir() {
		if f.isAudio(path) {
			return 1
		}
		return 0
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if f.CancelRequested() {
			return n
		}
		if e.IsDir() && isHidden(e.Name()) {
			continue
		}
		n += f.count(filepath.Join(path, e.Name()))
	}
	return n
}

func (f *FileLoad) importFile(ctx context.Context, repo *repositories.TrackRepository, path string) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
	}

	start := time.Now()
	defer func() {
		f.Step()
		f.UpdateAverageDuration(start)
	}()

	f.SetStatus("%s", filepath.Base(path))

	if existing, ok := f.lc.Library.LookupURI(models.FileURI(path)); ok {
		f.imported.Add(1)
		f.haveTrack(existing)
		return
	}

	track, err := readTrack(path)
	if err != nil {
		f.skip(path, err)
		return
	}

	if f.copy {
		dest, err := copyIntoLibrary(path, f.lc.Options.LibraryRoot, track)
		if err != nil {
			f.skip(path, err)
			return
		}
		track.URI = models.FileURI(dest)
	}

	stored, _, err := repo.EnsureTrack(ctx, track)
	if err != nil {
		f.skip(path, err)
		return
	}

	f.lc.Library.Add(stored)
	f.imported.Add(1)
	f.haveTrack(stored)
}

func (f *FileLoad) skip(path string, err error) {
	f.skipped.Add(1)
	f.logger.Debug("skipping file", "path", path, "error", err)
}

func (f *FileLoad) isAudio(path string) bool {
	exts := f.lc.Options.Extensions
	if len(exts) == 0 {
		return true
	}
	_, ok := exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".wma":  "audio/x-ms-wma",
}

func mimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// readTrack builds a track from the file's tags, falling back to the file name when it has none.
func readTrack(path string) (*models.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	track := models.NewTrack(path)
	track.MimeType = mimeType(path)

	m, err := tag.ReadFrom(file)
	if err != nil {
		return track, nil
	}

	if v := strings.TrimSpace(m.Title()); v != "" {
		track.Title = v
	}
	track.Artist = strings.TrimSpace(m.Artist())
	if track.Artist == "" {
		track.Artist = strings.TrimSpace(m.AlbumArtist())
	}
	track.Album = strings.TrimSpace(m.Album())
	track.Genre = strings.TrimSpace(m.Genre())
	track.Year = max(m.Year(), 0)
	n, total := m.Track()
	track.TrackNumber, track.TrackCount = max(n, 0), max(total, 0)
	return track, nil
}

// copyIntoLibrary copies src to root/<artist>/<album>/<name> and returns the destination.
// An existing destination is reused.
func copyIntoLibrary(src, root string, t *models.Track) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: library root is not configured", shared.ErrInvalidConfig)
	}

	dir := filepath.Join(root, safeName(t.DisplayArtist()), safeName(t.DisplayAlbum()))
	dest := filepath.Join(dir, filepath.Base(src))

	if absSrc, err := filepath.Abs(src); err == nil {
		if absDest, err := filepath.Abs(dest); err == nil && absSrc == absDest {
			return dest, nil
		}
	}
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create library directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return dest, out.Close()
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return "_"
	}
	return s
}
