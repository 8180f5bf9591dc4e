// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/shared"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// OpenTestDB opens a bootstrapped library database in a temp dir and closes it at cleanup.
func OpenTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Path:   filepath.Join(t.TempDir(), "library.db"),
		Logger: shared.NewLogger(io.Discard),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Tags are the ID3 frames written by [WriteTaggedFile].
type Tags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   string
	Track  string // "3" or "3/12"
}

// WriteTaggedFile writes an MP3-like file carrying an ID3v2.3 header with tags.
func WriteTaggedFile(t *testing.T, path string, tags Tags) {
	t.Helper()

	var frames bytes.Buffer
	for _, f := range []struct{ id, value string }{
		{"TIT2", tags.Title},
		{"TPE1", tags.Artist},
		{"TALB", tags.Album},
		{"TCON", tags.Genre},
		{"TYER", tags.Year},
		{"TRCK", tags.Track},
	} {
		if f.value == "" {
			continue
		}
		frames.WriteString(f.id)
		binary.Write(&frames, binary.BigEndian, uint32(len(f.value)+1))
		frames.Write([]byte{0, 0, 0})
		frames.WriteString(f.value)
	}

	size := frames.Len()
	var buf bytes.Buffer
	buf.WriteString("ID3")
	buf.Write([]byte{3, 0, 0})
	buf.Write([]byte{byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)})
	buf.Write(frames.Bytes())
	buf.Write(bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64))

	MustWriteFile(t, path, buf.Bytes())
}

// WriteUntaggedFile writes a file with audio-looking bytes and no tags.
func WriteUntaggedFile(t *testing.T, path string) {
	t.Helper()
	MustWriteFile(t, path, bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64))
}

func MustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

// Eventually polls cond every few milliseconds until it holds or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", timeout, msg)
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
