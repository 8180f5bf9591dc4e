package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/cadence/internal/shared"
)

func TestTitleFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/music/01 - Intro.mp3", want: "Intro"},
		{path: "/music/07.Hey_Jude.flac", want: "Hey Jude"},
		{path: "/music/1999.mp3", want: "1999"},
		{path: "/music/Plain Song.ogg", want: "Plain Song"},
		{path: "relative/no_ext", want: "no ext"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := TitleFromPath(tt.path); got != tt.want {
				t.Errorf("TitleFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestTrack(t *testing.T) {
	t.Run("NewTrack", func(t *testing.T) {
		track := NewTrack("/music/02 Song.mp3")
		if track.URI != "file:///music/02 Song.mp3" {
			t.Errorf("unexpected uri %q", track.URI)
		}
		if track.Path() != "/music/02 Song.mp3" {
			t.Errorf("unexpected path %q", track.Path())
		}
		if track.Title != "Song" {
			t.Errorf("unexpected title %q", track.Title)
		}
		if track.DateAdded.IsZero() {
			t.Error("date added should be set")
		}
	})

	t.Run("FileURI keeps existing scheme", func(t *testing.T) {
		if got := FileURI("file:///a.mp3"); got != "file:///a.mp3" {
			t.Errorf("unexpected uri %q", got)
		}
		if got := FileURI("rel.mp3"); !strings.HasPrefix(got, "file:///") {
			t.Errorf("expected absolute file uri, got %q", got)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			track   Track
			wantErr bool
		}{
			{name: "valid", track: Track{URI: "file:///a.mp3", Rating: 5}},
			{name: "missing uri", track: Track{URI: "  "}, wantErr: true},
			{name: "rating too high", track: Track{URI: "file:///a.mp3", Rating: 6}, wantErr: true},
			{name: "negative year", track: Track{URI: "file:///a.mp3", Year: -1}, wantErr: true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.track.Validate()
				if tt.wantErr && !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			})
		}
	})

	t.Run("Display placeholders", func(t *testing.T) {
		track := Track{}
		if track.DisplayArtist() != UnknownArtist || track.DisplayAlbum() != UnknownAlbum || track.DisplayTitle() != UnknownTitle {
			t.Error("expected placeholders for empty metadata")
		}
	})
}

func TestPlaylist(t *testing.T) {
	p := NewPlaylist("Road Trip")
	if p.SortColumn != -1 {
		t.Errorf("expected unsorted playlist, got sort column %d", p.SortColumn)
	}
	p.SetKey(3)
	if p.Key() != 3 {
		t.Errorf("expected key 3, got %d", p.Key())
	}
	if err := NewPlaylist("").Validate(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
