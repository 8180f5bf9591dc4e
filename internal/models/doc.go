// Package models defines domain entities and persistence interfaces for the library engine.
//
// Persistent entities:
//   - [Track] : A file-backed library entry with tag metadata and play statistics
//   - [Playlist] : A named list of tracks with a remembered sort
//   - [PlaylistEntry] : Junction row linking a playlist to a track with its position
//
// Entities implement the [Model] interface, which exposes the database identity assigned on insert
// and validation. The [Repository] interface defines standard CRUD operations for database access.
package models
