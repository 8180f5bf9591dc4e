// Package repositories implements SQLite persistence for the library's domain entities.
//
// Repositories are bound to one worker connection ([database.Conn]) and are created inside the
// worker that owns it, so a repository is never shared between goroutines.
//
// Key Implementations:
//   - [TrackRepository] : Track CRUD, URI lookups, batched deletes and URI-deduplicated inserts
//   - [PlaylistRepository] : Playlist CRUD plus ordered membership rows in PlaylistEntries
//
// [DeleteStatement] and [EntriesDeleteStatement] expose the batched DELETE built from an OR-chain
// of identities so callers can log or inspect it before it runs. Larger sets execute in chunks of
// [MaxBatch] split by [Batches].
package repositories
