// Package db implements the two backing stores spec.md §4.5 describes: a
// transactional metadata table keyed by song_id, and a postings index
// mapping hash_value to the songs/anchor-times that produced it. They are
// split the way DanielCarmel-media-luna splits storage concerns behind a
// narrow interface, because the two have very different access patterns —
// the metadata store needs ACID row semantics at a scale of 10^2-10^6
// songs, the postings index needs near-constant-time lookup at a scale of
// up to 10^8 postings.
package db

import (
	"context"

	"sonarid/models"
)

// MetadataStore is the transactional, song_id-keyed table from spec.md
// §4.5. Implemented by SQLiteStore.
type MetadataStore interface {
	// AddSong inserts meta and returns its assigned song_id. Returns
	// apperr.KindDuplicatePath if meta.FilePath is already registered.
	AddSong(ctx context.Context, meta models.Song) (uint64, error)

	// GetSong returns the metadata row for songID, ok=false if absent.
	GetSong(ctx context.Context, songID uint64) (models.Song, bool, error)

	// GetSongByPath returns the metadata row whose file_path equals path,
	// ok=false if none is registered. Used to dedup on the canonical
	// file_path before a destructive conversion (spec.md §8's re-ingest
	// round-trip law).
	GetSongByPath(ctx context.Context, path string) (models.Song, bool, error)

	// RemoveSong deletes the metadata row. Returns apperr.KindNotFound if
	// songID does not exist.
	RemoveSong(ctx context.Context, songID uint64) error

	// SetFingerprintCount records how many hashes were indexed for
	// songID, once the hash-generation stage (which runs after AddSong
	// assigns the id) knows the total.
	SetFingerprintCount(ctx context.Context, songID uint64, count int) error

	// List returns a page of songs ordered by song_id, optionally
	// filtered by a case-insensitive substring match against title or
	// artist when search is non-empty.
	List(ctx context.Context, limit, offset int, search string) ([]models.Song, error)

	// Count returns the total number of live song rows.
	Count(ctx context.Context) (int, error)

	// TotalDuration returns the sum of duration_seconds across every live
	// song row, in seconds — the basis for the stats endpoint's
	// total_duration_hours field (spec.md §6).
	TotalDuration(ctx context.Context) (float64, error)

	Close() error
}

// PostingsIndex is the hash_value -> [(song_id, anchor_time), ...] index
// from spec.md §4.5.
type PostingsIndex interface {
	// AddPostings appends every (hash, couple) pair for one song. Must be
	// atomic from the metadata-store perspective: either all postings for
	// a song are visible or none are, matching the ingest state machine's
	// Indexed transition (spec.md §4.7).
	AddPostings(ctx context.Context, songID uint64, fingerprints map[uint64]models.Couple) error

	// Search fetches postings for every hash in hashes, returning only
	// the couples — callers bucket by SongID themselves.
	Search(ctx context.Context, hashes []uint64) (map[uint64][]models.Couple, error)

	// RemovePostings tombstones every posting for songID. Per spec.md
	// §4.5 this may be lazy; the matcher filters dead ids via
	// MetadataStore.GetSong rather than relying on immediate removal here.
	RemovePostings(ctx context.Context, songID uint64) error

	// Count returns the total number of postings currently indexed,
	// including any not yet compacted after a RemovePostings call.
	Count(ctx context.Context) (int64, error)

	Close() error
}
