package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarid/apperr"
	"sonarid/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AddAndGetSongRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.AddSong(ctx, models.Song{
		Title:    "Test Track",
		Artist:   "Test Artist",
		Album:    "Test Album",
		FilePath: "/songs/test-track.wav",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	song, ok, err := store.GetSong(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Test Track", song.Title)
	assert.Equal(t, "Test Artist", song.Artist)
	assert.Equal(t, "/songs/test-track.wav", song.FilePath)
}

func TestSQLiteStore_GetSong_MissingReturnsNotOK(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, ok, err := store.GetSong(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_AddSong_DuplicatePathRejected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	meta := models.Song{Title: "A", Artist: "B", FilePath: "/songs/dup.wav"}
	_, err := store.AddSong(ctx, meta)
	require.NoError(t, err)

	_, err = store.AddSong(ctx, meta)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDuplicatePath, apperr.KindOf(err))
}

func TestSQLiteStore_RemoveSong(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.AddSong(ctx, models.Song{Title: "A", Artist: "B", FilePath: "/songs/remove-me.wav"})
	require.NoError(t, err)

	require.NoError(t, store.RemoveSong(ctx, id))

	_, ok, err := store.GetSong(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_RemoveSong_NotFoundErrors(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	err := store.RemoveSong(ctx, 999)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSQLiteStore_SetFingerprintCount(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.AddSong(ctx, models.Song{Title: "A", Artist: "B", FilePath: "/songs/fp-count.wav"})
	require.NoError(t, err)

	require.NoError(t, store.SetFingerprintCount(ctx, id, 4242))

	song, ok, err := store.GetSong(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4242, song.FingerprintCount)
}

func TestSQLiteStore_ListFiltersBySearchTerm(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.AddSong(ctx, models.Song{Title: "Hello World", Artist: "Band A", FilePath: "/songs/1.wav"})
	require.NoError(t, err)
	_, err = store.AddSong(ctx, models.Song{Title: "Goodbye", Artist: "Band B", FilePath: "/songs/2.wav"})
	require.NoError(t, err)

	all, err := store.List(ctx, 10, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.List(ctx, 10, 0, "hello")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Hello World", filtered[0].Title)
}

func TestSQLiteStore_CountAndExists(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	id, err := store.AddSong(ctx, models.Song{Title: "A", Artist: "B", FilePath: "/songs/exists.wav"})
	require.NoError(t, err)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, id+1000)
	require.NoError(t, err)
	assert.False(t, exists)
}
