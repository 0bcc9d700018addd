package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarid/apperr"
	"sonarid/models"
	"sonarid/shazam"
)

// fakeMetaStore and fakePostingsIndex are in-memory stand-ins for
// db.MetadataStore/db.PostingsIndex: Engine's tests exercise orchestration
// logic (rollback, serialization, passthrough) without a live sqlite file
// or mongod, the way db/mongo.go's operations can't be unit tested without
// a running server (see DESIGN.md).
type fakeMetaStore struct {
	songs  map[uint64]models.Song
	nextID uint64

	removeErr error
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{songs: make(map[uint64]models.Song)}
}

func (f *fakeMetaStore) AddSong(ctx context.Context, meta models.Song) (uint64, error) {
	f.nextID++
	meta.ID = f.nextID
	f.songs[f.nextID] = meta
	return f.nextID, nil
}

func (f *fakeMetaStore) GetSong(ctx context.Context, songID uint64) (models.Song, bool, error) {
	s, ok := f.songs[songID]
	return s, ok, nil
}

func (f *fakeMetaStore) GetSongByPath(ctx context.Context, path string) (models.Song, bool, error) {
	for _, s := range f.songs {
		if s.FilePath == path {
			return s, true, nil
		}
	}
	return models.Song{}, false, nil
}

func (f *fakeMetaStore) RemoveSong(ctx context.Context, songID uint64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.songs[songID]; !ok {
		return errors.New("not found")
	}
	delete(f.songs, songID)
	return nil
}

func (f *fakeMetaStore) SetFingerprintCount(ctx context.Context, songID uint64, count int) error {
	s := f.songs[songID]
	s.FingerprintCount = count
	f.songs[songID] = s
	return nil
}

func (f *fakeMetaStore) List(ctx context.Context, limit, offset int, search string) ([]models.Song, error) {
	var out []models.Song
	for _, s := range f.songs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeMetaStore) Count(ctx context.Context) (int, error) { return len(f.songs), nil }

func (f *fakeMetaStore) TotalDuration(ctx context.Context) (float64, error) {
	var total float64
	for _, s := range f.songs {
		total += s.DurationSeconds
	}
	return total, nil
}

func (f *fakeMetaStore) Exists(ctx context.Context, songID uint64) (bool, error) {
	_, ok := f.songs[songID]
	return ok, nil
}

func (f *fakeMetaStore) Close() error { return nil }

type fakePostingsIndex struct {
	postings       map[uint64][]models.Couple
	removedSongIDs []uint64
	addPostingsErr error
}

func newFakePostingsIndex() *fakePostingsIndex {
	return &fakePostingsIndex{postings: make(map[uint64][]models.Couple)}
}

func (f *fakePostingsIndex) AddPostings(ctx context.Context, songID uint64, fingerprints map[uint64]models.Couple) error {
	if f.addPostingsErr != nil {
		return f.addPostingsErr
	}
	for hash, couple := range fingerprints {
		f.postings[hash] = append(f.postings[hash], couple)
	}
	return nil
}

func (f *fakePostingsIndex) Search(ctx context.Context, hashes []uint64) (map[uint64][]models.Couple, error) {
	out := make(map[uint64][]models.Couple)
	for _, h := range hashes {
		if couples, ok := f.postings[h]; ok {
			out[h] = couples
		}
	}
	return out, nil
}

func (f *fakePostingsIndex) RemovePostings(ctx context.Context, songID uint64) error {
	f.removedSongIDs = append(f.removedSongIDs, songID)
	return nil
}

func (f *fakePostingsIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	for _, couples := range f.postings {
		n += int64(len(couples))
	}
	return n, nil
}

func (f *fakePostingsIndex) Close() error { return nil }

func newTestEngine() (*Engine, *fakeMetaStore, *fakePostingsIndex) {
	meta := newFakeMetaStore()
	postings := newFakePostingsIndex()
	eng := &Engine{cfg: Config{Shazam: shazam.DefaultMusicConfig()}, meta: meta, postings: postings}
	return eng, meta, postings
}

func TestEngine_ListAndGetPassThroughToMetaStore(t *testing.T) {
	ctx := context.Background()
	eng, meta, _ := newTestEngine()

	meta.songs[1] = models.Song{ID: 1, Title: "Stored Song"}

	got, ok, err := eng.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Stored Song", got.Title)

	list, err := eng.List(ctx, 10, 0, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngine_RemoveDeletesMetadataAndTombstonesPostings(t *testing.T) {
	ctx := context.Background()
	eng, meta, postings := newTestEngine()
	meta.songs[1] = models.Song{ID: 1, Title: "Doomed Song"}

	require.NoError(t, eng.Remove(ctx, 1))

	_, ok := meta.songs[1]
	assert.False(t, ok)
	assert.Equal(t, []uint64{1}, postings.removedSongIDs)
}

func TestEngine_RemoveStopsBeforePostingsOnMetaError(t *testing.T) {
	ctx := context.Background()
	eng, meta, postings := newTestEngine()
	meta.removeErr = errors.New("disk error")

	err := eng.Remove(ctx, 1)
	require.Error(t, err)
	assert.Empty(t, postings.removedSongIDs)
}

func TestEngine_StatsReportsCountsAndEstimate(t *testing.T) {
	ctx := context.Background()
	eng, meta, postings := newTestEngine()
	meta.songs[1] = models.Song{ID: 1}
	meta.songs[2] = models.Song{ID: 2}
	postings.postings[111] = []models.Couple{{SongID: 1}, {SongID: 2}}

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSongs)
	assert.EqualValues(t, 2, stats.TotalPostings)
	assert.NotEmpty(t, stats.StorageEstimate)
}

func TestEngine_IdentifyWithNoFingerprintableAudioReturnsNilWithoutError(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine()

	path := filepath.Join(t.TempDir(), "silence.wav")
	// far fewer samples than one NFFT window produces an empty
	// spectrogram, so FingerprintFromPCM yields no peaks.
	require.NoError(t, writeMonoWAV16(path, eng.cfg.Shazam.SampleRate, make([]int16, 64)))

	results, err := eng.Identify(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, results)
}

// TestEngine_IngestRejectsDuplicateFilePath covers spec.md §8's re-ingest
// round-trip law: Ingest must reject a second call whose canonical
// file_path is already registered, and must do so before it ever touches
// AddSong or the postings index, not just on the store's own uniqueness
// constraint.
func TestEngine_IngestRejectsDuplicateFilePath(t *testing.T) {
	ctx := context.Background()
	eng, meta, postings := newTestEngine()

	path := filepath.Join(t.TempDir(), "track.wav")
	meta.songs[1] = models.Song{ID: 1, Title: "Already Indexed", FilePath: path}

	_, err := eng.Ingest(ctx, path, models.Song{Title: "Re-ingested"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDuplicatePath))

	assert.Len(t, meta.songs, 1, "Ingest must not have added a second metadata row")
	assert.Empty(t, postings.postings, "Ingest must not have reached the postings index")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.0 MB", formatBytes(1<<20))
}

// writeMonoWAV16 writes a minimal canonical 16-bit PCM mono WAV file, just
// enough for go-audio/wav's decoder to parse successfully.
func writeMonoWAV16(path string, sampleRate int, samples []int16) error {
	var pcm bytes.Buffer
	for _, s := range samples {
		binary.Write(&pcm, binary.LittleEndian, s)
	}
	dataSize := uint32(pcm.Len())

	const bitsPerSample = 16
	const channels = 1
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0o644)
}
