// Package engine is the thin façade spec.md §4.7 calls the orchestrator:
// ingest, identify, list, get, remove, and stats, each driving the
// resample->spectrogram->peaks->hashes pipeline and the two backing
// stores behind it.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sonarid/apperr"
	"sonarid/db"
	"sonarid/models"
	"sonarid/shazam"
	"sonarid/utils"
	"sonarid/wav"
)

// Engine owns the lifetime of the postings index and metadata store.
// add/remove serialize against each other via mu (spec.md §4.5's
// concurrency rule); search and get/list are not blocked by it.
type Engine struct {
	cfg      Config
	meta     db.MetadataStore
	postings db.PostingsIndex

	mu sync.Mutex
}

// New opens (and creates if absent) both backing stores and verifies
// schema compatibility, per spec.md §4.7's orchestrator initialization
// requirement.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := utils.CreateFolder(cfg.TmpDir); err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}
	if err := utils.CreateFolder(cfg.SongsDir); err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}

	if err := db.CheckSchemaHeader(cfg.MetadataPath+".schema.json", EngineVersion, cfg.Shazam); err != nil {
		return nil, err
	}

	meta, err := db.OpenSQLiteStore(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	postings, err := db.OpenMongoPostingsIndex(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		meta.Close()
		return nil, err
	}

	return &Engine{cfg: cfg, meta: meta, postings: postings}, nil
}

func (e *Engine) Close() error {
	err1 := e.meta.Close()
	err2 := e.postings.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// IngestResult reports the outcome of one ingest call.
type IngestResult struct {
	SongID       uint64
	Fingerprints int
	Truncated    bool // query-side truncation never applies to ingest; kept for symmetry with Identify
}

// Ingest implements the Received->Indexed state machine of spec.md §4.7:
// register the metadata row (which assigns the song_id the postings
// carry), fingerprint the whole file (chunked, bounded memory), then index
// the postings. Any failure before AddSong leaves both stores untouched; a
// failure while fingerprinting or writing postings removes the metadata
// row again so a retry doesn't collide on file_path.
func (e *Engine) Ingest(ctx context.Context, filePath string, meta models.Song) (IngestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Dedup on the canonical (post-conversion) file_path before any
	// conversion runs: wav.ConvertToWAV deletes its input and renames it
	// to this same path as a side effect, so checking only after
	// conversion would already have destroyed the duplicate's original
	// file with no DuplicatePath ever reported (spec.md §8's re-ingest
	// round-trip law, concrete scenario 5).
	canonicalPath := wav.CanonicalWAVPath(filePath)
	if existing, ok, err := e.meta.GetSongByPath(ctx, canonicalPath); err != nil {
		return IngestResult{}, err
	} else if ok {
		return IngestResult{}, apperr.Newf(apperr.KindDuplicatePath, "file_path %q already registered (song %d)", canonicalPath, existing.ID)
	}

	// Unlike ensureWAV's use in Identify, a non-WAV source here is
	// converted in place and kept: wav.ConvertToWAV replaces the original
	// file with its WAV rendition, and that rendition becomes the song's
	// permanent, normalized on-disk copy.
	wavPath := filePath
	if !strings.EqualFold(filepath.Ext(filePath), ".wav") {
		converted, err := wav.ConvertToWAV(filePath, e.cfg.Shazam.SampleRate)
		if err != nil {
			return IngestResult{}, apperr.Wrap(apperr.KindBadAudio, err)
		}
		wavPath = converted
	}

	duration, err := wav.GetAudioDuration(wavPath)
	if err != nil {
		return IngestResult{}, apperr.Wrap(apperr.KindBadAudio, err)
	}

	meta.FilePath = wavPath
	meta.DurationSeconds = duration
	meta.DateAdded = time.Now()
	if info, statErr := os.Stat(wavPath); statErr == nil {
		meta.FileSizeBytes = info.Size()
	}

	songID, err := e.meta.AddSong(ctx, meta)
	if err != nil {
		return IngestResult{}, err
	}

	fingerprints, err := shazam.FingerprintFileChunked(wavPath, songID, e.cfg.Shazam)
	if err != nil {
		e.meta.RemoveSong(ctx, songID)
		return IngestResult{}, err
	}

	if err := e.postings.AddPostings(ctx, songID, fingerprints); err != nil {
		e.meta.RemoveSong(ctx, songID)
		return IngestResult{}, err
	}

	if err := e.meta.SetFingerprintCount(ctx, songID, len(fingerprints)); err != nil {
		log.Printf("[ingest] warning: failed to record fingerprint count for song %d: %v", songID, err)
	}

	return IngestResult{SongID: songID, Fingerprints: len(fingerprints)}, nil
}

// Identify implements spec.md §4.6/§4.7's identify path: fingerprint the
// query clip (truncated to MaxQuerySeconds by Normalize), look up every
// hash, and return ranked matches best-first. An empty result is "no
// match" per spec.md, not an error.
func (e *Engine) Identify(ctx context.Context, filePath string) ([]models.MatchResult, error) {
	wavPath, cleanup, err := e.ensureWAV(filePath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	info, err := wav.ReadWavInfo(wavPath)
	if err != nil {
		return nil, err
	}

	fingerprints, truncated, querySeconds, err := shazam.FingerprintFromPCM(info.Samples, info.Channels, info.SampleRate, 0, e.cfg.Shazam, 0)
	if err != nil {
		return nil, err
	}
	if truncated {
		log.Printf("[identify] query truncated to %.1fs (MaxQuerySeconds=%.0f)", querySeconds, e.cfg.Shazam.MaxQuerySeconds)
	}
	if len(fingerprints) == 0 {
		return nil, nil
	}

	queryHashes := make(map[uint64]uint32, len(fingerprints))
	hashes := make([]uint64, 0, len(fingerprints))
	for hash, couple := range fingerprints {
		queryHashes[hash] = couple.AnchorTime
		hashes = append(hashes, hash)
	}

	postingsByHash, err := e.postings.Search(ctx, hashes)
	if err != nil {
		return nil, err
	}

	lookup := func(hash uint64) []models.Couple { return postingsByHash[hash] }

	metaCache := make(map[uint64]models.Song)
	existsCache := make(map[uint64]bool)
	songMeta := func(songID uint64) (models.Song, bool) {
		if ok, cached := existsCache[songID]; cached {
			return metaCache[songID], ok
		}
		song, ok, err := e.meta.GetSong(ctx, songID)
		existsCache[songID] = ok && err == nil
		if ok && err == nil {
			metaCache[songID] = song
		}
		return song, ok && err == nil
	}

	results := shazam.Match(queryHashes, lookup, songMeta, e.cfg.Shazam)
	for i := range results {
		results[i].QueryTruncated = truncated
		results[i].QueryDurationSeconds = querySeconds
	}
	return results, nil
}

// List returns a metadata page, optionally filtered by title/artist
// substring.
func (e *Engine) List(ctx context.Context, limit, offset int, search string) ([]models.Song, error) {
	return e.meta.List(ctx, limit, offset, search)
}

// Get returns one song's metadata row.
func (e *Engine) Get(ctx context.Context, songID uint64) (models.Song, bool, error) {
	return e.meta.GetSong(ctx, songID)
}

// Remove deletes a song's metadata row and then its postings. The
// metadata row goes first, so the song stops matching at once (the
// matcher drops postings with no live row); Remove then waits for the
// postings deletion and returns its error, if any, with the metadata row
// already gone.
func (e *Engine) Remove(ctx context.Context, songID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.meta.RemoveSong(ctx, songID); err != nil {
		return err
	}
	return e.postings.RemovePostings(ctx, songID)
}

// Stats is the summary spec.md's handleStats endpoint (and the CLI)
// report: song count, posting count, and a storage-size estimate in the
// same spirit as the teacher's formatBytes(fpCount * 20) heuristic — 20
// bytes per posting (8-byte hash, 8-byte song_id, 4-byte anchor_time).
type Stats struct {
	TotalSongs         int
	TotalPostings      int64
	TotalDurationHours float64
	StorageEstimate    string
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	songs, err := e.meta.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	postings, err := e.postings.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	totalDuration, err := e.meta.TotalDuration(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		TotalSongs:         songs,
		TotalPostings:      postings,
		TotalDurationHours: totalDuration / 3600,
		StorageEstimate:    formatBytes(postings * 20),
	}, nil
}

// ensureWAV returns a WAV path for any input audio file, transcoding via
// ffmpeg (wav.ConvertToWAV) when the extension isn't already .wav. cleanup
// removes any transcoded temp file; it is a no-op for a file that was
// already WAV.
func (e *Engine) ensureWAV(path string) (wavPath string, cleanup func(), err error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path, func() {}, nil
	}

	converted, err := wav.ConvertToWAV(path, e.cfg.Shazam.SampleRate)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindBadAudio, err)
	}
	return converted, func() { os.Remove(converted) }, nil
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
