package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"

	"sonarid/apperr"
	"sonarid/engine"
	"sonarid/models"
)

const maxUploadSize = 5000 << 20 // 5 GB

type indexResponse struct {
	SongID       uint64 `json:"songId"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Fingerprints int    `json:"fingerprints"`
}

type matchResponse struct {
	Title             string  `json:"title"`
	Artist            string  `json:"artist"`
	Album             string  `json:"album,omitempty"`
	Confidence        float64 `json:"confidence"`
	ConfidenceLevel   string  `json:"confidenceLevel"`
	MatchingHashes    int     `json:"matchingHashes"`
	AlignmentStrength float64 `json:"alignmentStrength"`
	TimeOffsetSec     float64 `json:"timeOffsetSeconds"`
	QueryTruncated    bool    `json:"queryTruncated,omitempty"`
	QueryDurationSec  float64 `json:"queryDurationSeconds,omitempty"`
}

type statsResponse struct {
	TotalSongs         int     `json:"totalSongs"`
	TotalFingerprints  int64   `json:"totalFingerprints"`
	TotalDurationHours float64 `json:"totalDurationHours"`
	IndexSizeEstimate  string  `json:"indexSizeBytes,omitempty"`
}

type entryResponse struct {
	ID     uint64 `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	log.Printf("[error] %d: %s", status, msg)
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusForErr(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindDuplicatePath:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadAudio, apperr.KindEmptyInput, apperr.KindNoFingerprints, apperr.KindInsufficientAudio:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// saveUploadedFile streams the multipart file to a temp path and hashes
// its content along the way, so the caller can derive a stable,
// content-addressed storage path — identical uploads must land on the
// same file_path for Ingest's dedup check to ever fire over HTTP.
func saveUploadedFile(r *http.Request, tmpDir string) (path, filename string, size int64, contentHash string, err error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", 0, "", fmt.Errorf("no file provided: %v", err)
	}
	defer file.Close()

	tmpPath := filepath.Join(tmpDir, uuid.NewString()+"_"+header.Filename)
	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer dst.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(dst, hasher), file)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("failed to write file: %v", err)
	}

	return tmpPath, header.Filename, written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// metadataFromForm reads title/artist/album out of the multipart form's
// non-file fields by way of a small JSON blob the upload client may send
// under the "meta" field, e.g. {"title": "...", "artist": "...", "album":
// "..."}. buger/jsonparser pulls the three string fields without a full
// encoding/json unmarshal, since the blob is typically a few dozen bytes
// and this runs on every index request.
func metadataFromForm(r *http.Request, filename string) models.Song {
	title, artist, album := "", "", ""

	if raw := r.FormValue("meta"); raw != "" {
		title, _ = jsonparser.GetString([]byte(raw), "title")
		artist, _ = jsonparser.GetString([]byte(raw), "artist")
		album, _ = jsonparser.GetString([]byte(raw), "album")
	}

	if title == "" {
		title = r.FormValue("title")
	}
	if artist == "" {
		artist = r.FormValue("artist")
	}
	if album == "" {
		album = r.FormValue("album")
	}

	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if artist == "" {
		artist = "unknown"
	}

	return models.Song{Title: title, Artist: artist, Album: album}
}

func makeHandlers(ctx context.Context, eng *engine.Engine, cfg engine.Config) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/index", func(w http.ResponseWriter, r *http.Request) { handleIndex(ctx, eng, cfg, w, r) })
	mux.HandleFunc("/api/match", func(w http.ResponseWriter, r *http.Request) { handleMatch(ctx, eng, cfg, w, r) })
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) { handleStats(ctx, eng, w, r) })
	mux.HandleFunc("/api/entries", func(w http.ResponseWriter, r *http.Request) { handleEntries(ctx, eng, w, r) })
	mux.HandleFunc("/api/entries/", func(w http.ResponseWriter, r *http.Request) { handleEntryByID(ctx, eng, w, r) })

	return mux
}

func handleIndex(ctx context.Context, eng *engine.Engine, cfg engine.Config, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requestID := uuid.NewString()
	reqStart := time.Now()
	log.Printf("[index %s] received request from %s", requestID, r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, filename, fileSize, contentHash, err := saveUploadedFile(r, cfg.TmpDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	log.Printf("[index %s] file saved: %s (%d bytes)", requestID, filename, fileSize)

	meta := metadataFromForm(r, filename)

	// permanentPath is derived from the upload's content hash, not a
	// per-request uuid: two uploads of the same bytes must resolve to the
	// same file_path for Ingest's dedup check to ever see a collision.
	permanentPath := filepath.Join(cfg.SongsDir, contentHash+filepath.Ext(filename))
	_, statErr := os.Stat(permanentPath)
	storedNow := statErr != nil // true unless a file already exists at permanentPath
	if storedNow {
		if err := os.Rename(tmpPath, permanentPath); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}
	}
	// else: identical content already stored under this path (from a
	// prior upload of the same bytes); leave it in place and
	// let Ingest's dedup check below report DuplicatePath rather than
	// clobbering or deleting the already-indexed file.

	result, err := eng.Ingest(ctx, permanentPath, meta)
	if err != nil {
		if storedNow {
			os.Remove(permanentPath)
		}
		writeError(w, statusForErr(err), err.Error())
		return
	}

	log.Printf("[index %s] completed %q: %d fingerprints, %s total time", requestID, meta.Title, result.Fingerprints, time.Since(reqStart))
	writeJSON(w, http.StatusOK, indexResponse{
		SongID:       result.SongID,
		Title:        meta.Title,
		Artist:       meta.Artist,
		Fingerprints: result.Fingerprints,
	})
}

func handleMatch(ctx context.Context, eng *engine.Engine, cfg engine.Config, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requestID := uuid.NewString()
	reqStart := time.Now()
	log.Printf("[match %s] received request from %s", requestID, r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, filename, fileSize, _, err := saveUploadedFile(r, cfg.TmpDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	log.Printf("[match %s] file saved: %s (%d bytes)", requestID, filename, fileSize)

	matches, err := eng.Identify(ctx, tmpPath)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}

	limit := 20
	if len(matches) < limit {
		limit = len(matches)
	}

	results := make([]matchResponse, 0, limit)
	for _, m := range matches[:limit] {
		results = append(results, matchResponse{
			Title:             m.Title,
			Artist:            m.Artist,
			Album:             m.Album,
			Confidence:        m.Confidence,
			ConfidenceLevel:   m.ConfidenceLevel,
			MatchingHashes:    m.MatchingHashes,
			AlignmentStrength: m.AlignmentStrength,
			TimeOffsetSec:     float64(m.TimeOffsetFrames) * float64(cfg.Shazam.Hop) / float64(cfg.Shazam.SampleRate),
			QueryTruncated:    m.QueryTruncated,
			QueryDurationSec:  m.QueryDurationSeconds,
		})
	}

	log.Printf("[match %s] completed in %s, returning %d results", requestID, time.Since(reqStart), len(results))
	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": requestID,
		"matches":   results,
	})
}

func handleStats(ctx context.Context, eng *engine.Engine, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalSongs:         stats.TotalSongs,
		TotalFingerprints:  stats.TotalPostings,
		TotalDurationHours: stats.TotalDurationHours,
		IndexSizeEstimate:  stats.StorageEstimate,
	})
}

func handleEntries(ctx context.Context, eng *engine.Engine, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	search := r.URL.Query().Get("q")

	songs, err := eng.List(ctx, limit, offset, search)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	entries := make([]entryResponse, 0, len(songs))
	for _, s := range songs {
		entries = append(entries, entryResponse{ID: s.ID, Title: s.Title, Artist: s.Artist, Album: s.Album})
	}

	writeJSON(w, http.StatusOK, entries)
}

func handleEntryByID(ctx context.Context, eng *engine.Engine, w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		song, ok, err := eng.Get(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "song not found")
			return
		}
		writeJSON(w, http.StatusOK, entryResponse{ID: song.ID, Title: song.Title, Artist: song.Artist, Album: song.Album})

	case http.MethodDelete:
		if err := eng.Remove(ctx, id); err != nil {
			writeError(w, statusForErr(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
