// Package models holds the value types shared between the fingerprinter,
// the stores, and the orchestrator: spectral peaks, hash couples, song
// metadata, and match results (spec.md §3).
package models

import "time"

// Peak is a spectral landmark extracted from one (band, frame) of a
// spectrogram. Transient: produced and consumed within a single ingest or
// identify call, never stored.
type Peak struct {
	FreqBin   uint16  // frequency bin index within the spectrogram
	TimeFrame uint32  // frame index from the start of the (possibly chunked) audio
	Amplitude float32 // linear magnitude at (FreqBin, TimeFrame)
}

// Couple is a posting: one occurrence of a hash value, identified by the
// song that authored it and the anchor peak's frame offset into that song.
type Couple struct {
	SongID     uint64
	AnchorTime uint32 // frames from the start of the song's audio
}

// Song is a metadata row. Mutated only by ingest (create) and remove
// (delete) — see spec.md §3.
type Song struct {
	ID               uint64
	Title            string
	Artist           string
	Album            string // empty string means absent
	FilePath         string
	DurationSeconds  float64
	FileSizeBytes    int64 // 0 means unknown
	DateAdded        time.Time
	FingerprintCount int
}

// MatchResult is the matcher's verdict for one candidate song (spec.md
// §4.6). TimeOffsetFrames is db_anchor_time - query_anchor_time for the
// winning histogram bucket, i.e. where in the candidate song the query
// clip was found.
type MatchResult struct {
	SongID            uint64
	Title             string
	Artist            string
	Album             string
	Confidence        float64
	ConfidenceLevel   string
	MatchingHashes    int
	TotalQueryHashes  int
	AlignmentStrength float64
	TimeOffsetFrames  int64

	// QueryTruncated and QueryDurationSeconds report Normalize's
	// MAX_QUERY_SECONDS truncation (spec.md §4.1, §8 boundary behavior):
	// QueryDurationSeconds is the clip length actually fingerprinted, which
	// equals the truncated length whenever QueryTruncated is true.
	QueryTruncated       bool
	QueryDurationSeconds float64
}

// ConfidenceLevel buckets a raw confidence score into the human-readable
// bands original_source/src/matching.py reports alongside the number.
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "very_high"
	case confidence >= 0.6:
		return "high"
	case confidence >= 0.4:
		return "medium"
	case confidence >= 0.2:
		return "low"
	default:
		return "very_low"
	}
}
