package shazam

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"sonarid/models"
)

// queryHash is one hash from the query clip together with the frame offset
// at which it occurred — the matcher's sole input per spec.md §4.6.
type queryHash struct {
	Hash            uint64
	QueryAnchorTime uint32
}

// bucketEntry is one posting matched against one query hash occurrence.
type bucketEntry struct {
	dbAnchorTime    uint32
	queryAnchorTime uint32
}

// Match runs the full spec.md §4.6 matcher: lookup, candidate filter,
// offset-histogram alignment, adaptive gate, confidence scoring, and
// ranking. lookup fetches the postings for one hash value (the caller's
// index abstraction — spec.md §4.5's search operation); songMeta resolves
// a surviving song_id to its metadata, returning ok=false for a song with
// no live row (the matcher's lazy posting-cleanup requirement).
//
// totalQueryHashes is len(queryHashes) before any filtering, used for the
// coverage and unique_bonus terms.
func Match(queryHashes map[uint64]uint32, lookup func(hash uint64) []models.Couple, songMeta func(songID uint64) (models.Song, bool), cfg Config) []models.MatchResult {
	totalQueryHashes := len(queryHashes)
	if totalQueryHashes == 0 {
		return nil
	}

	// Step 1: lookup + bucket.
	buckets := make(map[uint64][]bucketEntry)
	for hash, queryTime := range queryHashes {
		for _, couple := range lookup(hash) {
			buckets[couple.SongID] = append(buckets[couple.SongID], bucketEntry{
				dbAnchorTime:    couple.AnchorTime,
				queryAnchorTime: queryTime,
			})
		}
	}

	results := make([]models.MatchResult, 0, len(buckets))
	for songID, bucket := range buckets {
		// Step 2: candidate filter.
		if len(bucket) < cfg.MinMatchingHashes {
			continue
		}

		song, ok := songMeta(songID)
		if !ok {
			continue // dead posting; metadata already removed
		}

		// Step 3: offset histogram.
		bestOffset, alignedCount, uniqueRatio := offsetHistogram(bucket, cfg.TimeAlignmentTolerance)

		// Step 4: adaptive alignment gate.
		threshold := 0.3
		if uniqueRatio < 0.3 {
			threshold = 0.05
		}
		alignmentStrength := float64(alignedCount) / float64(len(bucket))
		if alignmentStrength < threshold {
			continue
		}

		// Step 5: confidence.
		confidence := computeConfidence(alignedCount, len(bucket), totalQueryHashes, alignmentStrength)

		results = append(results, models.MatchResult{
			SongID:            songID,
			Title:             song.Title,
			Artist:            song.Artist,
			Album:             song.Album,
			Confidence:        confidence,
			ConfidenceLevel:   models.ConfidenceLevel(confidence),
			MatchingHashes:    len(bucket),
			TotalQueryHashes:  totalQueryHashes,
			AlignmentStrength: alignmentStrength,
			TimeOffsetFrames:  bestOffset,
		})
	}

	// Step 6: ranking.
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.MatchingHashes != b.MatchingHashes {
			return a.MatchingHashes > b.MatchingHashes
		}
		return a.SongID < b.SongID
	})

	accepted := results[:0]
	for _, r := range results {
		if r.Confidence >= cfg.ConfidenceThreshold {
			accepted = append(accepted, r)
		}
	}

	return accepted
}

// offsetHistogram computes the quantized db-minus-query offset mode:
// (best_offset, aligned_count, unique_ratio). Quantization divides each
// raw offset by tolerance and rounds, so sub-frame drift collapses into
// one bucket.
func offsetHistogram(bucket []bucketEntry, tolerance int) (bestOffset int64, alignedCount int, uniqueRatio float64) {
	if tolerance <= 0 {
		tolerance = 1
	}

	counts := make(map[int64]int)
	uniqueRaw := make(map[int64]struct{})
	for _, e := range bucket {
		raw := int64(e.dbAnchorTime) - int64(e.queryAnchorTime)
		uniqueRaw[raw] = struct{}{}

		quantized := int64(math.Round(float64(raw) / float64(tolerance)))
		counts[quantized]++
	}

	var bestQuantized int64
	for q, c := range counts {
		if c > alignedCount || (c == alignedCount && q < bestQuantized) {
			alignedCount = c
			bestQuantized = q
		}
	}

	bestOffset = bestQuantized * int64(tolerance)
	uniqueRatio = float64(len(uniqueRaw)) / float64(len(bucket))
	return bestOffset, alignedCount, uniqueRatio
}

// computeConfidence implements spec.md §4.6 step 5, clamped to [0, 1].
func computeConfidence(alignedCount, bucketSize, totalQueryHashes int, alignmentStrength float64) float64 {
	coverage := math.Min(1, float64(bucketSize)/float64(totalQueryHashes))

	rawStrength, _ := stats.Round(math.Min(1, math.Log(float64(alignedCount+1))/math.Log(20)), 10)

	uniqueBonus := 1.0
	if bucketSize > totalQueryHashes {
		uniqueBonus = math.Min(1, float64(totalQueryHashes)/float64(bucketSize))
	}

	confidence := 0.4*alignmentStrength + 0.3*rawStrength + 0.2*coverage + 0.1*uniqueBonus
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
