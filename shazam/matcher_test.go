package shazam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarid/models"
)

func matcherCfg() Config {
	cfg := testCfg()
	cfg.MinMatchingHashes = 3
	cfg.TimeAlignmentTolerance = 1
	cfg.ConfidenceThreshold = 0.05
	return cfg
}

func songMetaFixture(songs map[uint64]models.Song) func(uint64) (models.Song, bool) {
	return func(id uint64) (models.Song, bool) {
		s, ok := songs[id]
		return s, ok
	}
}

func TestMatch_EmptyQueryReturnsNil(t *testing.T) {
	cfg := matcherCfg()
	lookup := func(uint64) []models.Couple { return nil }
	meta := songMetaFixture(nil)

	got := Match(map[uint64]uint32{}, lookup, meta, cfg)
	assert.Nil(t, got)
}

func TestMatch_BelowMinMatchingHashesIsDropped(t *testing.T) {
	cfg := matcherCfg()
	query := map[uint64]uint32{1: 0, 2: 1}
	lookup := func(hash uint64) []models.Couple {
		return []models.Couple{{SongID: 42, AnchorTime: uint32(hash)}}
	}
	meta := songMetaFixture(map[uint64]models.Song{42: {ID: 42, Title: "x"}})

	got := Match(query, lookup, meta, cfg)
	assert.Empty(t, got)
}

func TestMatch_ConsistentOffsetProducesConfidentMatch(t *testing.T) {
	cfg := matcherCfg()
	// 10 query hashes, every one aligned to the same db offset (+100).
	query := make(map[uint64]uint32, 10)
	lookup := func(hash uint64) []models.Couple {
		queryTime := uint32(hash)
		return []models.Couple{{SongID: 7, AnchorTime: queryTime + 100}}
	}
	for h := uint64(0); h < 10; h++ {
		query[h] = uint32(h)
	}
	meta := songMetaFixture(map[uint64]models.Song{
		7: {ID: 7, Title: "Song A", Artist: "Artist A"},
	})

	got := Match(query, lookup, meta, cfg)
	require.Len(t, got, 1)
	result := got[0]
	assert.Equal(t, uint64(7), result.SongID)
	assert.Equal(t, "Song A", result.Title)
	assert.Equal(t, int64(100), result.TimeOffsetFrames)
	assert.Equal(t, 10, result.MatchingHashes)
	assert.InDelta(t, 1.0, result.AlignmentStrength, 1e-9)
	assert.Greater(t, result.Confidence, cfg.ConfidenceThreshold)
	assert.Equal(t, "very_high", result.ConfidenceLevel)
}

func TestMatch_DeadPostingIsSkippedViaSongMeta(t *testing.T) {
	cfg := matcherCfg()
	query := map[uint64]uint32{0: 0, 1: 1, 2: 2, 3: 3}
	lookup := func(hash uint64) []models.Couple {
		return []models.Couple{{SongID: 99, AnchorTime: uint32(hash) + 50}}
	}
	meta := songMetaFixture(nil) // song 99 has no metadata row (removed)

	got := Match(query, lookup, meta, cfg)
	assert.Empty(t, got)
}

func TestMatch_RanksByConfidenceThenHashCountThenSongID(t *testing.T) {
	cfg := matcherCfg()
	cfg.MinMatchingHashes = 1
	cfg.ConfidenceThreshold = 0

	query := map[uint64]uint32{0: 0, 1: 1, 2: 2}
	lookup := func(hash uint64) []models.Couple {
		// songs 2 and 1 get identical, perfectly aligned postings, so only
		// the final SongID tie-break can order them.
		return []models.Couple{
			{SongID: 2, AnchorTime: uint32(hash) + 10},
			{SongID: 1, AnchorTime: uint32(hash) + 10},
		}
	}
	meta := songMetaFixture(map[uint64]models.Song{
		1: {ID: 1, Title: "One"},
		2: {ID: 2, Title: "Two"},
	})

	got := Match(query, lookup, meta, cfg)
	require.Len(t, got, 2)
	// identical confidence and hash count -> tie-break on the lower SongID.
	assert.Equal(t, uint64(1), got[0].SongID)
	assert.Equal(t, uint64(2), got[1].SongID)
}

func TestOffsetHistogram_PicksModeOfQuantizedOffsets(t *testing.T) {
	bucket := []bucketEntry{
		{dbAnchorTime: 100, queryAnchorTime: 0}, // offset 100
		{dbAnchorTime: 101, queryAnchorTime: 0}, // offset 101
		{dbAnchorTime: 100, queryAnchorTime: 0}, // offset 100 (duplicate raw)
		{dbAnchorTime: 500, queryAnchorTime: 0}, // outlier
	}
	offset, aligned, uniqueRatio := offsetHistogram(bucket, 5)
	assert.InDelta(t, 100, float64(offset), 5)
	assert.GreaterOrEqual(t, aligned, 3)
	assert.Less(t, uniqueRatio, 1.0)
}

func TestComputeConfidence_ClampedToUnitInterval(t *testing.T) {
	c := computeConfidence(1000, 1000, 1000, 1.0)
	assert.LessOrEqual(t, c, 1.0)
	assert.GreaterOrEqual(t, c, 0.0)

	zero := computeConfidence(0, 10, 10, 0)
	assert.GreaterOrEqual(t, zero, 0.0)
}
