package shazam

import (
	"log"
	"os"
	"runtime"
	"time"

	"sonarid/apperr"
	"sonarid/models"
	"sonarid/utils"
	"sonarid/wav"
)

// Fingerprint implements spec.md §4.4: pair each anchor peak with up to
// cfg.FanValue forward target peaks whose time delta falls within
// [cfg.DeltaMin, cfg.DeltaMax] frames, and pack each pair into a 64-bit
// hash. peaks must already be sorted by ascending TimeFrame (ExtractPeaks
// guarantees this).
//
// The result is capped at cfg.MaxFingerprintsPerTrack entries; once the
// cap is reached no further anchors are scanned, which keeps storage for
// very long tracks bounded.
func Fingerprint(peaks []models.Peak, songID uint64, cfg Config) map[uint64]models.Couple {
	fingerprints := make(map[uint64]models.Couple)

	for i, anchor := range peaks {
		if len(fingerprints) >= cfg.MaxFingerprintsPerTrack {
			break
		}

		fanEmitted := 0
		for j := i + 1; j < len(peaks) && fanEmitted < cfg.FanValue && len(fingerprints) < cfg.MaxFingerprintsPerTrack; j++ {
			target := peaks[j]
			delta := int64(target.TimeFrame) - int64(anchor.TimeFrame)
			if delta < int64(cfg.DeltaMin) {
				continue
			}
			if delta > int64(cfg.DeltaMax) {
				break // peaks are time-sorted; no later target can satisfy DeltaMax either
			}

			hash := packHash(anchor.FreqBin, target.FreqBin, uint32(delta))
			fingerprints[hash] = models.Couple{
				SongID:     songID,
				AnchorTime: anchor.TimeFrame,
			}
			fanEmitted++
		}
	}

	return fingerprints
}

// packHash encodes an anchor/target frequency-bin pair and their time
// delta into a stable 64-bit key: 16 bits anchor bin, 16 bits target bin,
// 32 bits delta. Bin indices fit comfortably in 16 bits (NFFT/2 is at most
// a few thousand) and 32 bits of delta leaves enormous headroom over
// DeltaMax, so no practical configuration truncates either field.
func packHash(anchorBin, targetBin uint16, delta uint32) uint64 {
	return uint64(anchorBin)<<48 | uint64(targetBin)<<32 | uint64(delta)
}

// FingerprintFromPCM runs the Received->Hashed portion of spec.md §4.7's
// ingest state machine over one in-memory PCM buffer: normalize,
// spectrogram, peak-pick, hash. startFrame lets a chunked caller offset
// frame indices to be relative to the whole track.
//
// truncated and querySeconds report Normalize's MAX_QUERY_SECONDS cut
// (spec.md §4.1): querySeconds is the post-normalize sample count in
// seconds, the "truncated length" spec.md §8's boundary behavior requires
// callers be able to report alongside a query match.
func FingerprintFromPCM(pcm []float64, channels, srcRate int, songID uint64, cfg Config, startFrame uint32) (fingerprints map[uint64]models.Couple, truncated bool, querySeconds float64, err error) {
	samples, truncated, err := Normalize(pcm, channels, srcRate, cfg)
	if err != nil {
		return nil, false, 0, err
	}
	querySeconds = float64(len(samples)) / float64(cfg.SampleRate)

	spectro, err := Spectrogram(samples, cfg)
	if err != nil {
		return nil, false, 0, err
	}

	peaks := ExtractPeaks(spectro, cfg, startFrame)
	if len(peaks) == 0 {
		return nil, truncated, querySeconds, nil
	}

	return Fingerprint(peaks, songID, cfg), truncated, querySeconds, nil
}

// FingerprintFileChunked processes an audio file in bounded-memory chunks
// using ffmpeg for segment extraction, the way the teacher's
// FingerprintAudioChunked did: each chunk is independently converted to
// WAV, fingerprinted, and merged into the result map, so memory usage is
// proportional to cfg.ChunkDurationSeconds rather than total file length.
//
// Returns apperr.KindNoFingerprints if the whole file yields no hashes.
func FingerprintFileChunked(inputPath string, songID uint64, cfg Config) (map[uint64]models.Couple, error) {
	duration, err := wav.GetAudioDuration(inputPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadAudio, err)
	}

	log.Printf("[fingerprint] file duration: %.0fs, chunk size: %.0fs", duration, cfg.ChunkDurationSeconds)

	fingerprints := make(map[uint64]models.Couple)

	chunkDur := cfg.ChunkDurationSeconds
	if chunkDur <= 0 {
		chunkDur = duration
	}

	// small overlap avoids losing peak pairs that straddle chunk boundaries
	overlap := 5.0
	step := chunkDur - overlap
	if step <= 0 || cfg.ChunkDurationSeconds <= 0 {
		step = chunkDur
	}

	framesPerSecond := float64(cfg.SampleRate) / float64(cfg.Hop)

	chunkIdx := 0
	for start := 0.0; start < duration; start += step {
		if len(fingerprints) >= cfg.MaxFingerprintsPerTrack {
			break
		}

		dur := chunkDur
		if start+dur > duration {
			dur = duration - start
		}
		if dur <= 0 {
			break
		}

		chunkStart := time.Now()
		log.Printf("[chunk %d] extracting %.0fs - %.0fs", chunkIdx, start, start+dur)

		chunkPath, err := wav.ExtractChunkAsWAV(inputPath, start, dur, cfg.SampleRate)
		if err != nil {
			return nil, apperr.Wrapf(apperr.KindIOError, err, "chunk extraction at %.0fs", start)
		}

		wavInfo, err := wav.ReadWavInfo(chunkPath)
		os.Remove(chunkPath)
		if err != nil {
			return nil, apperr.Wrapf(apperr.KindBadAudio, err, "reading chunk wav at %.0fs", start)
		}

		startFrame := uint32(start * framesPerSecond)
		chunkFP, _, _, err := FingerprintFromPCM(wavInfo.Samples, wavInfo.Channels, wavInfo.SampleRate, songID, cfg, startFrame)
		if err != nil {
			return nil, err
		}
		utils.ExtendMap(fingerprints, chunkFP)

		log.Printf("[chunk %d] %d fingerprints, took %s", chunkIdx, len(chunkFP), time.Since(chunkStart))

		wavInfo = nil
		runtime.GC()

		chunkIdx++
	}

	log.Printf("[fingerprint] total: %d fingerprints from %d chunks", len(fingerprints), chunkIdx)

	if len(fingerprints) == 0 {
		return nil, apperr.New(apperr.KindNoFingerprints, "no fingerprints generated")
	}
	if len(fingerprints) > cfg.MaxFingerprintsPerTrack {
		fingerprints = truncateFingerprints(fingerprints, cfg.MaxFingerprintsPerTrack)
	}

	return fingerprints, nil
}

// truncateFingerprints keeps a deterministic n-sized subset of a hash map
// by iterating in sorted key order, so repeated runs over the same input
// truncate identically regardless of map iteration order.
func truncateFingerprints(fp map[uint64]models.Couple, n int) map[uint64]models.Couple {
	keys := make([]uint64, 0, len(fp))
	for k := range fp {
		keys = append(keys, k)
	}
	sortUint64s(keys)

	out := make(map[uint64]models.Couple, n)
	for _, k := range keys[:n] {
		out[k] = fp[k]
	}
	return out
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
