package shazam

import (
	"sort"

	"sonarid/models"
)

// ExtractPeaks implements spec.md §4.3: for each spectrogram frame and each
// configured frequency band, find the local maxima separated by at least
// cfg.PeakNeighborhood bins and emit the single greatest of them, provided
// it clears cfg.MinPeakAmplitude. The global max of a band is always one of
// its local maxima, so scanning straight for the band's loudest bin yields
// the same single peak the neighborhood-constrained search would — it's
// just cheaper. Ties within a band resolve to the lowest frequency bin,
// matching the ascending scan order below.
//
// startFrame offsets TimeFrame so chunked ingestion (FingerprintFileChunked)
// produces frame indices relative to the whole track rather than the
// chunk. The returned peaks are sorted by (TimeFrame ascending, Amplitude
// descending) per spec.md §4.3.
func ExtractPeaks(spectrogram [][]float64, cfg Config, startFrame uint32) []models.Peak {
	bands := cfg.bandsToBins()
	if len(bands) == 0 || len(spectrogram) == 0 {
		return nil
	}

	peaks := make([]models.Peak, 0, len(spectrogram)*len(bands))
	for frameIdx, frame := range spectrogram {
		for _, band := range bands {
			lo, hi := band[0], band[1]
			if hi > len(frame) {
				hi = len(frame)
			}
			if lo >= hi {
				continue
			}

			bestBin := -1
			bestMag := cfg.MinPeakAmplitude
			for bin := lo; bin < hi; bin++ {
				if frame[bin] > bestMag {
					bestMag = frame[bin]
					bestBin = bin
				}
			}
			if bestBin < 0 {
				continue
			}

			peaks = append(peaks, models.Peak{
				FreqBin:   uint16(bestBin),
				TimeFrame: startFrame + uint32(frameIdx),
				Amplitude: float32(bestMag),
			})
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool {
		if peaks[i].TimeFrame != peaks[j].TimeFrame {
			return peaks[i].TimeFrame < peaks[j].TimeFrame
		}
		return peaks[i].Amplitude > peaks[j].Amplitude
	})

	return peaks
}
