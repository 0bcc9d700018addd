package shazam

import (
	"math"
	"math/cmplx"

	"sonarid/apperr"
)

// Spectrogram computes the magnitude STFT of samples, already normalized to
// cfg.SampleRate by Normalize. Per spec.md §4.2 this stage is pure
// time-frequency transform: no filtering, no resampling — those belong to
// the resample stage so the spectrogram's only job is windowing and FFT.
//
// samples shorter than one NFFT window yield an empty spectrogram rather
// than an error. ExtractPeaks then returns no peaks and FingerprintFromPCM
// no fingerprints; no stage reports KindInsufficientAudio for it.
func Spectrogram(samples []float64, cfg Config) ([][]float64, error) {
	if cfg.NFFT <= 0 || cfg.Hop <= 0 {
		return nil, apperr.New(apperr.KindInternal, "spectrogram: invalid NFFT/Hop config")
	}

	window := hannWindow(cfg.NFFT)

	frames := make([][]float64, 0, len(samples)/cfg.Hop+1)
	for start := 0; start+cfg.NFFT <= len(samples); start += cfg.Hop {
		frame := make([]float64, cfg.NFFT)
		copy(frame, samples[start:start+cfg.NFFT])
		for i := range window {
			frame[i] *= window[i]
		}

		fftResult := FFT(frame)

		magnitude := make([]float64, len(fftResult)/2)
		for i := range magnitude {
			magnitude[i] = cmplx.Abs(fftResult[i])
		}
		frames = append(frames, magnitude)
	}

	return frames, nil
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		theta := 2 * math.Pi * float64(i) / float64(size-1)
		w[i] = 0.5 - 0.5*math.Cos(theta)
	}
	return w
}
