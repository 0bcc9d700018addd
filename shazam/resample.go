package shazam

import (
	"math"

	"sonarid/apperr"
)

// Normalize implements the resampler/normalizer contract of spec.md §4.1:
// convert arbitrary PCM to mono at cfg.SampleRate, truncating to
// cfg.MaxQuerySeconds. It is intentionally lossless beyond resampling — no
// AGC, no dynamic range processing, no denoising — so that fingerprinting
// stays deterministic for identical input.
//
// channels is the interleaved channel count of pcm; 1 for already-mono
// input. truncated reports whether the tail was cut for exceeding
// MaxQuerySeconds, a capacity condition (spec.md §7) the caller logs but
// does not treat as an error.
func Normalize(pcm []float64, channels int, srcRate int, cfg Config) (samples []float64, truncated bool, err error) {
	if len(pcm) == 0 {
		return nil, false, apperr.New(apperr.KindEmptyInput, "normalize: empty input")
	}
	if srcRate <= 0 || cfg.SampleRate <= 0 {
		return nil, false, apperr.New(apperr.KindResampleError, "normalize: invalid sample rate")
	}
	if channels < 1 {
		channels = 1
	}

	mono := toMono(pcm, channels)

	if srcRate != cfg.SampleRate {
		mono = resample(mono, srcRate, cfg.SampleRate)
	}

	maxSamples := int(cfg.MaxQuerySeconds * float64(cfg.SampleRate))
	if maxSamples > 0 && len(mono) > maxSamples {
		mono = mono[:maxSamples]
		truncated = true
	}

	return mono, truncated, nil
}

// toMono averages interleaved channels down to a single stream. A trailing
// partial frame (len(pcm) not a multiple of channels) is dropped.
func toMono(pcm []float64, channels int) []float64 {
	if channels == 1 {
		out := make([]float64, len(pcm))
		copy(out, pcm)
		return out
	}

	nFrames := len(pcm) / channels
	mono := make([]float64, nFrames)
	for i := 0; i < nFrames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += pcm[base+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// resample converts mono audio from srcRate to dstRate. When downsampling,
// an anti-aliasing low-pass filter runs first at the new Nyquist frequency
// — this is part of correct resampling, not the perceptual enhancement
// spec.md §1 places out of scope. The conversion itself is linear
// interpolation, which keeps output length within +-1 sample of
// round(len(pcm) * dstRate / srcRate) as spec.md §4.1 requires.
func resample(pcm []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate {
		out := make([]float64, len(pcm))
		copy(out, pcm)
		return out
	}

	if dstRate < srcRate {
		cutoff := float64(dstRate) / 2 * 0.9
		pcm = LowPassFilter(cutoff, float64(srcRate), pcm)
	}

	outLen := int(math.Round(float64(len(pcm)) * float64(dstRate) / float64(srcRate)))
	if outLen <= 0 {
		return nil
	}

	out := make([]float64, outLen)
	step := float64(srcRate) / float64(dstRate)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * step
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		if idx >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		out[i] = pcm[idx]*(1-frac) + pcm[idx+1]*frac
	}
	return out
}

// LowPassFilter is a first-order RC low-pass filter attenuating frequencies
// above cutoffFrequency, used as the anti-aliasing stage ahead of
// decimation in resample.
func LowPassFilter(cutoffFrequency, sampleRate float64, input []float64) []float64 {
	rc := 1.0 / (2 * math.Pi * cutoffFrequency)
	dt := 1.0 / sampleRate
	alpha := dt / (rc + dt)

	out := make([]float64, len(input))
	var prevOutput float64
	for i, x := range input {
		if i == 0 {
			out[i] = x * alpha
		} else {
			out[i] = alpha*x + (1-alpha)*prevOutput
		}
		prevOutput = out[i]
	}
	return out
}
