package wav

import (
	"os"

	"github.com/go-audio/wav"

	"sonarid/apperr"
)

// WavInfo is the decoded PCM payload ReadWavInfo and the chunked
// fingerprinter work with: interleaved float64 samples in [-1, 1],
// channel count, and sample rate as stored in the WAV header.
type WavInfo struct {
	Samples    []float64
	Channels   int
	SampleRate int
	Duration   float64
}

// ReadWavInfo decodes a WAV file via go-audio/wav — a pure-Go PCM decoder,
// so identifying an already-WAV clip never has to shell out to ffmpeg the
// way ConvertToWAV does for other containers. Chunked ingestion still cuts
// each chunk with ffmpeg (ExtractChunkAsWAV) before decoding it here.
func ReadWavInfo(path string) (WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WavInfo{}, apperr.Wrap(apperr.KindIOError, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return WavInfo{}, apperr.New(apperr.KindBadAudio, "not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return WavInfo{}, apperr.Wrap(apperr.KindBadAudio, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	bitDepth := decoder.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	maxAmplitude := float64(int(1)<<(bitDepth-1)) - 1

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / maxAmplitude
	}

	duration := 0.0
	if buf.Format.SampleRate > 0 && channels > 0 {
		duration = float64(len(samples)) / float64(channels) / float64(buf.Format.SampleRate)
	}

	return WavInfo{
		Samples:    samples,
		Channels:   channels,
		SampleRate: buf.Format.SampleRate,
		Duration:   duration,
	}, nil
}
