package shazam

// Config controls every tunable parameter in the resample, spectrogram,
// peak-extraction, hash-generation, and matcher stages (spec.md §4,
// recommended values per §4.1-§4.6). Constructed once by the orchestrator
// and passed by reference — no package-level mutable state (spec.md §9).
type Config struct {
	SampleRate int // canonical sample rate (SR), recommended 22050 Hz
	NFFT       int // STFT window size in samples, power of 2
	Hop        int // samples between successive STFT frames

	FreqBandsHz [][2]int // (lowHz, highHz) bands for peak extraction

	MinPeakAmplitude float64 // amplitude floor a local max must clear
	PeakNeighborhood int     // minimum bin separation between band peaks

	FanValue int // max target peaks paired per anchor
	DeltaMin int // min time delta (frames) between anchor and target
	DeltaMax int // max time delta (frames) between anchor and target

	MaxFingerprintsPerTrack int     // hard cap on retained hashes per song
	MaxQuerySeconds         float64 // query audio is truncated beyond this
	ChunkDurationSeconds    float64 // 0 = whole file in one pass

	MinMatchingHashes      int     // candidate filter floor (matcher step 2)
	TimeAlignmentTolerance int     // offset quantization width, frames
	ConfidenceThreshold    float64 // matcher step 6 acceptance floor
}

// DefaultMusicConfig returns the Wang-2003-style parameters recommended by
// spec.md for short music clips: high time-frequency resolution, a tight
// four-band constellation between 300 Hz and 2 kHz.
func DefaultMusicConfig() Config {
	return Config{
		SampleRate: 22050,
		NFFT:       2048,
		Hop:        512,
		FreqBandsHz: [][2]int{
			{300, 500},
			{500, 1000},
			{1000, 1500},
			{1500, 2000},
		},
		MinPeakAmplitude: 0.001,
		PeakNeighborhood: 5,

		FanValue: 5,
		DeltaMin: 1,
		DeltaMax: 200,

		MaxFingerprintsPerTrack: 10000,
		MaxQuerySeconds:         30,
		ChunkDurationSeconds:    300,

		MinMatchingHashes:      3,
		TimeAlignmentTolerance: 5,
		ConfidenceThreshold:    0.05,
	}
}

// DefaultAudiobookConfig trades time-frequency resolution for a much lower
// fingerprint rate, the way the teacher's DefaultAudiobookConfig did: fewer,
// wider bands and a larger hop, so multi-hour spoken-word files stay
// practical to store and chunk.
func DefaultAudiobookConfig() Config {
	cfg := DefaultMusicConfig()
	cfg.Hop = 2048 // no overlap
	cfg.FreqBandsHz = [][2]int{
		{0, 300},     // fundamental
		{300, 1000},  // first formant region
		{1000, 3000}, // higher formants
	}
	cfg.FanValue = 3
	cfg.ChunkDurationSeconds = 120
	return cfg
}

// bandsToBins converts the configured Hz bands into inclusive-low,
// exclusive-high bin index ranges for a spectrogram built with this
// config's NFFT/SampleRate, clamped to the Nyquist bin.
func (c Config) bandsToBins() [][2]int {
	nyquistBin := c.NFFT / 2
	freqRes := float64(c.SampleRate) / float64(c.NFFT)

	bins := make([][2]int, 0, len(c.FreqBandsHz))
	for _, band := range c.FreqBandsHz {
		lo := int(float64(band[0]) / freqRes)
		hi := int(float64(band[1]) / freqRes)
		if hi > nyquistBin {
			hi = nyquistBin
		}
		if lo >= hi {
			continue
		}
		bins = append(bins, [2]int{lo, hi})
	}
	return bins
}
