package engine

import (
	"strconv"

	"github.com/joho/godotenv"

	"sonarid/shazam"
	"sonarid/utils"
)

// EngineVersion is recorded in the stores' shared schema header (spec.md §6) so
// a store created by one build can be told apart from one created by a
// build whose fingerprinting parameters changed without bumping
// CurrentSchemaVersion.
const EngineVersion = "1.0.0"

// Config is the orchestrator's immutable configuration, assembled once at
// startup from environment variables (spec.md §9's redesign note rules out
// a package-level mutable singleton the way the teacher's global fpConfig
// var worked). LoadConfig calls godotenv.Load the way the teacher's main()
// does, then reads every recognized option spec.md §4.7 lists.
type Config struct {
	Shazam shazam.Config

	MetadataPath string // sqlite file path
	MongoURI     string
	MongoDB      string

	SongsDir string
	TmpDir   string
}

// LoadConfig loads a .env file if present (ignored if absent, matching
// the teacher's best-effort godotenv.Load() call) and builds a Config from
// the environment, falling back to DefaultMusicConfig's values.
func LoadConfig() Config {
	_ = godotenv.Load()

	base := shazam.DefaultMusicConfig()

	cfg := Config{
		Shazam: shazam.Config{
			SampleRate:              envInt("ENGINE_SAMPLE_RATE", base.SampleRate),
			NFFT:                    envInt("ENGINE_N_FFT", base.NFFT),
			Hop:                     envInt("ENGINE_HOP", base.Hop),
			FreqBandsHz:             base.FreqBandsHz,
			MinPeakAmplitude:        envFloat("ENGINE_MIN_PEAK_AMPLITUDE", base.MinPeakAmplitude),
			PeakNeighborhood:        base.PeakNeighborhood,
			FanValue:                envInt("ENGINE_FAN_VALUE", base.FanValue),
			DeltaMin:                envInt("ENGINE_DELTA_MIN", base.DeltaMin),
			DeltaMax:                envInt("ENGINE_DELTA_MAX", base.DeltaMax),
			MaxFingerprintsPerTrack: envInt("ENGINE_MAX_FINGERPRINTS_PER_TRACK", base.MaxFingerprintsPerTrack),
			MaxQuerySeconds:         envFloat("ENGINE_MAX_QUERY_SECONDS", base.MaxQuerySeconds),
			ChunkDurationSeconds:    base.ChunkDurationSeconds,
			MinMatchingHashes:       envInt("ENGINE_MIN_MATCHING_HASHES", base.MinMatchingHashes),
			TimeAlignmentTolerance:  envInt("ENGINE_TIME_ALIGNMENT_TOLERANCE", base.TimeAlignmentTolerance),
			ConfidenceThreshold:     envFloat("ENGINE_CONFIDENCE_THRESHOLD", base.ConfidenceThreshold),
		},
		MetadataPath: utils.GetEnv("STORE_METADATA_PATH", "sonarid.db"),
		MongoURI:     utils.GetEnv("STORE_INDEX_URI", "mongodb://localhost:27017"),
		MongoDB:      utils.GetEnv("STORE_INDEX_PATH", "sonarid"),
		SongsDir:     utils.GetEnv("SONGS_DIR", "songs"),
		TmpDir:       utils.GetEnv("TMP_DIR", "tmp"),
	}

	return cfg
}

func envInt(key string, fallback int) int {
	v := utils.GetEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := utils.GetEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
