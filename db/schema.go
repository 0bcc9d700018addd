package db

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/tidwall/gjson"

	"sonarid/apperr"
	"sonarid/shazam"
)

// CurrentSchemaVersion is the on-disk schema both backing stores must
// agree on before the orchestrator opens either of them (spec.md §4.7).
const CurrentSchemaVersion = 1

// schemaHeader is the small JSON document CheckSchemaHeader writes/reads.
// Every field here shapes the hashes a fingerprinting engine produces
// (spec.md §6): a store opened with a different SR, N_FFT, HOP, FAN_VALUE,
// DELTA_MIN, DELTA_MAX or BANDS set would silently mismatch every posting
// lookup, so all of them — not just the schema_version counter — must
// round-trip identically.
type schemaHeader struct {
	SchemaVersion int      `json:"schema_version"`
	EngineVersion string   `json:"engine_version"`
	SampleRate    int      `json:"sample_rate"`
	NFFT          int      `json:"n_fft"`
	Hop           int      `json:"hop"`
	FanValue      int      `json:"fan_value"`
	DeltaMin      int      `json:"delta_min"`
	DeltaMax      int      `json:"delta_max"`
	Bands         [][2]int `json:"bands"`
}

func newSchemaHeader(engineVersion string, cfg shazam.Config) schemaHeader {
	return schemaHeader{
		SchemaVersion: CurrentSchemaVersion,
		EngineVersion: engineVersion,
		SampleRate:    cfg.SampleRate,
		NFFT:          cfg.NFFT,
		Hop:           cfg.Hop,
		FanValue:      cfg.FanValue,
		DeltaMin:      cfg.DeltaMin,
		DeltaMax:      cfg.DeltaMax,
		Bands:         cfg.FreqBandsHz,
	}
}

// CheckSchemaHeader reads the small JSON header document at path and
// verifies every field matches what engineVersion/cfg would write today,
// creating the header if the file is absent. A mismatch on any field is a
// fatal apperr.KindSchemaMismatch: fingerprints generated under one
// parameter set are not comparable to fingerprints generated under
// another, so the store must refuse to open rather than silently return
// garbage matches.
//
// gjson's path-query reads keep this terse next to the small size of the
// document — no full json.Unmarshal into a struct just to compare a
// handful of fields. Writes go through encoding/json.Marshal, since the
// full header must be produced, not just a couple of values read out.
func CheckSchemaHeader(path, engineVersion string, cfg shazam.Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return writeSchemaHeader(path, engineVersion, cfg)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}

	want := newSchemaHeader(engineVersion, cfg)
	wantBands, err := json.Marshal(want.Bands)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err)
	}

	got := gjson.ParseBytes(data)
	fields := []struct {
		name string
		want string
	}{
		{"schema_version", strconv.Itoa(want.SchemaVersion)},
		{"engine_version", want.EngineVersion},
		{"sample_rate", strconv.Itoa(want.SampleRate)},
		{"n_fft", strconv.Itoa(want.NFFT)},
		{"hop", strconv.Itoa(want.Hop)},
		{"fan_value", strconv.Itoa(want.FanValue)},
		{"delta_min", strconv.Itoa(want.DeltaMin)},
		{"delta_max", strconv.Itoa(want.DeltaMax)},
		{"bands", string(wantBands)},
	}

	for _, f := range fields {
		val := got.Get(f.name)
		if !val.Exists() {
			return apperr.Newf(apperr.KindSchemaMismatch, "schema header missing %s field", f.name)
		}
		gotStr := val.String()
		if f.name == "bands" {
			gotStr = val.Raw
		}
		if gotStr != f.want {
			return apperr.Newf(apperr.KindSchemaMismatch, "store %s %q, expected %q", f.name, gotStr, f.want)
		}
	}

	return nil
}

func writeSchemaHeader(path, engineVersion string, cfg shazam.Config) error {
	doc, err := json.Marshal(newSchemaHeader(engineVersion, cfg))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err)
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}
	return nil
}
