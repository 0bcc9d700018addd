package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"sonarid/apperr"
	"sonarid/engine"
	"sonarid/models"
)

// find returns the CLI exit code spec.md §6 assigns: 0 on a match, 1 on a
// clean "no match", 3 on an internal/processing failure.
func find(ctx context.Context, eng *engine.Engine, filePath string) int {
	fmt.Printf("identifying %s...\n", filePath)

	matches, err := eng.Identify(ctx, filePath)
	if err != nil {
		red.Printf("error identifying clip: %v\n", err)
		return 3
	}

	if len(matches) == 0 {
		fmt.Println("no match found.")
		return 1
	}

	if matches[0].QueryTruncated {
		fmt.Printf("warning: clip truncated to %.1fs (MaxQuerySeconds)\n", matches[0].QueryDurationSeconds)
	}

	fmt.Println("matches:")
	for _, m := range matches {
		fmt.Printf("\t- %s by %s (%s, %.2f confidence)\n", m.Title, m.Artist, m.ConfidenceLevel, m.Confidence)
	}

	top := matches[0]
	bold.Print("\nbest match: ")
	green.Printf("%s by %s\n", top.Title, top.Artist)
	return 0
}

func removeCmd(ctx context.Context, eng *engine.Engine, idArg string) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		red.Printf("invalid song id %q\n", idArg)
		return
	}

	if err := eng.Remove(ctx, id); err != nil {
		red.Printf("error removing song %d: %v\n", id, err)
		return
	}
	green.Printf("removed song %d\n", id)
}

func listCmd(ctx context.Context, eng *engine.Engine) {
	songs, err := eng.List(ctx, 100, 0, "")
	if err != nil {
		red.Printf("error listing songs: %v\n", err)
		return
	}

	if len(songs) == 0 {
		fmt.Println("no songs indexed.")
		return
	}

	for _, s := range songs {
		fmt.Printf("%d\t%s by %s\t(%d fingerprints)\n", s.ID, s.Title, s.Artist, s.FingerprintCount)
	}
}

func statsCmd(ctx context.Context, eng *engine.Engine) {
	stats, err := eng.Stats(ctx)
	if err != nil {
		red.Printf("error fetching stats: %v\n", err)
		return
	}
	fmt.Printf("songs: %d\npostings: %d\ntotal duration: %.1fh\nstorage estimate: %s\n",
		stats.TotalSongs, stats.TotalPostings, stats.TotalDurationHours, stats.StorageEstimate)
}

func save(ctx context.Context, eng *engine.Engine, path string) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		red.Printf("error: %v\n", err)
		return
	}

	if !fileInfo.IsDir() {
		if err := saveEntry(ctx, eng, path); err != nil {
			red.Printf("error saving (%v): %v\n", path, err)
		}
		return
	}

	var filePaths []string
	filepath.Walk(path, func(fp string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			filePaths = append(filePaths, fp)
		}
		return nil
	})

	processFilesConcurrently(ctx, eng, filePaths)
}

// processFilesConcurrently fans ingestion out over a bounded worker pool,
// the way the teacher's processFilesConcurrently did: half the available
// CPUs, one job channel, one results channel.
func processFilesConcurrently(ctx context.Context, eng *engine.Engine, filePaths []string) {
	maxWorkers := runtime.NumCPU() / 2
	numFiles := len(filePaths)

	if numFiles == 0 {
		return
	}
	if numFiles < maxWorkers {
		maxWorkers = numFiles
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	jobs := make(chan string, numFiles)
	results := make(chan error, numFiles)

	for w := 0; w < maxWorkers; w++ {
		go func() {
			for fp := range jobs {
				results <- saveEntry(ctx, eng, fp)
			}
		}()
	}

	for _, fp := range filePaths {
		jobs <- fp
	}
	close(jobs)

	successCount, errorCount := 0, 0
	for i := 0; i < numFiles; i++ {
		if err := <-results; err != nil {
			red.Printf("error: %v\n", err)
			errorCount++
		} else {
			successCount++
		}
	}

	fmt.Printf("\nprocessed %d files: %d successful, %d failed\n", numFiles, successCount, errorCount)
}

func saveEntry(ctx context.Context, eng *engine.Engine, filePath string) error {
	title := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	artist := "unknown"

	result, err := eng.Ingest(ctx, filePath, models.Song{Title: title, Artist: artist})
	if err != nil {
		if apperr.Is(err, apperr.KindDuplicatePath) {
			fmt.Printf("skipping '%s': already indexed\n", filePath)
			return nil
		}
		return fmt.Errorf("failed to process '%s': %v", filePath, err)
	}

	fmt.Printf("indexed '%s' by '%s' (id=%d, %d fingerprints)\n", title, artist, result.SongID, result.Fingerprints)
	return nil
}
