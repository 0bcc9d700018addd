package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"sonarid/engine"
)

// Exit codes follow spec.md §6's CLI surface: 0 success (and match found
// for `find`), 1 success but no match (`find` only), 2 user error
// (bad arguments), 3 internal error.
func main() {
	cfg := engine.LoadConfig()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Printf("failed to start engine: %v", err)
		os.Exit(3)
	}
	defer eng.Close()

	switch os.Args[1] {
	case "find":
		if len(os.Args) < 3 {
			fmt.Println("usage: sonarid find <path_to_audio_file>")
			os.Exit(2)
		}
		os.Exit(find(ctx, eng, os.Args[2]))

	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveCmd.String("p", "5000", "port to use")
		serveCmd.Parse(os.Args[2:])
		serve(ctx, eng, cfg, *port)

	case "remove":
		if len(os.Args) < 3 {
			fmt.Println("usage: sonarid remove <song_id>")
			os.Exit(2)
		}
		removeCmd(ctx, eng, os.Args[2])

	case "list":
		listCmd(ctx, eng)

	case "stats":
		statsCmd(ctx, eng)

	case "save":
		saveCmd := flag.NewFlagSet("save", flag.ExitOnError)
		saveCmd.Parse(os.Args[2:])
		if saveCmd.NArg() < 1 {
			fmt.Println("usage: sonarid save <path_to_file_or_dir>")
			os.Exit(2)
		}
		save(ctx, eng, saveCmd.Arg(0))

	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println("usage: sonarid <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  find   <audio_file>             identify a clip against the index")
	fmt.Println("  save   <file_or_dir>            ingest audio file(s) into the index")
	fmt.Println("  remove <song_id>                 delete a song and its postings")
	fmt.Println("  list                              list indexed songs")
	fmt.Println("  stats                             print index statistics")
	fmt.Println("  serve  [-p 5000]                 start the HTTP server")
}

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)
