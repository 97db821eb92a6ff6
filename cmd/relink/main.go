/*
main.go - Orphan-relink maintenance CLI

PURPOSE:
  One-shot command-line tool that runs the same orphan-validation repair
  sweep as the server's background scheduler. Useful after imports,
  migrations, or incidents that left validation links dangling.

COMMAND-LINE FLAGS:
  -db      SQLite database path (default: presence.db, env DB_PATH)
  -window  Candidate window around the validation timestamp (default: 2h)
  -limit   Max orphans per sweep (default: 500)
  -loop    Repeat sweeps until a sweep relinks nothing

EXIT CODES:
  0  sweep completed (unresolved orphans are reported, not fatal)
  1  storage or sweep failure

EXAMPLES:
  ./relink -db="./data/presence.db"
  ./relink -db="./data/presence.db" -window=6h -loop
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/ccrb/presence-engine/presence"
	"github.com/ccrb/presence-engine/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envStr("DB_PATH", "presence.db"), "SQLite database path")
	window := flag.Duration("window", presence.DefaultRelinkWindow, "candidate window around the validation timestamp")
	limit := flag.Int("limit", presence.DefaultRelinkLimit, "max orphans per sweep")
	loop := flag.Bool("loop", false, "repeat sweeps until nothing relinks")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	linker := presence.NewLinker(store)
	opts := presence.RelinkOptions{Window: *window, Limit: *limit}
	ctx := context.Background()

	sweeps := 0
	totalRelinked := 0
	for {
		summary, err := linker.RelinkOrphans(ctx, opts)
		if err != nil {
			log.Fatalf("Relink sweep failed: %v", err)
		}
		sweeps++
		totalRelinked += summary.Relinked
		fmt.Printf("sweep %d: scanned=%d relinked=%d unresolved=%d\n",
			sweeps, summary.Scanned, summary.Relinked, summary.Unresolved)
		for _, id := range summary.UnresolvedIDs {
			fmt.Printf("  unresolved validation: %s\n", id)
		}
		if !*loop || summary.Relinked == 0 {
			break
		}
	}
	fmt.Printf("done: %d sweep(s), %d relinked\n", sweeps, totalRelinked)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
