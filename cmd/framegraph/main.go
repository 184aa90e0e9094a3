package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dd0wney/cluso-framegraph/pkg/config"
	"github.com/dd0wney/cluso-framegraph/pkg/graphdb"
	"github.com/dd0wney/cluso-framegraph/pkg/health"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: framegraph [-config file] <command> [flags]

Commands:
  stats        print counts for the latest committed version
  checkpoint   write a snapshot, truncate the journal and upload it if backups are enabled
  restore      download the latest uploaded checkpoint into the data directory
  health       run the store, checkpoint and backup checks and print JSON
  bench        load a membership graph and time indexed lookups
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "stats":
		err = runStats(ctx, cfg)
	case "checkpoint":
		err = runCheckpoint(ctx, cfg)
	case "restore":
		err = runRestore(ctx, cfg)
	case "health":
		err = runHealth(ctx, cfg)
	case "bench":
		err = runBench(ctx, cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runStats(ctx context.Context, cfg *config.Config) error {
	db, err := graphdb.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats := db.Manager().Stats()
	fmt.Printf("📊 Framegraph at %s\n", cfg.DataDir)
	fmt.Printf("  Seq:          %d\n", stats.Seq)
	fmt.Printf("  Vertices:     %s (%d labels)\n", humanize.Comma(int64(stats.Graph.VertexCount)), stats.Graph.VertexLabels)
	fmt.Printf("  Edges:        %s (%d labels)\n", humanize.Comma(int64(stats.Graph.EdgeCount)), stats.Graph.EdgeLabels)
	fmt.Printf("  Journal LSN:  %d\n", stats.JournalLSN)
	fmt.Printf("  Declarations: %d\n", len(stats.Schema))
	for _, idx := range stats.Indexes {
		unique := ""
		if idx.Unique {
			unique = " unique"
		}
		fmt.Printf("  - %s%s: %s entries\n", idx.Name, unique, humanize.Comma(int64(idx.Entries)))
	}
	return nil
}

func runCheckpoint(ctx context.Context, cfg *config.Config) error {
	db, err := graphdb.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	info, err := db.Checkpoint(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Checkpoint at seq %d: %s written to %s in %v\n",
		info.Seq, humanize.Bytes(uint64(info.Bytes)), info.Path, time.Since(start))
	return nil
}

func runRestore(ctx context.Context, cfg *config.Config) error {
	if _, err := os.Stat(cfg.SnapshotPath()); err == nil {
		return fmt.Errorf("%s already exists", cfg.SnapshotPath())
	}
	key, err := graphdb.Restore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Restored %s to %s\n", key, cfg.SnapshotPath())
	return nil
}

func runHealth(ctx context.Context, cfg *config.Config) error {
	db, err := graphdb.Open(ctx, cfg, graphdb.WithLogger(logging.NewNopLogger()))
	if err != nil {
		return err
	}
	defer db.Close()

	report := db.Health(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("status %s", report.Status)
	}
	return nil
}
