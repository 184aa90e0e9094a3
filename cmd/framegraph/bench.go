package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-framegraph/pkg/config"
	"github.com/dd0wney/cluso-framegraph/pkg/frame"
	"github.com/dd0wney/cluso-framegraph/pkg/graphdb"
	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

var benchTypes = []frame.TypeSpec{
	{Name: "Person", Label: "Person", Fields: []frame.FieldSpec{
		{Name: "name", Type: storage.TypeString},
		{Name: "age", Type: storage.TypeInt},
	}},
	{Name: "Group", Label: "Group", Fields: []frame.FieldSpec{{Name: "name", Type: storage.TypeString}}},
	{Name: "HasMember", Label: "HAS_MEMBER", Kind: storage.KindEdge},
}

var benchIndexes = []index.Definition{
	{Label: "Person", Properties: []string{"name"}, Unique: true},
	{Kind: storage.KindEdge, Label: "HAS_MEMBER", Properties: []string{storage.EdgeOutKey, storage.EdgeInKey}, Unique: true},
}

func runBench(ctx context.Context, base *config.Config, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	members := fs.Int("members", 2000, "Number of HAS_MEMBER edges to create")
	queries := fs.Int("queries", 10000, "Number of indexed lookups per reader")
	readers := fs.Int("readers", 4, "Number of concurrent readers")
	dir := fs.String("dir", "./data/bench", "Data directory, removed before the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := *base
	cfg.DataDir = *dir
	cfg.Checkpoint.Interval = 0
	cfg.Backup.Enabled = false
	cfg.Schema = config.SchemaConfig{Types: benchTypes, Indexes: benchIndexes}

	fmt.Printf("🔍 Framegraph Index Benchmark\n")
	fmt.Printf("=============================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Members: %s\n", humanize.Comma(int64(*members)))
	fmt.Printf("  Queries: %s x %d readers\n", humanize.Comma(int64(*queries)), *readers)
	fmt.Printf("  Journal: %s\n\n", cfg.Journal.Backend)

	if err := os.RemoveAll(cfg.DataDir); err != nil {
		return err
	}
	db, err := graphdb.Open(ctx, &cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	types := db.Types()

	fmt.Printf("📝 Creating group with %s members in one transaction...\n", humanize.Comma(int64(*members)))
	start := time.Now()
	err = db.Update(ctx, func(_ context.Context, tx *txn.Tx) error {
		group, err := types.AddVertex(tx, "Group", map[string]any{"name": "everyone"})
		if err != nil {
			return err
		}
		for i := 0; i < *members; i++ {
			p, err := types.AddVertex(tx, "Person", map[string]any{
				"name": memberName(i),
				"age":  18 + rand.Intn(70),
			})
			if err != nil {
				return err
			}
			if _, err := types.AddEdge(tx, "HasMember", group, p, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Committed in %v\n", time.Since(start))

	fmt.Printf("\n📊 Unique index lookups (%d concurrent readers)\n", *readers)
	var hits atomic.Int64
	start = time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < *readers; r++ {
		seed := int64(r)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			return db.View(gctx, func(_ context.Context, tx *txn.Tx) error {
				for i := 0; i < *queries; i++ {
					found, err := types.VerticesExplicit(tx, "Person.name", "Person", memberName(rng.Intn(*members)))
					if err != nil {
						return err
					}
					hits.Add(int64(len(found)))
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	duration := time.Since(start)
	total := *queries * *readers
	fmt.Printf("✅ %s lookups (%s hits) in %v\n", humanize.Comma(int64(total)), humanize.Comma(hits.Load()), duration)
	fmt.Printf("⚡ Average: %.2fµs per lookup\n", float64(duration.Microseconds())/float64(total))

	fmt.Printf("\n📊 Membership check through HAS_MEMBER.@out.@in\n")
	start = time.Now()
	err = db.View(ctx, func(_ context.Context, tx *txn.Tx) error {
		groups, err := types.All(tx, "Group")
		if err != nil {
			return err
		}
		if len(groups) != 1 {
			return fmt.Errorf("expected one group, found %d", len(groups))
		}
		groupID := groups[0].ID()
		for i := 0; i < *queries; i++ {
			person, err := types.VerticesExplicit(tx, "Person.name", "Person", memberName(rand.Intn(*members)))
			if err != nil || len(person) != 1 {
				return fmt.Errorf("member lookup: %v", err)
			}
			edges, err := tx.Lookup("HAS_MEMBER.@out.@in",
				storage.IDValue(groupID), storage.IDValue(person[0].ID()))
			if err != nil {
				return err
			}
			if len(edges) != 1 {
				return fmt.Errorf("expected one membership edge, found %d", len(edges))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	duration = time.Since(start)
	fmt.Printf("✅ %s checks in %v\n", humanize.Comma(int64(*queries)), duration)

	stats := db.Manager().Stats()
	fmt.Printf("\n📈 Seq %d, %s vertices, %s edges\n",
		stats.Seq, humanize.Comma(int64(stats.Graph.VertexCount)), humanize.Comma(int64(stats.Graph.EdgeCount)))
	return nil
}

func memberName(i int) string {
	return fmt.Sprintf("member-%06d", i)
}
