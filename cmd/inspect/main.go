package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/perbu/ragchat/pkg/config"
	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/knowledge"
)

func main() {
	// Load .env file if it exists (for API key)
	_ = godotenv.Load()

	configFile := flag.String("config", "", "path to config file")
	snapshotPath := flag.String("snapshot", "", "snapshot to inspect (default from config)")
	top := flag.Int("top", 5, "number of results to return")
	threshold := flag.Float64("threshold", float64(knowledge.DefaultMinScore), "minimum similarity score")
	show := flag.Int("show", 3, "number of chunks to print in the overview")
	full := flag.Bool("full", false, "show full content of results")
	contextSize := flag.Int("context", 0, "number of surrounding chunks to show for context")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	path := *snapshotPath
	if path == "" {
		path = cfg.Snapshot.Path
	}

	snap, err := knowledge.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshot: %v\n", err)
		os.Exit(1)
	}

	printOverview(path, snap, *show)

	// Get query string
	args := flag.Args()
	if len(args) == 0 {
		return
	}
	query := strings.Join(args, " ")

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing embedder: %v\n", err)
		os.Exit(1)
	}

	kb, err := knowledge.New(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading knowledge base: %v\n", err)
		os.Exit(1)
	}
	if err := kb.CheckModel(emb.ModelInfo()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	vecs, err := emb.Embed(context.Background(), []string{query})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error embedding query: %v\n", err)
		os.Exit(1)
	}

	results, err := kb.Search(vecs[0], *top, float32(*threshold))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nQuery: %q\n", query)
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. Score: %.3f | %s", r.Rank, r.Score, r.Metadata.SourceURL)
		if r.Metadata.Title != "" {
			fmt.Printf(" [%s]", r.Metadata.Title)
		}
		fmt.Println()

		if !*full && *contextSize == 0 {
			continue
		}
		fmt.Println()

		if *contextSize > 0 {
			for _, j := range snap.Neighbours(r.Index, *contextSize) {
				if j == r.Index {
					fmt.Printf(">>> MATCHED CHUNK <<<\n")
				}
				fmt.Printf("%s\n\n", snap.Chunks[j])
			}
		} else {
			fmt.Printf("%s\n", r.Content)
		}

		if i < len(results)-1 {
			fmt.Println("\n" + strings.Repeat("-", 80) + "\n")
		}
	}
}

func printOverview(path string, snap *knowledge.Snapshot, show int) {
	sum := snap.Summarize()

	fmt.Printf("Snapshot: %s", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Printf(" (%.2f MB)", float64(info.Size())/(1024*1024))
	}
	fmt.Println()
	fmt.Printf("Created:  %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Model:    %s (dim=%d)\n", sum.ModelInfo, sum.Dimension)
	fmt.Printf("Chunks:   %d from %d sources, average %.0f characters\n", sum.Chunks, sum.Sources, sum.AvgChunkChars)

	origins := make([]string, 0, len(sum.ByOrigin))
	for o := range sum.ByOrigin {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	for _, o := range origins {
		fmt.Printf("  %-20s %d\n", o, sum.ByOrigin[o])
	}

	for i := 0; i < show && i < len(snap.Chunks); i++ {
		m := snap.Metadata[i]
		fmt.Printf("\n[%d] %s #%d (%s)\n", i, m.SourceURL, m.ChunkIndex, m.Title)
		fmt.Printf("%s\n", preview(snap.Chunks[i], 200))
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
