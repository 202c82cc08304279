package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"vecsearch/internal/adapter/blob"
	"vecsearch/internal/adapter/store"
	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

func main() {
	rows := flag.Int("rows", 10000, "Number of rows to insert")
	dim := flag.Int("dim", 384, "Embedding dimension")
	batch := flag.Int("batch", 500, "Rows per upsert")
	queries := flag.Int("queries", 200, "Number of searches")
	topK := flag.Int("k", 10, "Results per search")
	dir := flag.String("dir", "", "Store artifacts in this directory (default in memory)")
	compression := flag.String("compression", "zstd", "Artifact compression: zstd or none")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	if *rows <= 0 || *dim <= 0 || *batch <= 0 {
		fmt.Println("Usage: go run ./cmd/benchmark -rows 10000 -dim 384 [-dir ./bench]")
		os.Exit(1)
	}

	var blobs port.BlobStore = blob.NewMemory()
	if *dir != "" {
		fs, err := blob.NewFS(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", *dir, err)
			os.Exit(1)
		}
		blobs = fs
	}
	defer blobs.Close()

	persist, err := store.NewPersistence(blobs, store.PersistenceOptions{
		Compression: store.Compression(*compression),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer persist.Close()
	st := store.NewVectorStore(persist, store.Options{})

	ctx := context.Background()
	rng := rand.New(rand.NewPCG(*seed, *seed))
	const table = "bench"

	fmt.Println("VECTOR STORE BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Rows: %d  Dimension: %d  Batch: %d  Compression: %s\n\n", *rows, *dim, *batch, *compression)

	bar := progressbar.NewOptions(*rows,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Upserting[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	start := time.Now()
	for i := 0; i < *rows; i += *batch {
		n := min(*batch, *rows-i)
		batchRows := make([]domain.Row, n)
		for j := range batchRows {
			batchRows[j] = domain.Row{
				ID:        fmt.Sprintf("row-%d", i+j),
				Embedding: randomVector(rng, *dim),
				Metadata:  map[string]any{"n": i + j},
			}
		}
		if _, err := st.Upsert(ctx, table, batchRows); err != nil {
			fmt.Fprintf(os.Stderr, "\nUpsert error: %v\n", err)
			os.Exit(1)
		}
		bar.Add(n)
	}
	upsertTime := time.Since(start)
	fmt.Printf("Upsert: %s total, %.0f rows/s\n\n", upsertTime.Round(time.Millisecond), float64(*rows)/upsertTime.Seconds())

	latencies := make([]time.Duration, 0, *queries)
	for range *queries {
		q := randomVector(rng, *dim)
		t := time.Now()
		results, err := st.Search(ctx, table, q, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(t))
		if len(results) != min(*topK, *rows) {
			fmt.Fprintf(os.Stderr, "Search returned %d results, want %d\n", len(results), min(*topK, *rows))
			os.Exit(1)
		}
	}
	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Println("Search latency:")
		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
		fmt.Printf("  max: %s\n\n", latencies[len(latencies)-1])
	}

	// Reopen from the blobs alone to time a cold load.
	coldPersist, err := store.NewPersistence(blobs, store.PersistenceOptions{
		Compression: store.Compression(*compression),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer coldPersist.Close()
	t := time.Now()
	stats, err := store.NewVectorStore(coldPersist, store.Options{}).Stats(ctx, table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cold load: %s (%d rows, %d dimensions)\n", time.Since(t).Round(time.Microsecond), stats.Rows, stats.Dimension)
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx].Round(time.Microsecond)
}
