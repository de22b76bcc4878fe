package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/perbu/ragchat/pkg/config"
	"github.com/perbu/ragchat/pkg/fetcher"
	"github.com/perbu/ragchat/pkg/ingest"
	"github.com/perbu/ragchat/pkg/observability"
	"golang.org/x/time/rate"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configFile := flag.String("config", "", "path to config file")
	out := flag.String("out", "data/page_text_extraction.txt", "file for the full page texts (empty to skip)")
	page := flag.String("page", "", "show the full text of this one page path instead of surveying all pages")
	previewLen := flag.Int("preview", 200, "number of characters to preview per page")
	flag.Parse()

	if err := run(*configFile, *out, *page, *previewLen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, out, page string, previewLen int) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger("extract", cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := ingest.New(ingest.Options{
		Fetcher: fetcher.New(fetcher.Config{
			UserAgent:  cfg.Crawler.UserAgent,
			Timeout:    cfg.Crawler.Timeout,
			MaxRetries: cfg.Crawler.MaxRetries,
		}, logger.WithPrefix("fetcher")),
		Limiter: rate.NewLimiter(rate.Limit(cfg.Crawler.RatePerSecond), 1),
		Logger:  logger,
	})

	pages := cfg.Crawler.Pages
	if page != "" {
		pages = []string{page}
	}

	stats, report, err := pipeline.Survey(ctx, ingest.Sources{
		BaseURL: cfg.Crawler.BaseURL,
		Pages:   pages,
	})
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return fmt.Errorf("no content extracted from %d pages", report.PagesAttempted)
	}

	if page != "" {
		s := stats[0]
		fmt.Printf("Content from: %s\nTitle: %s\nStats: %d chars, %d words\n", s.URL, s.Title, s.Chars, s.Words)
		fmt.Printf("%s\n%s\n%s\n", strings.Repeat("-", 50), s.Text, strings.Repeat("-", 50))
		return nil
	}

	totalChars, totalWords := 0, 0
	for _, s := range stats {
		totalChars += s.Chars
		totalWords += s.Words
	}
	fmt.Printf("Extracted %d of %d pages: %d characters, %d words\n\n",
		len(stats), report.PagesAttempted, totalChars, totalWords)

	for i, s := range stats {
		fmt.Printf("[%d] %s\n", i+1, s.URL)
		fmt.Printf("    Title: %s\n", s.Title)
		fmt.Printf("    Stats: %d chars, %d words\n", s.Chars, s.Words)
		fmt.Printf("    Preview: %s\n\n", preview(s.Text, previewLen))
	}

	if out == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if err := ingest.WriteSurvey(f, stats); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", out, err)
	}
	fmt.Printf("Full text saved to %s\n", out)
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
