package ingest

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/perbu/ragchat/pkg/fetcher"
)

// PageStats describes the text extracted from one page.
type PageStats struct {
	URL   string
	Title string
	Text  string
	Chars int
	Words int
}

// Survey fetches the pages in src and reports what text each one yields,
// without chunking or embedding anything. Pages are returned with the most
// text first. Failed pages are counted in the Report and left out.
func (p *Pipeline) Survey(ctx context.Context, src Sources) ([]PageStats, Report, error) {
	start := time.Now()
	var report Report

	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, report, fmt.Errorf("parsing base url: %w", err)
	}

	var stats []PageStats
	err = p.crawl(ctx, base, src.Pages, &report, func(pageURL string, page fetcher.Page) {
		stats = append(stats, PageStats{
			URL:   pageURL,
			Title: page.Title,
			Text:  page.Body,
			Chars: utf8.RuneCountInString(page.Body),
			Words: len(strings.Fields(page.Body)),
		})
	})
	if err != nil {
		return nil, report, err
	}

	slices.SortStableFunc(stats, func(a, b PageStats) int {
		return cmp.Compare(b.Chars, a.Chars)
	})

	report.Sources = len(stats)
	report.Duration = time.Since(start)
	return stats, report, nil
}

// WriteSurvey writes the full text of every page in stats to w.
func WriteSurvey(w io.Writer, stats []PageStats) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("=", 50)

	fmt.Fprintf(bw, "Page Text Extraction Results\n%s\n\n", rule)
	for i, s := range stats {
		fmt.Fprintf(bw, "[%d] %s\n", i+1, s.URL)
		fmt.Fprintf(bw, "Title: %s\n", s.Title)
		fmt.Fprintf(bw, "Characters: %d\n", s.Chars)
		fmt.Fprintf(bw, "Words: %d\n", s.Words)
		fmt.Fprintf(bw, "%s\n%s\n\n%s\n\n", strings.Repeat("-", 50), s.Text, rule)
	}
	return bw.Flush()
}
