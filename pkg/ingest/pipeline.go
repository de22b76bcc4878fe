// Package ingest builds a knowledge base snapshot from the crawled site and
// the supplementary documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/fetcher"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/loader"
	"github.com/perbu/ragchat/pkg/observability"
	"golang.org/x/time/rate"
)

// ErrNoChunks means the run produced nothing worth saving.
var ErrNoChunks = errors.New("no chunks collected")

// PageFetcher retrieves one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Page, error)
}

// Sources lists what goes into the knowledge base.
type Sources struct {
	BaseURL          string
	Pages            []string // paths joined onto BaseURL
	Documents        []loader.Document
	SupplementaryDir string // optional
}

// Report summarizes a run.
type Report struct {
	PagesAttempted int
	PagesSucceeded int
	PagesFailed    int
	Chunks         int
	Sources        int // distinct source URLs
	Duration       time.Duration
}

// Options configures a Pipeline.
type Options struct {
	Fetcher   PageFetcher
	Chunker   *loader.Chunker
	Embedder  embedder.Embedder
	Limiter   *rate.Limiter // nil means no delay between pages
	BatchSize int
	Logger    observability.Logger
	Metrics   *observability.Metrics
}

// Pipeline runs one ingestion. It is single threaded.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	return &Pipeline{opts: opts}
}

type collected struct {
	chunks   []string
	metadata []knowledge.ChunkMetadata
}

func (c *collected) add(text string, meta knowledge.ChunkMetadata) {
	c.chunks = append(c.chunks, text)
	c.metadata = append(c.metadata, meta)
}

// Run fetches, chunks and embeds everything in src. A failed page is logged
// and skipped. Cancelling ctx aborts the run.
func (p *Pipeline) Run(ctx context.Context, src Sources) (*knowledge.Snapshot, Report, error) {
	start := time.Now()
	var report Report
	var c collected

	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, report, fmt.Errorf("parsing base url: %w", err)
	}
	siteTag := base.Hostname()

	err = p.crawl(ctx, base, src.Pages, &report, func(pageURL string, page fetcher.Page) {
		added := 0
		for chunk := range p.opts.Chunker.Split(page.Body) {
			c.add(chunk, knowledge.ChunkMetadata{
				SourceURL:  pageURL,
				Title:      page.Title,
				ChunkIndex: added,
				OriginTag:  siteTag,
			})
			added++
		}
		p.opts.Logger.Info("Added chunks", map[string]interface{}{"url": pageURL, "chunks": added})
	})
	if err != nil {
		return nil, report, err
	}

	for _, doc := range src.Documents {
		c.add(doc.Content, knowledge.ChunkMetadata{
			SourceURL: doc.URL,
			Title:     doc.Title,
			OriginTag: doc.OriginTag,
		})
	}

	if src.SupplementaryDir != "" {
		docs, err := loader.LoadDirectory(src.SupplementaryDir)
		if err != nil {
			return nil, report, fmt.Errorf("loading supplementary documents: %w", err)
		}
		for _, doc := range docs {
			added := 0
			for chunk := range p.opts.Chunker.Split(doc.Content) {
				c.add(chunk, knowledge.ChunkMetadata{
					SourceURL:  doc.URL,
					Title:      doc.Title,
					ChunkIndex: added,
					OriginTag:  doc.OriginTag,
				})
				added++
			}
			p.opts.Logger.Info("Added document", map[string]interface{}{"source": doc.URL, "chunks": added})
		}
	}

	if len(c.chunks) == 0 {
		return nil, report, ErrNoChunks
	}
	p.opts.Metrics.ChunksCreated.Add(float64(len(c.chunks)))

	embeddings, err := p.embed(ctx, c.chunks)
	if err != nil {
		return nil, report, err
	}

	snap := &knowledge.Snapshot{
		Chunks:     c.chunks,
		Embeddings: embeddings,
		Metadata:   c.metadata,
		ModelInfo:  p.opts.Embedder.ModelInfo(),
		Dimension:  len(embeddings[0]),
		CreatedAt:  time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		return nil, report, err
	}

	sources := make(map[string]struct{})
	for _, m := range c.metadata {
		sources[m.SourceURL] = struct{}{}
	}
	report.Chunks = len(c.chunks)
	report.Sources = len(sources)
	report.Duration = time.Since(start)
	return snap, report, nil
}

// crawl fetches each page in turn, waiting on the limiter before every
// request, and hands successful pages to visit.
func (p *Pipeline) crawl(ctx context.Context, base *url.URL, pages []string, report *Report,
	visit func(pageURL string, page fetcher.Page)) error {
	for _, path := range pages {
		if p.opts.Limiter != nil {
			if err := p.opts.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL, err := resolve(base, path)
		if err != nil {
			report.PagesAttempted++
			report.PagesFailed++
			p.opts.Metrics.PagesFetched.WithLabelValues("failed").Inc()
			p.opts.Logger.Warn("Skipping invalid page path", map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}

		report.PagesAttempted++
		p.opts.Logger.Info("Scraping page", map[string]interface{}{"url": pageURL})

		page, err := p.opts.Fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.PagesFailed++
			p.opts.Metrics.PagesFetched.WithLabelValues("failed").Inc()
			p.opts.Logger.Warn("Error scraping page", map[string]interface{}{"url": pageURL, "error": err.Error()})
			continue
		}
		report.PagesSucceeded++
		p.opts.Metrics.PagesFetched.WithLabelValues("ok").Inc()
		visit(pageURL, page)
	}
	return nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(chunks))
		vecs, err := p.opts.Embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), end-start)
		}
		out = append(out, vecs...)
		p.opts.Logger.Info("Embedding progress", map[string]interface{}{
			"done":  len(out),
			"total": len(chunks),
		})
	}
	return out, nil
}

func resolve(base *url.URL, path string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
