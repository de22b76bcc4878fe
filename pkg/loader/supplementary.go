package loader

import (
	_ "embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// OriginDocument tags chunks read from the supplementary directory.
const OriginDocument = "document"

// Document is a piece of text that did not come from crawling the site.
type Document struct {
	URL       string `yaml:"url"`
	Title     string `yaml:"title"`
	OriginTag string `yaml:"origin_tag"`
	Content   string `yaml:"content"`
}

type catalogue struct {
	Documents []Document `yaml:"documents"`
}

// Catalogue returns the built-in documents. Each one is meant to be stored as
// a single chunk.
func Catalogue() ([]Document, error) {
	return parseCatalogue(catalogueYAML)
}

func parseCatalogue(data []byte) ([]Document, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing document catalogue: %w", err)
	}
	for i := range c.Documents {
		c.Documents[i].Content = strings.TrimSpace(c.Documents[i].Content)
		if c.Documents[i].URL == "" || c.Documents[i].Content == "" {
			return nil, fmt.Errorf("catalogue entry %d is missing url or content", i)
		}
	}
	return c.Documents, nil
}

// LoadDirectory reads every .txt, .md and .pdf file below dir, sorted by
// path. Other files are ignored.
func LoadDirectory(dir string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		var content string
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			content = string(b)
		case ".pdf":
			content, err = readPDF(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
		default:
			return nil
		}

		if strings.TrimSpace(content) == "" {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			relPath = filepath.Base(path)
		}
		relPath = filepath.ToSlash(relPath)

		docs = append(docs, Document{
			URL:       "file://" + relPath,
			Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			OriginTag: OriginDocument,
			Content:   content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
	return docs, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(text)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
