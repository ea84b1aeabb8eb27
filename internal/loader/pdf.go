package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// ExtractFunc returns the plain text of each page of the file at path.
type ExtractFunc func(path string) ([]string, error)

// Directory loads every file in a directory whose name matches Pattern.
// Matching is case-insensitive and does not descend into subdirectories.
type Directory struct {
	Pattern string
	Extract ExtractFunc
}

// NewPDFDirectory returns a loader for *.pdf files backed by ExtractPDF.
func NewPDFDirectory() *Directory {
	return &Directory{Pattern: "*.pdf", Extract: ExtractPDF}
}

func (d *Directory) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	pattern := strings.ToLower(d.Pattern)
	if pattern == "" {
		pattern = "*.pdf"
	}
	extract := d.Extract
	if extract == nil {
		extract = ExtractPDF
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, strings.ToLower(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", d.Pattern, err)
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	documents := make([]domain.Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		pages, err := extract(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		documents = append(documents, newDocument(path, pages))
	}
	return documents, nil
}

func newDocument(path string, pages []string) domain.Document {
	var b strings.Builder
	spans := make([]domain.PageSpan, 0, len(pages))
	offset := 0
	for i, text := range pages {
		if i > 0 {
			b.WriteByte('\n')
			offset++
		}
		spans = append(spans, domain.PageSpan{Number: i + 1, Start: offset})
		b.WriteString(text)
		offset += len([]rune(text))
	}
	return domain.Document{ID: hashString(path), Path: path, Content: b.String(), Pages: spans}
}

// ExtractPDF reads the plain text of every page. Pages without content yield
// an empty string so page numbers stay aligned.
func ExtractPDF(path string) (pages []string, err error) {
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	f, r, err := pdf.Open(path)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
