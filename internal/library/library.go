// Package library serves the PDFs in a directory: listing, metadata, and
// cached page text.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

// ErrNotFound is returned for documents that are not in the library.
var ErrNotFound = errors.New("document not found")

// extractLimit bounds concurrent PDF parsing.
const extractLimit = 4

// PageCache stores extracted page text.
type PageCache interface {
	GetPageText(documentRef string, page int) (storage.PageText, error)
	SavePageText(pt storage.PageText) error
}

// Library is a directory of PDFs.
type Library struct {
	dir    string
	cache  PageCache
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithCache reads and fills page text through c.
func WithCache(c PageCache) Option {
	return func(l *Library) { l.cache = c }
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Library) { l.logger = lg }
}

// New returns a library rooted at dir.
func New(dir string, opts ...Option) *Library {
	l := &Library{dir: dir, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// Path resolves filename to a PDF inside the library directory.
func (l *Library) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || filename == ".." {
		return "", fmt.Errorf("%q: %w", filename, ErrNotFound)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", fmt.Errorf("%s: %w", filename, pdf.ErrNotPDF)
	}
	path := filepath.Join(l.dir, filename)
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
	}
	return path, nil
}

// List returns every PDF in the library, newest first. Unreadable files are
// listed with Error set and no page count.
func (l *Library) List(ctx context.Context) ([]pdf.Info, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []pdf.Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading library: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}

	infos := make([]pdf.Info, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(extractLimit)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := pdf.ReadInfo(filepath.Join(l.dir, name))
			if err != nil {
				l.logger.Warn("reading pdf info", "document", name, "error", err)
				info.Filename = name
				info.NumPages = 0
				info.Error = fmt.Sprintf("Could not read PDF: %v", err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})
	return infos, nil
}

// Info returns metadata for one document.
func (l *Library) Info(filename string) (pdf.Info, error) {
	path, err := l.Path(filename)
	if err != nil {
		return pdf.Info{}, err
	}
	return pdf.ReadInfo(path)
}

// PageText returns the text of one page, from the cache when it is newer
// than the file.
func (l *Library) PageText(filename string, page int) (string, error) {
	path, err := l.Path(filename)
	if err != nil {
		return "", err
	}

	if l.cache != nil {
		if pt, err := l.cache.GetPageText(filename, page); err == nil {
			if st, serr := os.Stat(path); serr == nil && !st.ModTime().After(pt.ExtractedAt) {
				return pt.Text, nil
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("reading page text cache", "document", filename, "page", page, "error", err)
		}
	}

	text, err := pdf.PageText(path, page)
	if err != nil {
		return "", err
	}
	l.store(filename, page, text)
	return text, nil
}

func (l *Library) store(filename string, page int, text string) {
	if l.cache == nil {
		return
	}
	pt := storage.PageText{DocumentRef: filename, PageNumber: page, Text: text, ExtractedAt: l.now()}
	if err := l.cache.SavePageText(pt); err != nil {
		l.logger.Warn("caching page text", "document", filename, "page", page, "error", err)
	}
}

// Warm extracts every page of filename into the cache and returns the page
// count. Pages that fail to extract are logged and skipped.
func (l *Library) Warm(ctx context.Context, filename string) (int, error) {
	path, err := l.Path(filename)
	if err != nil {
		return 0, err
	}
	d, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	total := d.NumPages()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		text, err := d.PageText(n)
		if err != nil {
			l.logger.Warn("extracting page", "document", filename, "page", n, "error", err)
			continue
		}
		l.store(filename, n, text)
	}
	return total, nil
}

// PageContext is the text of a page and its neighbours.
type PageContext struct {
	Filename    string            `json:"filename"`
	CurrentPage int               `json:"current_page"`
	Range       PageRange         `json:"context_range"`
	TotalPages  int               `json:"total_pages"`
	Text        map[string]string `json:"context_text"`
}

// PageRange is an inclusive span of pages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Context returns page ± n, clamped to the document. A page that fails to
// extract carries the error message in place of its text.
func (l *Library) Context(ctx context.Context, filename string, page, n int) (PageContext, error) {
	info, err := l.Info(filename)
	if err != nil {
		return PageContext{}, err
	}
	if n < 0 {
		n = 0
	}
	out := PageContext{
		Filename:    filename,
		CurrentPage: page,
		Range:       PageRange{Start: max(1, page-n), End: min(info.NumPages, page+n)},
		TotalPages:  info.NumPages,
		Text:        map[string]string{},
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(extractLimit)
	for p := out.Range.Start; p <= out.Range.End; p++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := l.PageText(filename, p)
			if err != nil {
				text = fmt.Sprintf("Error extracting page %d: %v", p, err)
			}
			mu.Lock()
			out.Text[strconv.Itoa(p)] = text
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PageContext{}, err
	}
	return out, nil
}
