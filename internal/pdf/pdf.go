// Package pdf extracts page text and document metadata from PDF files.
package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lpdf "github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for paths without a .pdf extension.
var ErrNotPDF = errors.New("not a PDF file")

// PageRangeError is returned when a page number falls outside a document.
type PageRangeError struct {
	Page  int
	Total int
}

func (e *PageRangeError) Error() string {
	return fmt.Sprintf("page %d is out of range. PDF has %d pages", e.Page, e.Total)
}

// Info describes a PDF file and its document metadata.
type Info struct {
	Filename         string    `json:"filename"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Subject          string    `json:"subject,omitempty"`
	Creator          string    `json:"creator,omitempty"`
	Producer         string    `json:"producer,omitempty"`
	CreationDate     string    `json:"creation_date,omitempty"`
	ModificationDate string    `json:"modification_date,omitempty"`
	NumPages         int       `json:"num_pages"`
	FileSize         int64     `json:"file_size"`
	ModifiedAt       time.Time `json:"modified_date"`
	Error            string    `json:"error,omitempty"`
}

// Document is an open PDF. It is not safe for concurrent use.
type Document struct {
	f *os.File
	r *lpdf.Reader
}

// Open opens the PDF at path.
func Open(path string) (*Document, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%s: %w", path, ErrNotPDF)
	}
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Document{f: f, r: r}, nil
}

// Close closes the underlying file.
func (d *Document) Close() error {
	return d.f.Close()
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return d.r.NumPage()
}

// PageText returns the plain text of the 1-based page n. Pages with no text
// layer return "".
func (d *Document) PageText(n int) (text string, err error) {
	total := d.r.NumPage()
	if n < 1 || n > total {
		return "", &PageRangeError{Page: n, Total: total}
	}
	// The parser panics on malformed page trees.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extracting page %d: %v", n, r)
		}
	}()
	p := d.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extracting page %d: %w", n, err)
	}
	return text, nil
}

// metadata reads a string entry from the trailer's Info dictionary.
func (d *Document) metadata(key string) string {
	return strings.TrimSpace(d.r.Trailer().Key("Info").Key(key).Text())
}

// ReadInfo reads file and document metadata for the PDF at path. Missing
// titles fall back to the file stem and missing authors to "Unknown".
func ReadInfo(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Filename:   st.Name(),
		Title:      stem(st.Name()),
		Author:     "Unknown",
		FileSize:   st.Size(),
		ModifiedAt: st.ModTime().UTC(),
	}

	d, err := Open(path)
	if err != nil {
		return info, err
	}
	defer d.Close()

	info.NumPages = d.NumPages()
	if v := d.metadata("Title"); v != "" {
		info.Title = v
	}
	if v := d.metadata("Author"); v != "" {
		info.Author = v
	}
	info.Subject = d.metadata("Subject")
	info.Creator = d.metadata("Creator")
	info.Producer = d.metadata("Producer")
	info.CreationDate = d.metadata("CreationDate")
	info.ModificationDate = d.metadata("ModDate")
	return info, nil
}

// PageText opens path and extracts one page.
func PageText(path string, n int) (string, error) {
	d, err := Open(path)
	if err != nil {
		return "", err
	}
	defer d.Close()
	return d.PageText(n)
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
