package pdf

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf/pdftest"
)

func TestPageText(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "book.pdf", pdftest.Doc{
		Pages: []string{"Monads compose effects", "", "Functors map values"},
	})

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if d.NumPages() != 3 {
		t.Fatalf("NumPages = %d, want 3", d.NumPages())
	}

	text, err := d.PageText(1)
	if err != nil {
		t.Fatalf("PageText(1): %v", err)
	}
	if !strings.Contains(text, "Monads compose effects") {
		t.Errorf("page 1 text = %q", text)
	}

	text, err = d.PageText(2)
	if err != nil {
		t.Fatalf("PageText(2): %v", err)
	}
	if strings.TrimSpace(text) != "" {
		t.Errorf("page 2 text = %q, want empty", text)
	}

	text, err = PageText(path, 3)
	if err != nil {
		t.Fatalf("PageText(3): %v", err)
	}
	if !strings.Contains(text, "Functors map values") {
		t.Errorf("page 3 text = %q", text)
	}
}

func TestPageText_OutOfRange(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "a.pdf", pdftest.Doc{Pages: []string{"one"}})

	for _, n := range []int{0, 2} {
		_, err := PageText(path, n)
		var rerr *PageRangeError
		if !errors.As(err, &rerr) {
			t.Fatalf("PageText(%d) err = %v, want PageRangeError", n, err)
		}
		if rerr.Total != 1 || rerr.Page != n {
			t.Errorf("PageRangeError = %+v", rerr)
		}
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("hi"), 0o644)

	if _, err := Open(txt); !errors.Is(err, ErrNotPDF) {
		t.Errorf("Open(txt) err = %v, want ErrNotPDF", err)
	}
	if _, err := Open(filepath.Join(dir, "missing.pdf")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) err = %v, want fs.ErrNotExist", err)
	}
}

func TestReadInfo(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "category-theory.pdf", pdftest.Doc{
		Title:  "Category Theory",
		Author: "A. Author",
		Pages:  []string{"one", "two"},
	})

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.Filename != "category-theory.pdf" || info.Title != "Category Theory" || info.Author != "A. Author" {
		t.Errorf("info = %+v", info)
	}
	if info.NumPages != 2 {
		t.Errorf("NumPages = %d, want 2", info.NumPages)
	}
	if info.FileSize == 0 || info.ModifiedAt.IsZero() {
		t.Errorf("missing file stats: %+v", info)
	}
}

func TestReadInfo_Defaults(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "untitled.pdf", pdftest.Doc{Pages: []string{"x"}})

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.Title != "untitled" || info.Author != "Unknown" {
		t.Errorf("Title, Author = %q, %q; want untitled, Unknown", info.Title, info.Author)
	}
}
