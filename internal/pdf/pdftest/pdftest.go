// Package pdftest writes small text-layer PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Doc describes a generated PDF. Each entry in Pages becomes one page showing
// that text in Helvetica; an empty entry yields a page with no text.
type Doc struct {
	Title  string
	Author string
	Pages  []string
}

// Write renders doc to dir/name and returns the path.
func Write(t testing.TB, dir, name string, doc Doc) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Render(doc), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Render builds the PDF bytes for doc.
func Render(doc Doc) []byte {
	// Object layout: 1 catalog, 2 page tree, 3 font, 4 info, then a
	// page and content stream pair per page.
	n := len(doc.Pages)
	objs := make([]string, 4+2*n)

	kids := make([]string, n)
	for i := range doc.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}
	objs[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)
	objs[2] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

	var info []string
	if doc.Title != "" {
		info = append(info, "/Title "+literal(doc.Title))
	}
	if doc.Author != "" {
		info = append(info, "/Author "+literal(doc.Author))
	}
	objs[3] = "<< " + strings.Join(info, " ") + " >>"

	for i, text := range doc.Pages {
		pageNum, contentNum := 5+2*i, 6+2*i
		objs[pageNum-1] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentNum)
		var content string
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 712 Td %s Tj ET", literal(text))
		}
		objs[contentNum-1] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return "(" + r.Replace(s) + ")"
}
