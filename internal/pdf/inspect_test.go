package pdf

import (
	"bytes"
	"fmt"
	"testing"
)

// buildTestPDF はページ数 pages の最小構成の PDF を組み立てます。
func buildTestPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestInspectCountsPages(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "three.pdf", buildTestPDF(3))

	meta, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if meta.Name != "three.pdf" || meta.Pages != 3 || meta.Size == 0 {
		t.Fatalf("unexpected meta: %#v", meta)
	}
}

func TestInspectNonPDF(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "scan.png", pngHeader)
	meta, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if meta.Pages != 0 || meta.Size != int64(len(pngHeader)) {
		t.Fatalf("unexpected meta: %#v", meta)
	}
}

func TestInspectBrokenPDF(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "broken.pdf", []byte("%PDF-1.4\nnot really a pdf\n"))
	meta, err := Inspect(path)
	if err == nil {
		t.Fatal("expected error for broken pdf")
	}
	if meta == nil || meta.Name != "broken.pdf" {
		t.Fatalf("meta should still describe the file: %#v", meta)
	}
}

func TestInspectSelectionFallsBack(t *testing.T) {
	sel := NewSelection(0)
	_, _ = sel.AddFiles(File{Name: "ghost.pdf", Size: 42})
	metas := InspectSelection(sel)
	if len(metas) != 1 || metas[0].Name != "ghost.pdf" || metas[0].Size != 42 {
		t.Fatalf("unexpected metas: %#v", metas)
	}
}
