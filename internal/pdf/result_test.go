package pdf

import (
	"path/filepath"
	"testing"
)

func TestDownloadLabel(t *testing.T) {
	cases := []struct {
		op   OperationType
		file string
		want string
	}{
		{OperationMerge, "merged.pdf", "Download Merged PDF"},
		{OperationSplit, "pages.pdf", "Download Extracted PDF"},
		{OperationDelete, "out.pdf", "Download Updated PDF"},
		{OperationCompress, "small.pdf", "Download Compressed PDF"},
		{OperationCompressToTarget, "small.pdf", "Download Compressed PDF"},
		{OperationPDFToDOCX, "out.bin", "Download Converted DOCX"},
		{OperationMerge, "Report.DOCX", "Download Converted DOCX"},
		{OperationRotate, "rotated.pdf", "Download Result"},
		{"", "", "Download Result"},
	}
	for _, tc := range cases {
		if got := DownloadLabel(tc.op, tc.file); got != tc.want {
			t.Fatalf("DownloadLabel(%q, %q) = %q, want %q", tc.op, tc.file, got, tc.want)
		}
	}
}

func TestKindForFilename(t *testing.T) {
	cases := map[string]ResultKind{
		"a.pdf":  ResultKindPDF,
		"a.zip":  ResultKindZIP,
		"a.docx": ResultKindDOCX,
		"a.PNG":  ResultKindImage,
		"a.txt":  ResultKindOther,
	}
	for name, want := range cases {
		if got := KindForFilename(name); got != want {
			t.Fatalf("KindForFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestDetectKind(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		path string
		want ResultKind
	}{
		{writeTestFile(t, dir, "out.bin", pdfHeader), ResultKindPDF},
		{writeTestFile(t, dir, "out.png", pngHeader), ResultKindImage},
		{writeTestFile(t, dir, "out.txt", []byte("plain text")), ResultKindOther},
	}
	for _, tc := range cases {
		got, err := DetectKind(tc.path)
		if err != nil {
			t.Fatalf("DetectKind(%s) returned error: %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("DetectKind(%s) = %q, want %q", filepath.Base(tc.path), got, tc.want)
		}
	}
	if _, err := DetectKind(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
