package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// SourceFileMeta は選択されたファイルの基本メタデータです。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// Inspect はファイルのサイズと、PDF の場合はページ数を返します。
func Inspect(path string) (*SourceFileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	meta := &SourceFileMeta{
		Name: filepath.Base(path),
		Size: info.Size(),
	}
	if CategoryOf(meta.Name) != CategoryPDF {
		return meta, nil
	}
	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return meta, newError("UNSUPPORTED_PDF", fmt.Sprintf("Could not read %s.", meta.Name), err)
	}
	meta.Pages = pages
	return meta, nil
}

// InspectSelection は選択中の全ファイルを調べます。読めない PDF はページ数 0 として扱います。
func InspectSelection(s *Selection) []SourceFileMeta {
	files := s.Files()
	out := make([]SourceFileMeta, 0, len(files))
	for _, f := range files {
		meta, _ := Inspect(f.Path)
		if meta == nil {
			meta = &SourceFileMeta{Name: f.Name, Size: f.Size}
		}
		out = append(out, *meta)
	}
	return out
}
