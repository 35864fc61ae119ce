package pdf

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFiles は一度に選択できるファイル数の上限です。
const DefaultMaxFiles = 25

const (
	bytesPerMB = 1024 * 1024

	networkWarningMB    = 60
	processingWarningMB = 50

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Category は選択ファイルの種類です。種類の異なるファイルは同時に選択できません。
type Category string

const (
	CategoryPDF         Category = "pdf"
	CategoryImage       Category = "image"
	CategoryDOCX        Category = "docx"
	CategoryUnsupported Category = "unsupported"
)

// CategoryOf は拡張子からファイルの種類を返します。
func CategoryOf(name string) Category {
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".") {
	case "pdf":
		return CategoryPDF
	case "png", "jpg", "jpeg":
		return CategoryImage
	case "docx":
		return CategoryDOCX
	}
	return CategoryUnsupported
}

// FileRef はアップロード済みファイルとの比較に使う (名前, サイズ) の組です。
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (r FileRef) key() string {
	return fmt.Sprintf("%s::%d", r.Name, r.Size)
}

// File は選択済みのファイルです。
type File struct {
	Path     string
	Name     string
	Size     int64
	Category Category
}

// Ref は File の (名前, サイズ) を返します。
func (f File) Ref() FileRef {
	return FileRef{Name: f.Name, Size: f.Size}
}

// AddResult は Add の結果です。
type AddResult struct {
	Added      int
	Duplicates int
	// Dropped は上限を超えたため追加されなかったファイル数です。
	Dropped int
}

// Warning はサイズに関する注意です。
type Warning struct {
	Code    string
	Message string
}

// Selection は処理対象として選択されたファイルの順序付き集合です。
type Selection struct {
	files    []File
	maxFiles int
	lastName string
}

// NewSelection は Selection を作成します。maxFiles が 0 以下なら DefaultMaxFiles を使います。
func NewSelection(maxFiles int) *Selection {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &Selection{maxFiles: maxFiles}
}

// Add はディスク上のファイルを選択に加えます。
// 拡張子と中身の両方を確認し、エラーの場合は選択を変更しません。
func (s *Selection) Add(paths ...string) (AddResult, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return AddResult{}, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			return AddResult{}, newError("INVALID_INPUT", fmt.Sprintf("%s is a directory", p), nil)
		}
		name := filepath.Base(p)
		category := CategoryOf(name)
		if category != CategoryUnsupported {
			sniffed, err := sniffCategory(p)
			if err != nil {
				return AddResult{}, err
			}
			if sniffed != category {
				category = CategoryUnsupported
			}
		}
		files = append(files, File{Path: p, Name: name, Size: info.Size(), Category: category})
	}
	return s.AddFiles(files...)
}

// AddFiles は既に情報の揃ったファイルを選択に加えます。Category が空なら拡張子から決めます。
func (s *Selection) AddFiles(incoming ...File) (AddResult, error) {
	for i := range incoming {
		if incoming[i].Category == "" {
			incoming[i].Category = CategoryOf(incoming[i].Name)
		}
		if incoming[i].Category == CategoryUnsupported {
			return AddResult{}, newError("UNSUPPORTED_TYPE",
				fmt.Sprintf("Unsupported file type: %s. Only PDF, images (PNG/JPG), and DOCX are supported.", incoming[i].Name),
				ErrUnsupportedType)
		}
	}

	categories := make(map[Category]struct{})
	for _, f := range s.files {
		categories[f.Category] = struct{}{}
	}
	for _, f := range incoming {
		categories[f.Category] = struct{}{}
	}
	if len(categories) > 1 {
		return AddResult{}, newError("MIXED_TYPES",
			"Please upload files of the same type. You can't mix PDFs, images, and DOCX together.",
			ErrMixedTypes)
	}

	seen := make(map[string]struct{}, len(s.files))
	for _, f := range s.files {
		seen[f.Ref().key()] = struct{}{}
	}

	var result AddResult
	room := s.maxFiles - len(s.files)
	for _, f := range incoming {
		key := f.Ref().key()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		if room <= 0 {
			result.Dropped++
			continue
		}
		seen[key] = struct{}{}
		s.files = append(s.files, f)
		s.lastName = f.Name
		room--
		result.Added++
	}
	return result, nil
}

// Remove は指定した名前のファイルを選択から外します。
func (s *Selection) Remove(name string) bool {
	for i, f := range s.files {
		if f.Name == name {
			s.files = append(s.files[:i], s.files[i+1:]...)
			if s.lastName == name {
				s.lastName = ""
				if n := len(s.files); n > 0 {
					s.lastName = s.files[n-1].Name
				}
			}
			return true
		}
	}
	return false
}

// Clear は選択を空にします。
func (s *Selection) Clear() {
	s.files = nil
	s.lastName = ""
}

// Len は選択中のファイル数です。
func (s *Selection) Len() int {
	return len(s.files)
}

// Files は選択中のファイルを選択順で返します。
func (s *Selection) Files() []File {
	out := make([]File, len(s.files))
	copy(out, s.files)
	return out
}

// Refs は選択中のファイルの (名前, サイズ) を選択順で返します。
func (s *Selection) Refs() []FileRef {
	refs := make([]FileRef, len(s.files))
	for i, f := range s.files {
		refs[i] = f.Ref()
	}
	return refs
}

// PrimaryName は最後に追加されたファイル名です。
func (s *Selection) PrimaryName() string {
	return s.lastName
}

// Category は選択中のファイルの種類を返します。空なら "" です。
func (s *Selection) Category() Category {
	if len(s.files) == 0 {
		return ""
	}
	return s.files[0].Category
}

// TotalBytes は合計サイズです。
func (s *Selection) TotalBytes() int64 {
	var total int64
	for _, f := range s.files {
		total += f.Size
	}
	return total
}

// TotalMB は合計サイズを MB で返します。
func (s *Selection) TotalMB() float64 {
	return float64(s.TotalBytes()) / bytesPerMB
}

// Warnings は大きなアップロードに対する注意を返します。
func (s *Selection) Warnings() []Warning {
	total := s.TotalMB()
	var maxFile float64
	for _, f := range s.files {
		maxFile = math.Max(maxFile, float64(f.Size)/bytesPerMB)
	}
	switch {
	case total > networkWarningMB || maxFile > networkWarningMB:
		return []Warning{{
			Code:    "LARGE_UPLOAD_NETWORK",
			Message: fmt.Sprintf("Large upload (%dMB total): upload depends on your network speed.", int(math.Round(total))),
		}}
	case total > processingWarningMB:
		return []Warning{{
			Code:    "LARGE_UPLOAD_PROCESSING",
			Message: fmt.Sprintf("Large upload (%dMB total): expect longer processing time.", int(math.Round(total))),
		}}
	}
	return nil
}

func sniffCategory(path string) (Category, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return CategoryUnsupported, fmt.Errorf("detect %s: %w", path, err)
	}
	switch {
	case mtype.Is("application/pdf"):
		return CategoryPDF, nil
	case mtype.Is("image/png"), mtype.Is("image/jpeg"):
		return CategoryImage, nil
	case mtype.Is(docxMIME), mtype.Is("application/zip"):
		return CategoryDOCX, nil
	}
	return CategoryUnsupported, nil
}
