package pdf

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OperationType はバックエンドが報告する処理の種別です。
type OperationType string

const (
	OperationCompress         OperationType = "compress"
	OperationCompressToTarget OperationType = "compress_to_target"
	OperationMerge            OperationType = "merge"
	OperationSplit            OperationType = "split"
	OperationDelete           OperationType = "delete"
	OperationRotate           OperationType = "rotate"
	OperationReorder          OperationType = "reorder"
	OperationPDFToDOCX        OperationType = "pdf_to_docx"
	OperationPDFToImage       OperationType = "pdf_to_image"
	OperationOCR              OperationType = "ocr"
)

// ResultKind は成果物ファイルの種別を表します。
type ResultKind string

const (
	ResultKindPDF   ResultKind = "pdf"
	ResultKindZIP   ResultKind = "zip"
	ResultKindDOCX  ResultKind = "docx"
	ResultKindImage ResultKind = "image"
	ResultKindOther ResultKind = "other"
)

// DownloadLabel は成果物のダウンロード表示名を返します。
func DownloadLabel(operation OperationType, outputFile string) string {
	if strings.HasSuffix(strings.ToLower(outputFile), ".docx") {
		return "Download Converted DOCX"
	}
	switch operation {
	case OperationMerge:
		return "Download Merged PDF"
	case OperationSplit:
		return "Download Extracted PDF"
	case OperationDelete:
		return "Download Updated PDF"
	case OperationCompress, OperationCompressToTarget:
		return "Download Compressed PDF"
	case OperationPDFToDOCX:
		return "Download Converted DOCX"
	}
	return "Download Result"
}

// KindForFilename は拡張子から成果物の種別を推定します。
func KindForFilename(name string) ResultKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ResultKindPDF
	case ".zip":
		return ResultKindZIP
	case ".docx":
		return ResultKindDOCX
	case ".png", ".jpg", ".jpeg":
		return ResultKindImage
	}
	return ResultKindOther
}

// DetectKind はダウンロード済みファイルの中身から成果物の種別を判定します。
func DetectKind(path string) (ResultKind, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ResultKindOther, err
	}
	switch {
	case mtype.Is("application/pdf"):
		return ResultKindPDF, nil
	case mtype.Is(docxMIME):
		return ResultKindDOCX, nil
	case mtype.Is("application/zip"):
		return ResultKindZIP, nil
	case strings.HasPrefix(mtype.String(), "image/"):
		return ResultKindImage, nil
	}
	return ResultKindOther, nil
}
