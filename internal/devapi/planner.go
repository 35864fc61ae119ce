package devapi

import (
	"regexp"
	"strings"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/pdf"
)

// Plan は1件のジョブがどう進んで何で終わるかを表します。
type Plan struct {
	// Polls は終端の応答を返すまでに返す途中経過の回数です。
	Polls int
	// Status は終端の状態です。空の場合は completed です。
	Status backend.Status
	Result backend.Result
	// SecondsPerPoll は estimated_remaining の計算に使います。0 の場合は推定値を返しません。
	SecondsPerPoll float64
	// Pages が空でなければ、成果物は最初の入力のこのページだけになります。
	Pages []pdf.PageRange
}

// Planner はプロンプトと保存済みの入力ファイルのパスからジョブの進み方を決めます。
type Planner interface {
	Plan(prompt string, files []string) Plan
}

// PlannerFunc は関数を Planner として使うためのアダプタです。
type PlannerFunc func(prompt string, files []string) Plan

// Plan は f(prompt, files) を呼びます。
func (f PlannerFunc) Plan(prompt string, files []string) Plan { return f(prompt, files) }

// Success は op で成功するプランを返します。
func Success(polls int, op pdf.OperationType, message string) Plan {
	return Plan{
		Polls:          polls,
		Status:         backend.StatusCompleted,
		Result:         backend.Result{Status: backend.ResultSuccess, Operation: string(op), Message: message},
		SecondsPerPoll: 1,
	}
}

// Clarify は確認質問で終わるプランを返します。
func Clarify(polls int, question string, options ...string) Plan {
	return Plan{
		Polls:  polls,
		Status: backend.StatusCompleted,
		Result: backend.Result{Status: "error", Message: question, Options: options},
	}
}

// Failure はサーバー側の失敗で終わるプランを返します。
func Failure(polls int, message string) Plan {
	return Plan{
		Polls:  polls,
		Status: backend.StatusFailed,
		Result: backend.Result{Status: "error", Message: message},
	}
}

var (
	digitsPattern    = regexp.MustCompile(`\d`)
	sizePattern      = regexp.MustCompile(`\d+\s*(mb|%)`)
	directionPattern = regexp.MustCompile(`\b(left|right|flip)\b`)
)

// DefaultPlanner は既知の操作を含むプロンプトは成功させ、それ以外は選択肢付きの確認質問で返すプランナーです。
func DefaultPlanner(polls int) Planner {
	return PlannerFunc(func(prompt string, files []string) Plan {
		p := strings.ToLower(prompt)
		switch {
		case strings.Contains(p, "docx") || strings.Contains(p, "word"):
			return Success(polls, pdf.OperationPDFToDOCX, "Converted to DOCX.")
		case strings.Contains(p, "png") || strings.Contains(p, "jpg") || strings.Contains(p, "image"):
			return Success(polls, pdf.OperationPDFToImage, "Exported pages as images.")
		case strings.Contains(p, "ocr"):
			return Success(polls, pdf.OperationOCR, "Text layer added.")
		case strings.Contains(p, "merge") || strings.Contains(p, "combine"):
			return Success(polls, pdf.OperationMerge, "Merged your files.")
		case strings.Contains(p, "compress"):
			if sizePattern.MatchString(p) {
				return Success(polls, pdf.OperationCompressToTarget, "Compressed to the requested size.")
			}
			return Success(polls, pdf.OperationCompress, "Compressed your file.")
		case strings.Contains(p, "rotate") || strings.Contains(p, "turn"):
			if digitsPattern.MatchString(p) || directionPattern.MatchString(p) {
				return Success(polls, pdf.OperationRotate, "Rotated.")
			}
			return Clarify(polls, "Which direction or how many degrees?", "rotate left", "rotate right", "rotate 180 degrees")
		case strings.Contains(p, "delete") || strings.Contains(p, "remove"):
			if digitsPattern.MatchString(p) {
				return withPages(Success(polls, pdf.OperationDelete, "Pages deleted."), p, files, true)
			}
			return Clarify(polls, "Which pages should I delete?")
		case strings.Contains(p, "split") || strings.Contains(p, "extract") || strings.Contains(p, "keep"):
			if digitsPattern.MatchString(p) {
				return withPages(Success(polls, pdf.OperationSplit, "Pages extracted."), p, files, false)
			}
			return Clarify(polls, "Which pages do you want to keep?")
		}
		return Clarify(polls, "Could you clarify what you want to do?", "compress", "merge", "convert to docx")
	})
}

// withPages は最初の入力が読める PDF の場合にページ指定を検証し、残すページをプランに設定します。
// ページ数が分からないときは検証せずにそのまま返します。
func withPages(plan Plan, prompt string, files []string, remove bool) Plan {
	expr := pdf.FindPageExpr(prompt)
	if expr == "" || len(files) == 0 {
		return plan
	}
	meta, err := pdf.Inspect(files[0])
	if err != nil || meta.Pages == 0 {
		return plan
	}
	ranges, err := pdf.ParsePageRanges(expr, meta.Pages)
	if err != nil {
		return Failure(plan.Polls, err.Error())
	}
	if remove {
		ranges = pdf.ComplementRanges(ranges, meta.Pages)
		if len(ranges) == 0 {
			return Failure(plan.Polls, "Cannot delete every page.")
		}
	}
	plan.Pages = ranges
	return plan
}

// outputExt は成果物の拡張子を返します。
func outputExt(op pdf.OperationType) string {
	switch op {
	case pdf.OperationPDFToDOCX:
		return ".docx"
	case pdf.OperationPDFToImage:
		return ".zip"
	}
	return ".pdf"
}
