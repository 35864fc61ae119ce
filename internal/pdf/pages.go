package pdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageRange は 1 始まりの閉区間です。
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

var pageExprPattern = regexp.MustCompile(`\d+(?:\s*-\s*\d*)?(?:\s*,\s*\d+(?:\s*-\s*\d*)?)*`)

// FindPageExpr は指示文から最初のページ指定（"2", "1-3", "1,4-"）を取り出します。
func FindPageExpr(text string) string {
	return strings.ReplaceAll(pageExprPattern.FindString(text), " ", "")
}

// ParsePageRanges は "1-3,5,8-" 形式の指定を検証して範囲に変換します。
// 範囲は昇順で重複なし、終端省略は最終ページまでを表します。
func ParsePageRanges(expr string, pageCount int) ([]PageRange, error) {
	segments := strings.Split(expr, ",")
	ranges := make([]PageRange, 0, len(segments))
	lastEnd := 0

	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, newError("INVALID_INPUT", "Empty page range.", nil)
		}
		start, end, err := parseSingleRange(seg, pageCount)
		if err != nil {
			return nil, err
		}
		if start <= lastEnd {
			return nil, newError("INVALID_INPUT", "Page ranges must be in ascending order without overlaps.", nil)
		}
		lastEnd = end
		ranges = append(ranges, PageRange{Start: start, End: end})

		if end == pageCount && i != len(segments)-1 {
			return nil, newError("INVALID_INPUT", "No pages left after the last page.", nil)
		}
	}
	if len(ranges) == 0 {
		return nil, newError("INVALID_INPUT", "No valid page range.", nil)
	}
	return ranges, nil
}

func parseSingleRange(seg string, pageCount int) (int, int, error) {
	if before, after, ok := strings.Cut(seg, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("Invalid page range %q.", seg), nil)
		}
		end := pageCount
		if s := strings.TrimSpace(after); s != "" {
			if end, err = strconv.Atoi(s); err != nil {
				return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("Invalid page range %q.", seg), nil)
			}
		}
		if start < 1 || end < start || end > pageCount {
			return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("Pages %s are out of range (the document has %d pages).", seg, pageCount), nil)
		}
		return start, end, nil
	}

	page, err := strconv.Atoi(seg)
	if err != nil {
		return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("Invalid page number %q.", seg), nil)
	}
	if page < 1 || page > pageCount {
		return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("Page %d is out of range (the document has %d pages).", page, pageCount), nil)
	}
	return page, page, nil
}

// ComplementRanges は ranges に含まれないページを範囲として返します。
func ComplementRanges(ranges []PageRange, pageCount int) []PageRange {
	var out []PageRange
	next := 1
	for _, r := range ranges {
		if r.Start > next {
			out = append(out, PageRange{Start: next, End: r.Start - 1})
		}
		next = r.End + 1
	}
	if next <= pageCount {
		out = append(out, PageRange{Start: next, End: pageCount})
	}
	return out
}

// PageSelection は pdfcpu のページ指定に変換します。
func PageSelection(ranges []PageRange) []string {
	sel := make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r.Start == r.End {
			sel = append(sel, strconv.Itoa(r.Start))
			continue
		}
		sel = append(sel, fmt.Sprintf("%d-%d", r.Start, r.End))
	}
	return sel
}

// CollectPages は inPath の指定ページだけを順に並べた PDF を outPath に書き出します。
func CollectPages(inPath, outPath string, ranges []PageRange) error {
	if len(ranges) == 0 {
		return newError("INVALID_INPUT", "No pages selected.", nil)
	}
	if err := pdfapi.CollectFile(inPath, outPath, PageSelection(ranges), nil); err != nil {
		return newError("UNSUPPORTED_PDF", "Failed to extract pages.", err)
	}
	return nil
}
