// Package clarify はバックエンドからの確認質問とユーザーの返答を1つのコマンドにまとめます。
package clarify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/yourusername/paper-agent/internal/prompt"
)

// Kind は確認質問の種類を表します。
type Kind string

const (
	KindRotateDegrees Kind = "rotate_degrees"
	KindCompress      Kind = "compress"
	KindKeepPages     Kind = "keep_pages"
	KindDeletePages   Kind = "delete_pages"
	KindFreeform      Kind = "freeform"
)

// Context は未解決の確認質問です。返答からコマンドが作られた時点で破棄されます。
type Context struct {
	Question        string   `json:"question"`
	BaseInstruction string   `json:"baseInstruction"`
	Options         []string `json:"options,omitempty"`
}

// Resolution は返答を解決した結果です。
type Resolution struct {
	Command string
	Kind    Kind
	// FromOption は返答が提示された選択肢と完全一致した場合に true です。
	FromOption bool
}

// InputSource はバックエンドに送る入力元タグを返します。
func (r Resolution) InputSource() string {
	if r.FromOption {
		return "button"
	}
	return "text"
}

var (
	rotateNumberPattern = regexp.MustCompile(`(?i)^(-?\d+)\s*(deg|degree|degrees)?$`)
	leftPattern         = regexp.MustCompile(`\bleft\b`)
	rightPattern        = regexp.MustCompile(`\bright\b`)
	flipPattern         = regexp.MustCompile(`\bflip\b`)

	mbPattern          = regexp.MustCompile(`(?i)\b(\d+)mb\b`)
	qualitativePattern = regexp.MustCompile(`(?i)\b(little|slight|tiny|smallest|maximum|strong|best quality|minimal compression)\b`)
	nonPercentPattern  = regexp.MustCompile(`[^0-9%]`)

	pagesWordPattern  = regexp.MustCompile(`(?i)\bpages?\b`)
	deleteWordPattern = regexp.MustCompile(`(?i)\b(delete|remove)\b`)
)

// ClassifyQuestion は小文字化した質問文のキーワードから種類を判定します。
func ClassifyQuestion(question string) Kind {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "degree") && (strings.Contains(q, "rotate") || strings.Contains(q, "direction")):
		return KindRotateDegrees
	case strings.Contains(q, "compress") &&
		(strings.Contains(q, "mb") || strings.Contains(q, "size") || strings.Contains(q, "specific")):
		return KindCompress
	case strings.Contains(q, "keep") && strings.Contains(q, "pages"):
		return KindKeepPages
	case strings.Contains(q, "delete") && strings.Contains(q, "pages"):
		return KindDeletePages
	case strings.Contains(q, "which page"):
		return KindKeepPages
	}
	return KindFreeform
}

// Compose は質問の種類・元の指示・返答から完全なコマンドを作ります。
func Compose(kind Kind, baseInstruction, reply string) string {
	normalized := prompt.NormalizeCompressionPhrasing(reply)
	base := prompt.NormalizeWhitespace(baseInstruction)
	fallback := prompt.NormalizeWhitespace(base + " " + normalized)

	switch kind {
	case KindRotateDegrees:
		r := strings.ToLower(prompt.NormalizeWhitespace(reply))
		if m := rotateNumberPattern.FindStringSubmatch(r); m != nil {
			return "rotate " + m[1] + " degrees"
		}
		switch {
		case leftPattern.MatchString(r):
			return "rotate left"
		case rightPattern.MatchString(r):
			return "rotate right"
		case flipPattern.MatchString(r):
			return "rotate 180 degrees"
		}
		return fallback

	case KindCompress:
		if m := mbPattern.FindStringSubmatch(normalized); m != nil {
			return "compress to " + m[1] + "mb"
		}
		if qualitativePattern.MatchString(normalized) {
			return "compress " + normalized
		}
		if strings.Contains(normalized, "%") {
			return "compress by " + nonPercentPattern.ReplaceAllString(normalized, "")
		}
		return fallback

	case KindKeepPages:
		if pagesWordPattern.MatchString(normalized) {
			return normalized
		}
		return "keep pages " + normalized

	case KindDeletePages:
		if pagesWordPattern.MatchString(normalized) || deleteWordPattern.MatchString(normalized) {
			return normalized
		}
		return "delete pages " + normalized
	}

	return fallback
}

// Resolve は保留中の確認質問に対する返答をコマンドにします。
// 返答が提示された選択肢とバイト単位で一致する場合は、合成せずにそのまま使います。
func Resolve(pending Context, reply string) Resolution {
	if slices.Contains(pending.Options, reply) {
		return Resolution{Command: reply, Kind: ClassifyQuestion(pending.Question), FromOption: true}
	}
	kind := ClassifyQuestion(pending.Question)
	return Resolution{Command: Compose(kind, pending.BaseInstruction, reply), Kind: kind}
}
