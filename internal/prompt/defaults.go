package prompt

import (
	"regexp"
	"strings"
)

var (
	imageExtPattern    = regexp.MustCompile(`^(png|jpg|jpeg)$`)
	docxExtPattern     = regexp.MustCompile(`^(docx|word)$`)
	rotateLeftPattern  = regexp.MustCompile(`\b(rotate|turn)\s+left\b`)
	rotateRightPattern = regexp.MustCompile(`\b(rotate|turn)\s+right\b`)
	rotateWordPattern  = regexp.MustCompile(`\brotate\b|\bturn\b|\bmake it straight\b`)
	flipPattern        = regexp.MustCompile(`\bflip\b`)
	digitPattern       = regexp.MustCompile(`\d`)

	plainCompressPattern = regexp.MustCompile(`^compress(\s+(it|this|pdf|this pdf|the pdf))?$`)
	mbTargetPattern      = regexp.MustCompile(`\d+\s*mb`)
	percentTargetPattern = regexp.MustCompile(`\d+\s*%`)
	fractionPattern      = regexp.MustCompile(`\b(half|quarter|third)\b`)
	qualitativePattern   = regexp.MustCompile(`\b(very tiny|smallest|maximum|minimal)\b`)
)

// ApplyDefaultInterpretation は短い単一意図の入力を完全なコマンドに展開します。
// 綴り補正より先に、ユーザーの入力そのものに対して適用します。
func ApplyDefaultInterpretation(text string) string {
	t := NormalizeWhitespace(text)
	lower := strings.ToLower(t)

	// 拡張子だけの入力
	switch {
	case imageExtPattern.MatchString(lower):
		return "export pages as " + lower + " images"
	case docxExtPattern.MatchString(lower):
		return "convert to docx"
	case lower == "txt":
		return "extract text"
	case lower == "ocr":
		return "ocr this"
	}

	if !digitPattern.MatchString(lower) {
		switch {
		case rotateLeftPattern.MatchString(lower):
			return "rotate -90 degrees"
		case rotateRightPattern.MatchString(lower):
			return "rotate 90 degrees"
		case rotateWordPattern.MatchString(lower):
			return t + " 90 degrees"
		}
	}
	if flipPattern.MatchString(lower) {
		return "rotate 180 degrees"
	}

	return t
}

// IsPlainCompress は "compress" / "compress it" / "compress this pdf" のような目標なしの圧縮指示かを判定します。
func IsPlainCompress(command string) bool {
	return plainCompressPattern.MatchString(strings.ToLower(strings.TrimSpace(command)))
}

// HasSpecificCompressionTarget は MB・割合・分数・強度のいずれかの目標が含まれるかを判定します。
func HasSpecificCompressionTarget(command string) bool {
	lower := strings.ToLower(command)
	return mbTargetPattern.MatchString(lower) ||
		percentTargetPattern.MatchString(lower) ||
		fractionPattern.MatchString(lower) ||
		qualitativePattern.MatchString(lower)
}
