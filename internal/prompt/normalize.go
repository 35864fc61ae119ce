// Package prompt はユーザーの自然文の指示をバックエンド向けのコマンドに正規化します。
//
// すべての関数は副作用を持たず、ネットワークにもアクセスしません。
package prompt

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	// DefaultFuzzyThreshold はあいまい補正を適用する最低スコアです。
	// "comres" → "compress" は拾い、通常の文章は崩さない値です。
	DefaultFuzzyThreshold = 0.74
	// DefaultAutoCompressRatio は目標なしの compress に適用する入力サイズ比です。
	DefaultAutoCompressRatio = 0.25
	// DefaultAutoCompressMinMB は自動目標サイズの下限（MB）です。
	DefaultAutoCompressMinMB = 1

	minFuzzyTokenLen = 4
	scoreEpsilon     = 1e-9
)

// DefaultVocabulary はあいまい補正の対象となる操作キーワードです。
var DefaultVocabulary = []string{
	"compress",
	"merge",
	"split",
	"extract",
	"keep",
	"delete",
	"remove",
	"convert",
	"rotate",
	"docx",
	"word",
	"pages",
	"page",
	"then",
	"and",
	"after",
	"before",
	"to",
	"under",
	"mb",
}

// Options は Normalizer の調整可能な定数です。ゼロ値の項目はデフォルトで補われます。
type Options struct {
	FuzzyThreshold    float64
	Vocabulary        []string
	AutoCompressRatio float64
	AutoCompressMinMB int
}

// Normalizer は設定済みの定数で正規化を行います。
type Normalizer struct {
	threshold float64
	vocab     []string
	vocabSet  map[string]struct{}
	ratio     float64
	minMB     int
}

// New は Normalizer を作成します。
func New(opts Options) *Normalizer {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if len(opts.Vocabulary) == 0 {
		opts.Vocabulary = DefaultVocabulary
	}
	if opts.AutoCompressRatio <= 0 {
		opts.AutoCompressRatio = DefaultAutoCompressRatio
	}
	if opts.AutoCompressMinMB <= 0 {
		opts.AutoCompressMinMB = DefaultAutoCompressMinMB
	}

	vocab := make([]string, 0, len(opts.Vocabulary))
	set := make(map[string]struct{}, len(opts.Vocabulary))
	for _, k := range opts.Vocabulary {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := set[k]; dup {
			continue
		}
		set[k] = struct{}{}
		vocab = append(vocab, k)
	}

	return &Normalizer{
		threshold: opts.FuzzyThreshold,
		vocab:     vocab,
		vocabSet:  set,
		ratio:     opts.AutoCompressRatio,
		minMB:     opts.AutoCompressMinMB,
	}
}

var defaultNormalizer = New(Options{})

var (
	lineBreakPattern = regexp.MustCompile(`[\r\n]+`)
	spacePattern     = regexp.MustCompile(`\s+`)

	byMBPattern     = regexp.MustCompile(`(?i)\bby\s*(\d+)\s*mb\b`)
	underMBPattern  = regexp.MustCompile(`(?i)\bunder\s*(\d+)\s*mb\b`)
	spacedMBPattern = regexp.MustCompile(`(?i)\b(\d+)\s*mb\b`)

	tokenPattern = regexp.MustCompile(`[A-Za-z]+`)
)

type typoRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// 出現頻度の高い綴り誤りだけを固定ルールで直す。残りは FuzzyCorrectKeywords が拾う。
var typoRules = []typoRule{
	{regexp.MustCompile(`(?i)\bcom+res+s*\b`), "compress"},
	{regexp.MustCompile(`(?i)\bcompres+s*\b`), "compress"},
	{regexp.MustCompile(`(?i)\bcomprss\b`), "compress"},
	{regexp.MustCompile(`(?i)\bspl+it+\b`), "split"},
	{regexp.MustCompile(`(?i)\bmerg(e)?\b`), "merge"},
	{regexp.MustCompile(`(?i)\bdel+ete\b`), "delete"},
	{regexp.MustCompile(`(?i)\bremvoe\b`), "remove"},
	{regexp.MustCompile(`(?i)\bconver+t\b`), "convert"},
	{regexp.MustCompile(`(?i)\brot+ate\b`), "rotate"},
	{regexp.MustCompile(`(?i)\bdoc\s*x\b`), "docx"},
}

// NormalizeWhitespace は改行と連続する空白を1つの空白にまとめ、前後を取り除きます。
func NormalizeWhitespace(text string) string {
	t := lineBreakPattern.ReplaceAllString(text, " ")
	t = spacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizeCompressionPhrasing は "by Nmb" / "under Nmb" を "to Nmb" に、"N mb" を "Nmb" に揃えます。
func NormalizeCompressionPhrasing(text string) string {
	t := NormalizeWhitespace(text)
	t = byMBPattern.ReplaceAllString(t, "to ${1}mb")
	t = underMBPattern.ReplaceAllString(t, "to ${1}mb")
	return spacedMBPattern.ReplaceAllString(t, "${1}mb")
}

// CorrectTypos は操作キーワードのよくある綴り誤りを置換します。
func CorrectTypos(text string) string {
	t := NormalizeWhitespace(text)
	for _, rule := range typoRules {
		t = rule.pattern.ReplaceAllString(t, rule.replacement)
	}
	return t
}

// FuzzyCorrectKeywords はデフォルト設定であいまい補正を行います。
func FuzzyCorrectKeywords(text string) string {
	return defaultNormalizer.FuzzyCorrectKeywords(text)
}

// FuzzyCorrectKeywords は4文字以上の英字トークンを、編集距離スコアがしきい値以上の
// 最も近いキーワードに置き換えます。語彙と完全一致するトークンはそのままです。
func (n *Normalizer) FuzzyCorrectKeywords(text string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(word string) string {
		if len(word) < minFuzzyTokenLen {
			return word
		}
		w := strings.ToLower(word)
		if _, ok := n.vocabSet[w]; ok {
			return word
		}

		best := ""
		bestScore := 0.0
		for _, k := range n.vocab {
			score := Similarity(w, k)
			if score > bestScore {
				bestScore = score
				best = k
			}
		}
		if best != "" && bestScore+scoreEpsilon >= n.threshold {
			return best
		}
		return word
	})
}

// Similarity は 1 - distance / max(len(a), len(b)) を返します。
func Similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein は古典的な動的計画法で編集距離を計算します。
func Levenshtein(a, b string) int {
	s := []rune(a)
	t := []rune(b)
	if len(s) == 0 {
		return len(t)
	}
	if len(t) == 0 {
		return len(s)
	}

	prev := make([]int, len(t)+1)
	curr := make([]int, len(t)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s); i++ {
		curr[0] = i
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(t)]
}

// PrepareForSend は送信直前の正規化（圧縮表現 → 綴り誤り → あいまい補正）を行います。
func (n *Normalizer) PrepareForSend(text string) string {
	return n.FuzzyCorrectKeywords(CorrectTypos(NormalizeCompressionPhrasing(text)))
}

// PrepareForSend はデフォルト設定で送信前の正規化を行います。
func PrepareForSend(text string) string {
	return defaultNormalizer.PrepareForSend(text)
}

// AutoCompressTargetMB は合計入力サイズから自動の目標サイズ（MB、四捨五入、下限あり）を計算します。
func (n *Normalizer) AutoCompressTargetMB(totalMB float64) int {
	target := int(math.Round(totalMB * n.ratio))
	if target < n.minMB {
		return n.minMB
	}
	return target
}

// ApplyAutoCompress は目標のない単純な compress を "compress to Nmb" に書き換えます。
// それ以外のコマンドはそのまま返します。
func (n *Normalizer) ApplyAutoCompress(command string, totalMB float64) (string, bool) {
	if !IsPlainCompress(command) || HasSpecificCompressionTarget(command) {
		return command, false
	}
	return fmt.Sprintf("compress to %dmb", n.AutoCompressTargetMB(totalMB)), true
}
