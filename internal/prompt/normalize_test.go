package prompt

import (
	"strings"
	"testing"
)

func TestNormalizeWhitespace(t *testing.T) {
	cases := map[string]string{
		"  compress\r\n this   pdf ": "compress this pdf",
		"merge\n\nthen split":       "merge then split",
		"":                          "",
		"\t\t":                      "",
	}
	for in, want := range cases {
		if got := NormalizeWhitespace(in); got != want {
			t.Fatalf("NormalizeWhitespace(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeWhitespaceIdempotent(t *testing.T) {
	inputs := []string{
		"a  b", " \n x\ty \r\n", "already clean", "", "   ", "multi\n\n\nline  text ",
	}
	for _, s := range inputs {
		once := NormalizeWhitespace(s)
		if twice := NormalizeWhitespace(once); twice != once {
			t.Fatalf("not idempotent for %q: %q vs %q", s, once, twice)
		}
	}
}

func TestNormalizeCompressionPhrasing(t *testing.T) {
	cases := map[string]string{
		"by 2 mb":             "to 2mb",
		"under 10mb":          "to 10mb",
		"compress BY 5 MB":    "compress to 5mb",
		"compress to 3 mb":    "compress to 3mb",
		"merge these please":  "merge these please",
		"compress  under 4mb": "compress to 4mb",
		// 2つ目以降の指定も揃える
		"compress a by 2 mb and b under 3 mb": "compress a to 2mb and b to 3mb",
	}
	for in, want := range cases {
		if got := NormalizeCompressionPhrasing(in); got != want {
			t.Fatalf("NormalizeCompressionPhrasing(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCorrectTypos(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"comress pdf", "compress"},
		{"spllit file", "split"},
		{"compresss it", "compress"},
		{"dellete page 2", "delete"},
		{"remvoe page 3", "remove"},
		{"converrt to doc x", "convert to docx"},
		{"merg these", "merge"},
	}
	for _, tc := range cases {
		if got := CorrectTypos(tc.in); !strings.Contains(got, tc.want) {
			t.Fatalf("CorrectTypos(%q) = %q, want it to contain %q", tc.in, got, tc.want)
		}
	}
}

func TestFuzzyCorrectKeywords(t *testing.T) {
	cases := map[string]string{
		"comres this":        "compress this",
		"extrct pages 1-3":   "extract pages 1-3",
		"please merge these": "please merge these",
		"the cat":            "the cat",
	}
	for in, want := range cases {
		if got := FuzzyCorrectKeywords(in); got != want {
			t.Fatalf("FuzzyCorrectKeywords(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFuzzyThresholdBoundary(t *testing.T) {
	// 50文字のキーワードに対して 13 文字違い → 1 - 13/50 = 0.74（しきい値ちょうど）
	keyword := strings.Repeat("a", 50)
	n := New(Options{FuzzyThreshold: 0.74, Vocabulary: []string{keyword}})

	atThreshold := strings.Repeat("b", 13) + strings.Repeat("a", 37)
	belowThreshold := strings.Repeat("b", 14) + strings.Repeat("a", 36)

	if got := Similarity(atThreshold, keyword); got < 0.7399 || got > 0.7401 {
		t.Fatalf("unexpected similarity at threshold: %v", got)
	}
	if got := n.FuzzyCorrectKeywords(atThreshold); got != keyword {
		t.Fatalf("token at threshold should be corrected, got %q", got)
	}
	if got := n.FuzzyCorrectKeywords(belowThreshold); got != belowThreshold {
		t.Fatalf("token below threshold should be left unchanged, got %q", got)
	}
}

func TestFuzzyKeepsShortAndExactTokens(t *testing.T) {
	n := New(Options{})
	if got := n.FuzzyCorrectKeywords("mrg"); got != "mrg" {
		t.Fatalf("short token should be untouched, got %q", got)
	}
	if got := n.FuzzyCorrectKeywords("Merge"); got != "Merge" {
		t.Fatalf("exact match should keep original casing, got %q", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abcd", 4},
		{"comres", "compress", 2},
		{"kitten", "sitting", 3},
		{"split", "split", 0},
	}
	for _, tc := range cases {
		if got := Levenshtein(tc.a, tc.b); got != tc.want {
			t.Fatalf("Levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestPrepareForSend(t *testing.T) {
	got := PrepareForSend("comress  by 2 mb\n")
	if got != "compress to 2mb" {
		t.Fatalf("PrepareForSend = %q", got)
	}
}

func TestAutoCompress(t *testing.T) {
	n := New(Options{})
	cases := []struct {
		command string
		totalMB float64
		want    string
		changed bool
	}{
		{"compress", 40, "compress to 10mb", true},
		{"compress", 2, "compress to 1mb", true},
		{"compress", 10, "compress to 3mb", true},
		{"compress this pdf", 8, "compress to 2mb", true},
		{"compress to 5mb", 40, "compress to 5mb", false},
		{"compress by 50%", 40, "compress by 50%", false},
		{"merge", 40, "merge", false},
	}
	for _, tc := range cases {
		got, changed := n.ApplyAutoCompress(tc.command, tc.totalMB)
		if got != tc.want || changed != tc.changed {
			t.Fatalf("ApplyAutoCompress(%q, %v) = (%q, %v), want (%q, %v)", tc.command, tc.totalMB, got, changed, tc.want, tc.changed)
		}
	}
}

func TestAutoCompressCustomRatio(t *testing.T) {
	n := New(Options{AutoCompressRatio: 0.5, AutoCompressMinMB: 2})
	if got := n.AutoCompressTargetMB(10); got != 5 {
		t.Fatalf("AutoCompressTargetMB(10) = %d, want 5", got)
	}
	if got := n.AutoCompressTargetMB(1); got != 2 {
		t.Fatalf("AutoCompressTargetMB(1) = %d, want 2", got)
	}
}
