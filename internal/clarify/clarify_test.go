package clarify

import "testing"

func TestClassifyQuestion(t *testing.T) {
	cases := []struct {
		question string
		want     Kind
	}{
		{"How many degrees should I rotate?", KindRotateDegrees},
		{"Which direction or how many degrees?", KindRotateDegrees},
		{"What size in MB should I compress to?", KindCompress},
		{"Do you have a specific target to compress to?", KindCompress},
		{"Which pages do you want to keep?", KindKeepPages},
		{"Which page should I extract?", KindKeepPages},
		{"Which pages should I delete?", KindDeletePages},
		{"How many degrees?", KindFreeform},
		{"Could you clarify what you want to do?", KindFreeform},
		{"", KindFreeform},
	}
	for _, tc := range cases {
		if got := ClassifyQuestion(tc.question); got != tc.want {
			t.Fatalf("ClassifyQuestion(%q) = %q, want %q", tc.question, got, tc.want)
		}
	}
}

func TestComposeRotate(t *testing.T) {
	kind := ClassifyQuestion("Which direction or how many degrees?")
	cases := []struct {
		reply string
		want  string
	}{
		{"45", "rotate 45 degrees"},
		{"left", "rotate left"},
		{"-90 deg", "rotate -90 degrees"},
		{"180 degrees", "rotate 180 degrees"},
		{"to the right", "rotate right"},
		{"flip it", "rotate 180 degrees"},
		{"page 2 only", "rotate pages page 2 only"},
	}
	for _, tc := range cases {
		if got := Compose(kind, "rotate pages", tc.reply); got != tc.want {
			t.Fatalf("Compose(rotate, %q) = %q, want %q", tc.reply, got, tc.want)
		}
	}
}

func TestComposeCompress(t *testing.T) {
	kind := ClassifyQuestion("What size in mb should I compress to?")
	cases := []struct {
		reply string
		want  string
	}{
		{"3mb", "compress to 3mb"},
		{"to 2 MB", "compress to 2mb"},
		{"under 5mb", "compress to 5mb"},
		{"50%", "compress by 50%"},
		{"about 30 %", "compress by 30%"},
		{"a little", "compress a little"},
		{"best quality", "compress best quality"},
		{"whatever", "compress it whatever"},
	}
	for _, tc := range cases {
		if got := Compose(kind, "compress it", tc.reply); got != tc.want {
			t.Fatalf("Compose(compress, %q) = %q, want %q", tc.reply, got, tc.want)
		}
	}
}

func TestComposePages(t *testing.T) {
	if got := Compose(KindKeepPages, "extract", "1-3"); got != "keep pages 1-3" {
		t.Fatalf("keep: %q", got)
	}
	if got := Compose(KindKeepPages, "extract", "pages 2 and 4"); got != "pages 2 and 4" {
		t.Fatalf("keep verbatim: %q", got)
	}
	if got := Compose(KindDeletePages, "delete", "5, 6"); got != "delete pages 5, 6" {
		t.Fatalf("delete: %q", got)
	}
	if got := Compose(KindDeletePages, "delete", "remove the last one"); got != "remove the last one" {
		t.Fatalf("delete verbatim: %q", got)
	}
}

func TestComposeFreeform(t *testing.T) {
	if got := Compose(KindFreeform, "convert  this", " to docx\n"); got != "convert this to docx" {
		t.Fatalf("freeform: %q", got)
	}
}

func TestResolveOptionShortCircuit(t *testing.T) {
	pending := Context{
		Question:        "What size in MB should I compress to?",
		BaseInstruction: "compress",
		Options:         []string{"compress to 2mb", "compress by 50%"},
	}
	res := Resolve(pending, "compress by 50%")
	if !res.FromOption || res.Command != "compress by 50%" || res.InputSource() != "button" {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	res = Resolve(pending, "3mb")
	if res.FromOption || res.Command != "compress to 3mb" || res.InputSource() != "text" {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	// 大文字小文字が違えば選択肢とはみなさない
	res = Resolve(pending, "Compress by 50%")
	if res.FromOption {
		t.Fatalf("case-different reply must not match an option: %+v", res)
	}
}

func TestLooksLikeQuestion(t *testing.T) {
	yes := []string{"Which pages?", "how should I split it", "What format", "Would you like a zip", "Is this ok? "}
	for _, s := range yes {
		if !LooksLikeQuestion(s) {
			t.Fatalf("LooksLikeQuestion(%q) = false", s)
		}
	}
	no := []string{"", "Processing failed", "However it failed", "File is corrupted."}
	for _, s := range no {
		if LooksLikeQuestion(s) {
			t.Fatalf("LooksLikeQuestion(%q) = true", s)
		}
	}
}

func TestIsClarification(t *testing.T) {
	if !IsClarification("Failed to parse", []string{"merge"}) {
		t.Fatal("options should mark a clarification")
	}
	if IsClarification("Failed to parse", nil) {
		t.Fatal("plain failure is not a clarification")
	}
}
