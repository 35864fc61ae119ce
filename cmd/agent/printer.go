package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/yourusername/paper-agent/internal/conversation"
)

// printer は会話ログを端末に書き出します。
// ステータスは同じ行を上書きし、それ以外のメッセージは1行ずつ追記します。
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	statusOpen bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) print(msg conversation.Message, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.Tone == conversation.ToneStatus {
		fmt.Fprintf(p.out, "\r\033[K… %s", msg.Text)
		p.statusOpen = true
		return
	}
	if p.statusOpen {
		fmt.Fprint(p.out, "\r\033[K")
		p.statusOpen = false
	}

	fmt.Fprintf(p.out, "%s %s\n", prefix(msg), msg.Text)
	for i, opt := range msg.Options {
		fmt.Fprintf(p.out, "   [%d] %s\n", i+1, opt)
	}
	if msg.DownloadRef != "" {
		fmt.Fprintf(p.out, "   result: %s\n", msg.DownloadRef)
	}
}

func prefix(msg conversation.Message) string {
	if msg.Role == conversation.RoleUser {
		return ">"
	}
	switch msg.Tone {
	case conversation.ToneSuccess:
		return "✓"
	case conversation.ToneError:
		return "✗"
	case conversation.ToneClarify:
		return "?"
	}
	return "•"
}

// resolveOptionInput は番号で選ばれた選択肢を選択肢の文字列に置き換えます。
// 番号以外の入力はそのまま返します。
func resolveOptionInput(input string, options []string) string {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(options) {
		return input
	}
	return options[n-1]
}
