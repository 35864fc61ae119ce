// Package conversation はユーザーとエージェントのやり取りを保持するメッセージログです。
package conversation

import (
	"sync"

	"github.com/google/uuid"
)

// Role は発言者を表します。
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Tone はメッセージの種類を表します。
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneStatus  Tone = "status"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
	ToneClarify Tone = "clarify"
)

// Message は会話ログの1件です。
type Message struct {
	ID      string   `json:"id"`
	Role    Role     `json:"role"`
	Tone    Tone     `json:"tone"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
	// DownloadRef は成功メッセージに添付された成果物の参照です。
	DownloadRef string `json:"downloadRef,omitempty"`
}

// Listener はメッセージが追加・置換されたときに呼ばれます。
// replaced が true の場合は直前のステータスメッセージが置き換えられたことを示します。
type Listener func(msg Message, replaced bool)

// Log は追記型のメッセージログです。
// ステータスメッセージは常に最新の1件だけが残り、その場で置き換えられます。
type Log struct {
	mu       sync.Mutex
	messages []Message
	listener Listener
}

// NewLog は Log を作成します。listener は nil でも構いません。
func NewLog(listener Listener) *Log {
	return &Log{listener: listener}
}

// Append はメッセージを追加します。ID が空なら採番します。
// ステータス以外のメッセージを追加すると、生きているステータスメッセージは取り除かれます。
func (l *Log) Append(msg Message) Message {
	if msg.Tone == ToneStatus {
		return l.SetStatus(msg.Text)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Role == "" {
		msg.Role = RoleAgent
	}
	if msg.Tone == "" {
		msg.Tone = ToneNeutral
	}

	l.mu.Lock()
	l.dropStatusLocked()
	l.messages = append(l.messages, msg)
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(msg, false)
	}
	return msg
}

// User はユーザーの発言を追加します。
func (l *Log) User(text string) Message {
	return l.Append(Message{Role: RoleUser, Tone: ToneNeutral, Text: text})
}

// Agent はエージェントの発言を追加します。
func (l *Log) Agent(tone Tone, text string, options ...string) Message {
	return l.Append(Message{Role: RoleAgent, Tone: tone, Text: text, Options: options})
}

// SetStatus はステータスメッセージを設定します。
// 最後のメッセージがステータスならその場で置き換え、そうでなければ追加します。
func (l *Log) SetStatus(text string) Message {
	l.mu.Lock()
	var (
		msg      Message
		replaced bool
	)
	if n := len(l.messages); n > 0 && l.messages[n-1].Tone == ToneStatus {
		l.messages[n-1].Text = text
		msg = l.messages[n-1]
		replaced = true
	} else {
		msg = Message{ID: uuid.NewString(), Role: RoleAgent, Tone: ToneStatus, Text: text}
		l.messages = append(l.messages, msg)
	}
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(msg, replaced)
	}
	return msg
}

// ClearStatus は生きているステータスメッセージを取り除きます。
func (l *Log) ClearStatus() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropStatusLocked()
}

func (l *Log) dropStatusLocked() {
	if n := len(l.messages); n > 0 && l.messages[n-1].Tone == ToneStatus {
		l.messages = l.messages[:n-1]
	}
}

// Messages はログのコピーを返します。
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// LastOptions は最後に提示された選択肢を返します。
func (l *Log) LastOptions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if len(l.messages[i].Options) > 0 {
			return append([]string(nil), l.messages[i].Options...)
		}
	}
	return nil
}
