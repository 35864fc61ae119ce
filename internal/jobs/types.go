package jobs

import (
	"errors"
	"fmt"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/clarify"
)

// State は1回の送信試行の状態です。
type State string

const (
	StateIdle                  State = "idle"
	StateUploading             State = "uploading"
	StateProcessing            State = "processing"
	StateAwaitingClarification State = "awaiting_clarification"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
	StateCancelled             State = "cancelled"
)

// Live はジョブが進行中かを返します。進行中は新しい送信を受け付けません。
func (s State) Live() bool {
	return s == StateUploading || s == StateProcessing
}

// Terminal はその試行が終わった状態かを返します。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateAwaitingClarification:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:                  {StateUploading, StateProcessing},
	StateUploading:             {StateProcessing, StateFailed, StateCancelled},
	StateProcessing:            {StateCompleted, StateAwaitingClarification, StateFailed, StateCancelled},
	StateCompleted:             {StateUploading, StateProcessing},
	StateAwaitingClarification: {StateUploading, StateProcessing},
	StateFailed:                {StateUploading, StateProcessing},
	StateCancelled:             {StateUploading, StateProcessing},
}

// CanTransition は from から to への遷移が許されるかを返します。
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reason は失敗・取り消しの理由です。
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonServer    Reason = "server"
	ReasonTransport Reason = "transport"
	ReasonTimeout   Reason = "timeout"
	ReasonExpired   Reason = "expired"
	ReasonCancelled Reason = "cancelled"
)

var (
	// ErrBusy は進行中のジョブがあるときに送信しようとした場合に返されます。
	ErrBusy = errors.New("a job is already in progress")
	// ErrNoFiles はファイルが選択されていない場合に返されます。
	ErrNoFiles = errors.New("please upload at least one file")
	// ErrEmptyInstruction は指示が空の場合に返されます。
	ErrEmptyInstruction = errors.New("please enter an instruction")
)

// Outcome は1回の試行の結果です。
type Outcome struct {
	State   State
	Reason  Reason
	JobID   string
	Command string
	// Message は会話ログに追加したメッセージです。
	Message string
	Result  *backend.Result
	// DownloadLabel は成功時の成果物の表示名です。
	DownloadLabel string
	// Clarification は確認待ちに入った場合の質問です。
	Clarification *clarify.Context
	Polls         int
	// Reused はアップロード済みファイルを再利用した場合に true です。
	Reused bool
	Err    error
}

// DownloadRef は成果物の参照を返します。成功していなければ空です。
func (o Outcome) DownloadRef() string {
	if o.State != StateCompleted || o.Result == nil {
		return ""
	}
	return o.Result.OutputFile
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.from, e.to)
}
