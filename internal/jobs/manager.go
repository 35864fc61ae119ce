// Package jobs は1回の送信の流れ（アップロード・ポーリング・取り消し・再開）を管理します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/clarify"
	"github.com/yourusername/paper-agent/internal/conversation"
	"github.com/yourusername/paper-agent/internal/metrics"
	"github.com/yourusername/paper-agent/internal/pdf"
	"github.com/yourusername/paper-agent/internal/prompt"
	"github.com/yourusername/paper-agent/internal/storage"
)

const (
	// DefaultPollInterval はステータス確認の間隔です。
	DefaultPollInterval = time.Second
	// DefaultMaxPolls はステータス確認の上限回数です（1秒間隔で10分）。
	DefaultMaxPolls = 600

	cancelNotifyTimeout = 5 * time.Second
)

// Backend はジョブ管理が使うバックエンド API です。
type Backend interface {
	Submit(ctx context.Context, req backend.SubmitRequest, progress pdf.ProgressReporter) (*backend.SubmitResponse, error)
	SubmitReuse(ctx context.Context, req backend.SubmitRequest) (*backend.SubmitResponse, error)
	Status(ctx context.Context, jobID string) (*backend.StatusResponse, error)
	Cancel(ctx context.Context, jobID string) error
}

// Options は Manager の設定です。
type Options struct {
	Backend    Backend
	Store      storage.Store
	Log        *conversation.Log
	Normalizer *prompt.Normalizer
	SessionID  string

	PollInterval time.Duration
	MaxPolls     int

	KeepAwake KeepAwake
	Logger    zerolog.Logger

	// OnTelemetry はポーリング応答に含まれるメモリ使用状況をそのまま受け取ります。
	OnTelemetry func(json.RawMessage)
	// OnPoll は各ポーリング応答の後に呼ばれます。
	OnPoll func(count int, status *backend.StatusResponse)
}

// Manager は送信の状態機械です。同時に進行できるジョブは1件だけです。
type Manager struct {
	backend    Backend
	store      storage.Store
	log        *conversation.Log
	normalizer *prompt.Normalizer
	sessionID  string

	pollInterval time.Duration
	maxPolls     int

	keepAwake   KeepAwake
	logger      zerolog.Logger
	onTelemetry func(json.RawMessage)
	onPoll      func(int, *backend.StatusResponse)

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cancelled bool
	jobID     string
	pending   *clarify.Context

	// 直前に成功したアップロード。選択ファイルが同じなら再アップロードを省略する。
	uploadedNames []string
	uploadedRefs  []pdf.FileRef
}

// NewManager は Manager を初期化します。
func NewManager(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, errors.New("backend is nil")
	}
	if opts.Log == nil {
		return nil, errors.New("conversation log is nil")
	}
	m := &Manager{
		backend:      opts.Backend,
		store:        opts.Store,
		log:          opts.Log,
		normalizer:   opts.Normalizer,
		sessionID:    opts.SessionID,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		keepAwake:    opts.KeepAwake,
		logger:       opts.Logger,
		onTelemetry:  opts.OnTelemetry,
		onPoll:       opts.OnPoll,
		state:        StateIdle,
	}
	if m.store == nil {
		m.store = storage.Nop{}
	}
	if m.normalizer == nil {
		m.normalizer = prompt.New(prompt.Options{})
	}
	if m.pollInterval <= 0 {
		m.pollInterval = DefaultPollInterval
	}
	if m.maxPolls <= 0 {
		m.maxPolls = DefaultMaxPolls
	}
	if m.keepAwake == nil {
		m.keepAwake = nopKeepAwake{}
	}
	return m, nil
}

// State は現在の状態を返します。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PendingClarification は未解決の確認質問を返します。
func (m *Manager) PendingClarification() *clarify.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	c := *m.pending
	return &c
}

// SelectionChanged は選択ファイルが変わったことを通知します。
// アップロード済みの組と一致しなくなった場合は再利用情報を破棄します。
func (m *Manager) SelectionChanged(refs []pdf.FileRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !sameRefs(refs, m.uploadedRefs) {
		m.uploadedNames = nil
		m.uploadedRefs = nil
	}
}

// CanReuse は refs がアップロード済みの組と一致し、再アップロードを省略できるかを返します。
func (m *Manager) CanReuse(refs []pdf.FileRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canReuseLocked(refs)
}

func (m *Manager) canReuseLocked(refs []pdf.FileRef) bool {
	return len(refs) > 0 && len(m.uploadedNames) > 0 && sameRefs(refs, m.uploadedRefs)
}

func sameRefs(a, b []pdf.FileRef) bool {
	return slices.Equal(a, b)
}

// attempt は1回の送信試行で共有する値です。
type attempt struct {
	jobID       string
	command     string
	files       []pdf.File
	refs        []pdf.FileRef
	inputSource string
	question    string
	reused      bool
	resumed     bool
}

func (a *attempt) failurePrefix() string {
	if a.resumed {
		return "Failed to resume job: "
	}
	return "Failed: "
}

func (a *attempt) successDefault() string {
	if a.resumed {
		return "Done! Your file is ready."
	}
	return "Done!"
}

// Submit はユーザーの入力をコマンドにして送信し、ジョブが終わるまで待ちます。
// 返すエラーは送信前の検証エラーだけで、それ以外の失敗は Outcome に入ります。
func (m *Manager) Submit(ctx context.Context, text string, files []pdf.File) (Outcome, error) {
	if len(files) == 0 {
		return Outcome{}, ErrNoFiles
	}
	raw := prompt.NormalizeWhitespace(text)
	if raw == "" {
		return Outcome{}, ErrEmptyInstruction
	}

	refs := make([]pdf.FileRef, len(files))
	var totalBytes int64
	for i, f := range files {
		refs[i] = f.Ref()
		totalBytes += f.Size
	}
	totalMB := float64(totalBytes) / (1024 * 1024)

	m.mu.Lock()
	if m.state.Live() {
		m.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	pending := m.pending
	m.pending = nil
	reuse := m.canReuseLocked(refs)
	attemptCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.cancelled = false
	m.jobID = ""
	m.transitionLocked(StateUploading)
	m.mu.Unlock()
	defer cancel()

	a := &attempt{files: files, refs: refs, inputSource: "text"}
	var composed string
	fromOption := false
	if pending != nil {
		res := clarify.Resolve(*pending, raw)
		composed = res.Command
		fromOption = res.FromOption
		a.inputSource = res.InputSource()
		a.question = pending.Question
	} else {
		composed = prompt.ApplyDefaultInterpretation(raw)
	}
	if !fromOption {
		if rewritten, changed := m.normalizer.ApplyAutoCompress(composed, totalMB); changed {
			m.logger.Debug().Str("from", composed).Str("to", rewritten).Msg("applied compression target")
			composed = rewritten
		}
	}
	a.command = m.normalizer.PrepareForSend(composed)
	estimate := pdf.EstimateWaitTime(totalMB, raw)

	if pending != nil {
		m.log.User(raw)
	} else {
		m.log.User(a.command)
	}
	if reuse {
		m.log.SetStatus("Starting processing...")
	} else {
		m.log.SetStatus("Uploading files...")
	}

	release := m.keepAwake.Acquire()
	defer release()

	resp, err := m.upload(attemptCtx, a, reuse, totalBytes)
	if err != nil {
		return m.fail(attemptCtx, a, 0, err), nil
	}

	m.mu.Lock()
	if len(resp.UploadedFiles) > 0 {
		m.uploadedNames = append([]string(nil), resp.UploadedFiles...)
		m.uploadedRefs = append([]pdf.FileRef(nil), refs...)
	}
	m.jobID = resp.JobID
	cancelledDuringUpload := m.cancelled
	m.mu.Unlock()
	a.jobID = resp.JobID

	if cancelledDuringUpload {
		// Cancel の時点ではジョブIDが無かったので、ここでサーバーに伝える
		m.notifyCancel(a.jobID)
		return m.fail(attemptCtx, a, 0, context.Canceled), nil
	}

	if err := m.store.Save(attemptCtx, storage.Checkpoint{
		JobID:            a.jobID,
		Command:          a.command,
		PrimaryFileName:  files[0].Name,
		EstimatedSeconds: estimate,
	}); err != nil {
		m.logger.Warn().Err(err).Str("job_id", a.jobID).Msg("failed to save checkpoint")
	}

	if !m.transition(StateProcessing) {
		// アップロード完了と同時に取り消された
		return m.fail(attemptCtx, a, 0, context.Canceled), nil
	}
	m.log.SetStatus(defaultStatusMessage)
	return m.poll(attemptCtx, a), nil
}

// upload は再利用できる場合は参照だけを送り、できない場合はファイルを送ります。
// 再利用先のファイルが消えていた場合は1回だけ新規アップロードに切り替えます。
func (m *Manager) upload(ctx context.Context, a *attempt, reuse bool, totalBytes int64) (*backend.SubmitResponse, error) {
	req := backend.SubmitRequest{
		Prompt:          a.command,
		SessionID:       m.sessionID,
		ContextQuestion: a.question,
		InputSource:     a.inputSource,
	}

	mode := "fresh"
	if reuse {
		m.mu.Lock()
		req.FileNames = append([]string(nil), m.uploadedNames...)
		m.mu.Unlock()

		resp, err := m.backend.SubmitReuse(ctx, req)
		switch {
		case err == nil:
			a.reused = true
			metrics.IncUpload("reuse")
			m.logger.Info().Str("job_id", resp.JobID).Strs("files", req.FileNames).Msg("reused uploaded files")
			return resp, nil
		case errors.Is(err, backend.ErrNotFound):
			m.logger.Info().Strs("files", req.FileNames).Msg("uploaded files expired, uploading again")
			m.mu.Lock()
			m.uploadedNames = nil
			m.uploadedRefs = nil
			m.mu.Unlock()
			req.FileNames = nil
			mode = "fallback"
			m.log.SetStatus("Uploading files...")
		default:
			return nil, err
		}
	}

	req.Files = a.files
	resp, err := m.backend.Submit(ctx, req, func(_ string, percent int) {
		m.log.SetStatus(fmt.Sprintf("Uploading... %d%%", percent))
	})
	if err != nil {
		return nil, err
	}
	metrics.IncUpload(mode)
	metrics.AddUploadBytes(totalBytes)
	return resp, nil
}

// Resume は保存済みのチェックポイントがあればポーリングを再開します。
// チェックポイントが無い場合は ok=false です。
func (m *Manager) Resume(ctx context.Context) (Outcome, bool, error) {
	cp, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to load checkpoint")
		return Outcome{State: m.State()}, false, nil
	}
	if cp == nil {
		return Outcome{State: m.State()}, false, nil
	}

	m.mu.Lock()
	if m.state.Live() {
		m.mu.Unlock()
		return Outcome{}, false, ErrBusy
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.cancelled = false
	m.jobID = cp.JobID
	m.transitionLocked(StateProcessing)
	m.mu.Unlock()
	defer cancel()

	m.logger.Info().Str("job_id", cp.JobID).Time("started_at", cp.StartedAt).Msg("resuming job")
	m.log.Agent(conversation.ToneNeutral, "Found a pending job from earlier. Checking status...")
	label := cp.Command
	if label == "" {
		label = cp.PrimaryFileName
	}
	m.log.SetStatus(fmt.Sprintf("Resuming: %s...", label))

	release := m.keepAwake.Acquire()
	defer release()

	a := &attempt{jobID: cp.JobID, command: cp.Command, resumed: true}
	return m.poll(attemptCtx, a), true, nil
}

// Cancel は進行中のジョブを取り消します。別のゴルーチンからも呼べます。
// サーバーへの取り消し依頼は待たずに送ります。
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	if !m.state.Live() || m.cancel == nil {
		m.mu.Unlock()
		return false
	}
	m.cancelled = true
	m.cancel()
	jobID := m.jobID
	m.mu.Unlock()

	if jobID != "" {
		m.notifyCancel(jobID)
	}
	m.store.Clear(context.Background())
	m.logger.Info().Str("job_id", jobID).Msg("cancel requested")
	return true
}

// notifyCancel はサーバーへの取り消し依頼を非同期に送ります。失敗はログに残すだけです。
func (m *Manager) notifyCancel(jobID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelNotifyTimeout)
		defer cancel()
		if err := m.backend.Cancel(ctx, jobID); err != nil {
			m.logger.Debug().Err(err).Str("job_id", jobID).Msg("cancel notification failed")
		}
	}()
}

func (m *Manager) transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled && to != StateCancelled {
		return false
	}
	return m.transitionLocked(to)
}

func (m *Manager) transitionLocked(to State) bool {
	from := m.state
	if !CanTransition(from, to) {
		m.logger.Error().Err(&transitionError{from: from, to: to}).Msg("state transition rejected")
		return false
	}
	m.state = to
	m.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("job_id", m.jobID).Msg("state changed")
	return true
}

// finish は試行を終了状態にし、後始末をまとめて行います。
func (m *Manager) finish(out Outcome, tone conversation.Tone) Outcome {
	m.mu.Lock()
	if out.State == StateAwaitingClarification {
		m.pending = out.Clarification
	}
	m.transitionLocked(out.State)
	m.cancel = nil
	m.jobID = ""
	m.mu.Unlock()

	m.store.Clear(context.Background())
	m.log.ClearStatus()
	if out.Message != "" {
		msg := conversation.Message{Role: conversation.RoleAgent, Tone: tone, Text: out.Message}
		if out.Clarification != nil {
			msg.Options = out.Clarification.Options
		}
		if ref := out.DownloadRef(); ref != "" {
			msg.DownloadRef = ref
		}
		m.log.Append(msg)
	}

	metrics.IncJob(string(out.State))
	event := m.logger.Info()
	if out.State == StateFailed {
		event = m.logger.Warn().Err(out.Err)
	}
	event.Str("job_id", out.JobID).
		Str("state", string(out.State)).
		Str("reason", string(out.Reason)).
		Int("polls", out.Polls).
		Msg("job finished")
	return out
}

// fail はエラーを終了状態に変換します。
func (m *Manager) fail(ctx context.Context, a *attempt, polls int, err error) Outcome {
	out := Outcome{JobID: a.jobID, Command: a.command, Polls: polls, Reused: a.reused, Err: err}

	m.mu.Lock()
	userCancelled := m.cancelled
	m.mu.Unlock()

	switch {
	case userCancelled || errors.Is(err, context.Canceled) || (ctx.Err() != nil && !errors.Is(err, backend.ErrUploadTimeout)):
		out.State = StateCancelled
		out.Reason = ReasonCancelled
		out.Message = "Process cancelled. Ready for your next request."
		return m.finish(out, conversation.ToneNeutral)
	case errors.Is(err, backend.ErrUploadTimeout):
		out.State = StateFailed
		out.Reason = ReasonTimeout
		out.Message = a.failurePrefix() + "Upload timed out"
	case errors.Is(err, backend.ErrNotFound) && a.jobID != "":
		out.State = StateFailed
		out.Reason = ReasonExpired
		out.Message = "Previous job expired. Please upload your file and try again."
		return m.finish(out, conversation.ToneNeutral)
	default:
		out.State = StateFailed
		out.Reason = ReasonTransport
		out.Message = a.failurePrefix() + err.Error()
	}
	return m.finish(out, conversation.ToneError)
}
