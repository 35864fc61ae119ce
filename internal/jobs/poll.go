package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/clarify"
	"github.com/yourusername/paper-agent/internal/conversation"
	"github.com/yourusername/paper-agent/internal/metrics"
	"github.com/yourusername/paper-agent/internal/pdf"
)

const timeoutMessage = "Processing timed out. Please try again with a smaller file."

// shouldStopPolling はポーリングを終えるべきかを判定します。
func shouldStopPolling(cancelled, terminal bool, count, max int) bool {
	return cancelled || terminal || count >= max
}

// sleepContext は d だけ待ちます。待っている間に ctx が終わった場合はそのエラーを返します。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// poll はジョブが終わるまで一定間隔でステータスを確認します。
// 取り消しは各リクエストの前に確認するため、取り消し後に追加のリクエストは送られません。
func (m *Manager) poll(ctx context.Context, a *attempt) Outcome {
	var (
		polls int
		out   *Outcome
	)
	for !shouldStopPolling(ctx.Err() != nil, out != nil, polls, m.maxPolls) {
		if err := sleepContext(ctx, m.pollInterval); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		polls++
		metrics.IncPoll()

		st, err := m.backend.Status(ctx, a.jobID)
		if err != nil {
			return m.fail(ctx, a, polls, fmt.Errorf("status check failed: %w", err))
		}
		if len(st.RAM) > 0 && m.onTelemetry != nil {
			m.onTelemetry(st.RAM)
		}
		m.log.SetStatus(StatusText(st.Message, st.EstimatedRemaining, st.Status))
		if m.onPoll != nil {
			m.onPoll(polls, st)
		}

		switch {
		case st.Status.Terminal():
			o := m.conclude(a, st, polls)
			out = &o
		case st.Status == backend.StatusCancelled:
			o := m.finish(Outcome{
				State:   StateCancelled,
				Reason:  ReasonCancelled,
				JobID:   a.jobID,
				Command: a.command,
				Polls:   polls,
				Reused:  a.reused,
				Message: "Process cancelled. Ready for your next request.",
			}, conversation.ToneNeutral)
			out = &o
		}
	}

	switch {
	case out != nil:
		return *out
	case ctx.Err() != nil:
		return m.fail(ctx, a, polls, ctx.Err())
	}
	return m.finish(Outcome{
		State:   StateFailed,
		Reason:  ReasonTimeout,
		JobID:   a.jobID,
		Command: a.command,
		Polls:   polls,
		Reused:  a.reused,
		Message: timeoutMessage,
	}, conversation.ToneError)
}

// conclude は終端のステータス応答を成功・確認待ち・失敗のいずれかに振り分けます。
func (m *Manager) conclude(a *attempt, st *backend.StatusResponse, polls int) Outcome {
	out := Outcome{
		JobID:   a.jobID,
		Command: a.command,
		Polls:   polls,
		Reused:  a.reused,
		Result:  st.Result,
	}

	if st.Result.Succeeded() {
		out.State = StateCompleted
		out.Message = st.Result.Message
		if out.Message == "" {
			out.Message = a.successDefault()
		}
		out.DownloadLabel = pdf.DownloadLabel(pdf.OperationType(st.Result.Operation), st.Result.OutputFile)
		return m.finish(out, conversation.ToneSuccess)
	}

	msg := "Unknown error"
	var options []string
	switch {
	case st.Result != nil && st.Result.Message != "":
		msg = st.Result.Message
	case st.Status == backend.StatusFailed && st.Message != "":
		msg = st.Message
	}
	if st.Result != nil {
		options = st.Result.Options
	}

	if clarify.IsClarification(msg, options) {
		out.State = StateAwaitingClarification
		out.Message = msg
		out.Clarification = &clarify.Context{
			Question:        msg,
			BaseInstruction: a.command,
			Options:         options,
		}
		metrics.IncClarification(string(clarify.ClassifyQuestion(msg)))
		return m.finish(out, conversation.ToneClarify)
	}

	out.State = StateFailed
	out.Reason = ReasonServer
	out.Message = msg
	return m.finish(out, conversation.ToneError)
}
