package devapi

import (
	"time"

	"github.com/yourusername/paper-agent/internal/backend"
)

// Record はジョブの現在状態を表します。
type Record struct {
	JobID           string          `json:"jobId"`
	Prompt          string          `json:"prompt"`
	SessionID       string          `json:"sessionId,omitempty"`
	ContextQuestion string          `json:"contextQuestion,omitempty"`
	InputSource     string          `json:"inputSource,omitempty"`
	Files           []string        `json:"files"`
	Plan            Plan            `json:"-"`
	Status          backend.Status  `json:"status"`
	Polls           int             `json:"polls"`
	Result          *backend.Result `json:"result,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

func (r *Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// remainingSeconds は終端までの推定秒数です。推定できない場合は nil です。
func (r *Record) remainingSeconds() *float64 {
	if r.Plan.SecondsPerPoll <= 0 {
		return nil
	}
	left := float64(r.Plan.Polls-r.Polls+1) * r.Plan.SecondsPerPoll
	if left < 0 {
		left = 0
	}
	return &left
}

func (r *Record) clone() Record {
	c := *r
	c.Files = append([]string(nil), r.Files...)
	if r.Result != nil {
		res := *r.Result
		res.Options = append([]string(nil), r.Result.Options...)
		c.Result = &res
	}
	return c
}
