// Package storage は実行中ジョブのチェックポイントを永続化します。
// プロセスを再起動してもポーリングを再開できるようにするためのもので、
// 保存に失敗してもジョブ自体の正しさには影響しません。
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL はチェックポイントの有効期限です。サーバー側のジョブ保持期間と同じ値です。
const DefaultTTL = 30 * time.Minute

// ErrInvalidCheckpoint は保存しようとしたチェックポイントが不完全な場合に返されます。
var ErrInvalidCheckpoint = errors.New("checkpoint requires jobId")

// Checkpoint は実行中ジョブの識別情報です。同時に保持できるのは1件だけです。
type Checkpoint struct {
	JobID            string    `json:"jobId"`
	Command          string    `json:"command"`
	PrimaryFileName  string    `json:"fileName"`
	EstimatedSeconds int       `json:"estimatedSeconds"`
	StartedAt        time.Time `json:"startedAt"`
}

// Expired は now 時点で ttl を超えているかを返します。
func (c Checkpoint) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(c.StartedAt) > ttl
}

// Store は単一スロットのチェックポイント保存先です。
type Store interface {
	// Save は既存のチェックポイントを上書きします。StartedAt が未設定なら現在時刻を入れます。
	Save(ctx context.Context, cp Checkpoint) error
	// Load は有効なチェックポイントを返します。存在しないか期限切れなら nil です。
	// 期限切れのチェックポイントは読み込み時に削除されます。
	Load(ctx context.Context) (*Checkpoint, error)
	// Clear はチェックポイントを削除します。何度呼んでも安全で、失敗はログに残すだけです。
	Clear(ctx context.Context)
}

// Nop は何も保存しない Store です。
type Nop struct{}

func (Nop) Save(context.Context, Checkpoint) error    { return nil }
func (Nop) Load(context.Context) (*Checkpoint, error) { return nil, nil }
func (Nop) Clear(context.Context)                     {}

func prepare(cp *Checkpoint, now time.Time) error {
	if cp.JobID == "" {
		return ErrInvalidCheckpoint
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = now
	}
	cp.StartedAt = cp.StartedAt.UTC()
	return nil
}
