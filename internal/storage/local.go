package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const checkpointFilename = "checkpoint.json"

// LocalStore はチェックポイントを状態ディレクトリ内の JSON ファイルに保存します。
type LocalStore struct {
	dir    string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewLocalStore は LocalStore を作成します。
func NewLocalStore(dir string, ttl time.Duration, logger zerolog.Logger) *LocalStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalStore{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (s *LocalStore) path() string {
	return filepath.Join(s.dir, checkpointFilename)
}

// Save はチェックポイントを一時ファイル経由で書き込みます。
func (s *LocalStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := prepare(&cp, s.now()); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, checkpointFilename+".*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load は保存済みのチェックポイントを読み込みます。
func (s *LocalStore) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.Clear(ctx)
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.JobID == "" || cp.Expired(s.now(), s.ttl) {
		s.Clear(ctx)
		return nil, nil
	}
	return &cp, nil
}

// Clear はチェックポイントファイルを削除します。
func (s *LocalStore) Clear(ctx context.Context) {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn().Err(err).Str("path", s.path()).Msg("failed to clear checkpoint")
	}
}
