// Package session はバックエンドに送るセッションIDを管理します。
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionFilename = "session_id"

var sessionIDPattern = regexp.MustCompile(`^sess_\d+_[0-9a-f]+$`)

// LoadOrCreate は dir に保存されたセッションIDを返します。
// 保存されていない場合は新しく作成して保存します。
// 保存に失敗した場合でも、そのプロセス限りのIDを返します。
func LoadOrCreate(dir string) (string, error) {
	path := filepath.Join(dir, sessionFilename)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); Valid(id) {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return NewID(), fmt.Errorf("read session id: %w", err)
	}

	id := NewID()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return id, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return id, fmt.Errorf("write session id: %w", err)
	}
	return id, nil
}

// NewID は sess_<ミリ秒>_<16進数> 形式のIDを生成します。
func NewID() string {
	return fmt.Sprintf("sess_%d_%s", time.Now().UnixMilli(), randomHex())
}

// Valid はIDの形式が正しいかを返します。
func Valid(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func randomHex() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// 乱数が取れない環境では UUID のランダム部を使う
		u := uuid.New()
		return hex.EncodeToString(u[10:16])
	}
	return hex.EncodeToString(buf)
}
