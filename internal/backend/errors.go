package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound はジョブや参照ファイルがサーバーに存在しない場合に返されます。
	ErrNotFound = errors.New("not found")
	// ErrMalformedResponse は応答を解釈できない場合に返されます。
	ErrMalformedResponse = errors.New("invalid server response")
	// ErrUploadTimeout はアップロードが上限時間を超えた場合に返されます。
	ErrUploadTimeout = errors.New("upload timed out")
)

// Error は 2xx 以外の応答を表します。
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("Server error (%d)", e.StatusCode)
}

// Is は 404 を ErrNotFound として扱えるようにします。
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
