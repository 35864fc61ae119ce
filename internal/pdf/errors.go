package pdf

import "errors"

var (
	// ErrUnsupportedType は対応していない種類のファイルが選択された場合に返されます。
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrMixedTypes は PDF・画像・DOCX が混在している場合に返されます。
	ErrMixedTypes = errors.New("mixed file types")
)

// Error はユーザーに表示できるメッセージ付きのエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
