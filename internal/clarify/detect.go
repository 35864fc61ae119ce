package clarify

import (
	"regexp"
	"strings"
)

var interrogativeOpening = regexp.MustCompile(`(?i)^(how|which|what|would you)\b`)

// LooksLikeQuestion はバックエンドのメッセージが質問の形をしているかを判定します。
// 末尾が "?" か、how / which / what / would you で始まる場合に true です。
// 文面からの推測なので、疑問形の失敗メッセージも質問として扱われます。
func LooksLikeQuestion(message string) bool {
	s := strings.TrimSpace(message)
	if s == "" {
		return false
	}
	return strings.HasSuffix(s, "?") || interrogativeOpening.MatchString(s)
}

// IsClarification は成功以外の結果を確認要求として扱うべきかを判定します。
func IsClarification(message string, options []string) bool {
	return len(options) > 0 || LooksLikeQuestion(message)
}
