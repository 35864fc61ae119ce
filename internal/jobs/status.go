package jobs

import (
	"fmt"
	"math"
	"strings"

	"github.com/yourusername/paper-agent/internal/backend"
)

const defaultStatusMessage = "Processing..."

// FormatRemaining は残り秒数を表示用の文字列にします。0 以下なら空文字です。
func FormatRemaining(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return ""
	}
	s := int(math.Round(seconds))
	switch {
	case s <= 0:
		return ""
	case s < 60:
		return fmt.Sprintf("~%ds", s)
	case s < 120:
		return "~1 min"
	}
	return fmt.Sprintf("~%d mins", int(math.Round(float64(s)/60)))
}

// StatusText はポーリング応答からステータス行を作ります。
func StatusText(message string, remaining *float64, status backend.Status) string {
	base := strings.TrimSpace(message)
	if base == "" {
		base = defaultStatusMessage
	}
	eta := ""
	if remaining != nil {
		eta = FormatRemaining(*remaining)
	}
	if eta == "" {
		if status == backend.StatusPending {
			return base + " (queueing...)"
		}
		return base
	}
	return base + " (ETA " + eta + ")"
}
