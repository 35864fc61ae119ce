package pdf

import (
	"math"
	"regexp"
)

var (
	ocrPattern      = regexp.MustCompile(`(?i)ocr`)
	docxPattern     = regexp.MustCompile(`(?i)docx|word`)
	compressPattern = regexp.MustCompile(`(?i)compress`)
	imagePattern    = regexp.MustCompile(`(?i)png|jpg|jpeg|image`)
)

const (
	parseOverheadSeconds = 3
	minEstimateSeconds   = 5
)

// EstimateWaitTime はアップロード後のサーバー処理にかかる秒数の目安を返します。
func EstimateWaitTime(sizeMB float64, command string) int {
	var base float64
	switch {
	case ocrPattern.MatchString(command):
		base = 10 + sizeMB*0.5
	case docxPattern.MatchString(command):
		base = 8 + sizeMB*0.4
	case compressPattern.MatchString(command):
		if sizeMB > 50 {
			base = 15 + sizeMB*0.3
		} else {
			base = 8 + sizeMB*0.25
		}
	case imagePattern.MatchString(command):
		base = 5 + sizeMB*0.3
	default:
		base = 3 + sizeMB*0.1
	}
	base += parseOverheadSeconds
	return max(minEstimateSeconds, int(math.Round(base)))
}
