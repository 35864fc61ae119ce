// Package backend は文書処理サーバーの HTTP API を呼び出すクライアントです。
package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status はサーバーが報告するジョブの状態です。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal は結果を持つ終端状態かを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ResultSuccess は成功した結果の status 値です。
const ResultSuccess = "success"

// Result はジョブ終了時の結果です。Options がある場合は確認要求を意味します。
type Result struct {
	Status     string   `json:"status"`
	OutputFile string   `json:"output_file,omitempty"`
	Message    string   `json:"message,omitempty"`
	Operation  string   `json:"operation,omitempty"`
	Options    []string `json:"options,omitempty"`
}

// Succeeded は結果が成功かを返します。
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}

// SubmitResponse は /submit と /submit-reuse の応答です。
type SubmitResponse struct {
	JobID         string   `json:"job_id"`
	UploadedFiles []string `json:"uploaded_files"`
}

// StatusResponse は /job/{id}/status の応答です。
type StatusResponse struct {
	Status             Status          `json:"status"`
	Message            string          `json:"message,omitempty"`
	EstimatedRemaining *float64        `json:"estimated_remaining,omitempty"`
	RAM                json.RawMessage `json:"ram,omitempty"`
	Result             *Result         `json:"result,omitempty"`
}

// Telemetry はサーバーのメモリ使用状況です。
type Telemetry struct {
	RSSMB     float64 `json:"rss_mb"`
	PeakRSSMB float64 `json:"peak_rss_mb"`
	Level     string  `json:"level"`
}

// ParseTelemetry は RAM 情報を読み取ります。形式が違う場合は ok=false です。
func ParseTelemetry(raw json.RawMessage) (Telemetry, bool) {
	if len(raw) == 0 {
		return Telemetry{}, false
	}
	var t Telemetry
	if err := json.Unmarshal(raw, &t); err != nil {
		return Telemetry{}, false
	}
	if t.RSSMB == 0 && t.PeakRSSMB == 0 && t.Level == "" {
		return Telemetry{}, false
	}
	return t, true
}

// Summary は表示用の短い文字列を返します。
func (t Telemetry) Summary() string {
	level := "Unknown"
	switch strings.ToLower(t.Level) {
	case "high":
		level = "High"
	case "medium":
		level = "Medium"
	case "low":
		level = "Low"
	}
	mb := t.RSSMB
	if mb == 0 {
		mb = t.PeakRSSMB
	}
	if mb == 0 {
		return "RAM: " + level
	}
	return fmt.Sprintf("RAM: %s (%.0fMB)", level, mb)
}
