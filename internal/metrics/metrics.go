// Package metrics はジョブライフサイクルの Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_agent_jobs_total",
			Help: "Job attempts by terminal outcome.",
		},
		[]string{"outcome"}, // completed, clarification, failed, expired, timeout, cancelled
	)
	pollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paper_agent_polls_total",
		Help: "Status requests issued while polling jobs.",
	})
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_agent_uploads_total",
			Help: "Submissions by upload mode.",
		},
		[]string{"mode"}, // fresh, reuse, fallback
	)
	uploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paper_agent_upload_bytes_total",
		Help: "File bytes sent to the backend.",
	})
	clarificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_agent_clarifications_total",
			Help: "Clarification replies composed, by question kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, pollsTotal, uploadsTotal, uploadBytesTotal, clarificationsTotal)
}

// IncJob は終了したジョブ試行を記録します。
func IncJob(outcome string) { jobsTotal.WithLabelValues(norm(outcome)).Inc() }

// IncPoll はステータス確認の発行を記録します。
func IncPoll() { pollsTotal.Inc() }

// IncUpload はアップロード方式を記録します。
func IncUpload(mode string) { uploadsTotal.WithLabelValues(norm(mode)).Inc() }

// AddUploadBytes は送信したファイルのバイト数を加算します。
func AddUploadBytes(n int64) {
	if n > 0 {
		uploadBytesTotal.Add(float64(n))
	}
}

// IncClarification は確認応答の合成を記録します。
func IncClarification(kind string) { clarificationsTotal.WithLabelValues(norm(kind)).Inc() }

// Handler は /metrics 用のハンドラーを返します。
func Handler() http.Handler { return promhttp.Handler() }

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
