// Package devapi は文書処理サーバーの API をローカルで再現する開発用バックエンドです。
// ジョブはメモリ上に保持し、ステータス確認のたびにプランに沿って1段階ずつ進めます。
package devapi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/pdf"
)

const (
	// DefaultTTL はジョブとアップロード済みファイルの保持期間です。
	DefaultTTL = 30 * time.Minute
	// DefaultPolls は DefaultPlanner が終端までに返す途中経過の回数です。
	DefaultPolls = 3
)

// Options は Server の設定です。
type Options struct {
	// Dir はアップロードと成果物を置くディレクトリです。
	Dir            string
	Planner        Planner
	TTL            time.Duration
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server は開発用バックエンドです。
type Server struct {
	uploadDir string
	outputDir string
	planner   Planner
	ttl       time.Duration
	origins   []string
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*Record
	uploads map[string]string // 保存名 → パス
	peakMB  float64
}

// New は Server を作成します。
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("devapi: dir is required")
	}
	s := &Server{
		uploadDir: filepath.Join(opts.Dir, "uploads"),
		outputDir: filepath.Join(opts.Dir, "outputs"),
		planner:   opts.Planner,
		ttl:       opts.TTL,
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
		now:       time.Now,
		jobs:      make(map[string]*Record),
		uploads:   make(map[string]string),
	}
	if s.planner == nil {
		s.planner = DefaultPlanner(DefaultPolls)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	for _, dir := range []string{s.uploadDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("devapi: create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Router はルーティング済みの gin エンジンを返します。
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(s.origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", handleHealth)
	router.POST("/submit", s.handleSubmit)
	router.POST("/submit-reuse", s.handleSubmitReuse)
	router.GET("/job/:id/status", s.handleStatus)
	router.POST("/job/:id/cancel", s.handleCancel)
	router.GET("/download/:file", s.handleDownload)
	router.GET("/api/ram", s.handleRAM)
	return router
}

// Job はジョブの状態のコピーを返します。
func (s *Server) Job(jobID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Expire はジョブを期限切れにします。以後のステータス確認は 404 になります。
func (s *Server) Expire(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[jobID]; ok {
		rec.ExpiresAt = s.now().Add(-time.Second)
	}
}

// ForgetUploads はアップロード済みファイルをすべて破棄します。
func (s *Server) ForgetUploads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, path := range s.uploads {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("file", name).Msg("failed to remove upload")
		}
		delete(s.uploads, name)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "paper-agent-devapi",
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		abortWithDetail(c, http.StatusBadRequest, "No files uploaded")
		return
	}
	prompt := strings.TrimSpace(c.PostForm("prompt"))
	if prompt == "" {
		abortWithDetail(c, http.StatusBadRequest, "Prompt is required")
		return
	}

	names := make([]string, 0, len(headers))
	paths := make([]string, 0, len(headers))
	for _, fh := range headers {
		stored := uuid.NewString()[:8] + "_" + filepath.Base(fh.Filename)
		dst := filepath.Join(s.uploadDir, stored)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			s.logger.Error().Err(err).Str("file", fh.Filename).Msg("failed to save upload")
			abortWithDetail(c, http.StatusInternalServerError, "Failed to save uploaded file")
			return
		}
		names = append(names, stored)
		paths = append(paths, dst)
	}

	s.mu.Lock()
	for i, name := range names {
		s.uploads[name] = paths[i]
	}
	s.mu.Unlock()

	rec := s.createJob(c, prompt, names)
	c.JSON(http.StatusOK, gin.H{
		"job_id":         rec.JobID,
		"uploaded_files": names,
	})
}

func (s *Server) handleSubmitReuse(c *gin.Context) {
	names := splitNames(c.PostForm("file_names"))
	if len(names) == 0 {
		abortWithDetail(c, http.StatusBadRequest, "file_names is required")
		return
	}
	prompt := strings.TrimSpace(c.PostForm("prompt"))
	if prompt == "" {
		abortWithDetail(c, http.StatusBadRequest, "Prompt is required")
		return
	}

	s.mu.Lock()
	missing := ""
	for _, name := range names {
		path, ok := s.uploads[name]
		if !ok {
			missing = name
			break
		}
		if _, err := os.Stat(path); err != nil {
			delete(s.uploads, name)
			missing = name
			break
		}
	}
	s.mu.Unlock()
	if missing != "" {
		s.logger.Info().Str("file", missing).Msg("reuse requested for unknown upload")
		abortWithDetail(c, http.StatusNotFound, "Files not found. Please upload again.")
		return
	}

	rec := s.createJob(c, prompt, names)
	c.JSON(http.StatusOK, gin.H{
		"job_id":         rec.JobID,
		"uploaded_files": names,
	})
}

func (s *Server) createJob(c *gin.Context, prompt string, files []string) *Record {
	now := s.now()
	rec := &Record{
		JobID:           uuid.NewString(),
		Prompt:          prompt,
		SessionID:       c.PostForm("session_id"),
		ContextQuestion: c.PostForm("context_question"),
		InputSource:     c.PostForm("input_source"),
		Files:           files,
		Plan:            s.planner.Plan(prompt, s.uploadPaths(files)),
		Status:          backend.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	s.mu.Lock()
	s.jobs[rec.JobID] = rec
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", rec.JobID).
		Str("prompt", prompt).
		Strs("files", files).
		Str("input_source", rec.InputSource).
		Msg("job accepted")
	return rec
}

func (s *Server) uploadPaths(names []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		if path, ok := s.uploads[name]; ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// lookupLocked は期限切れのジョブを破棄してから検索します。
func (s *Server) lookupLocked(jobID string) (*Record, bool) {
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	if rec.expired(s.now()) {
		delete(s.jobs, jobID)
		return nil, false
	}
	return rec, true
}

func (s *Server) handleStatus(c *gin.Context) {
	jobID := c.Param("id")
	if strings.TrimSpace(jobID) == "" {
		abortWithDetail(c, http.StatusBadRequest, "job id is required")
		return
	}

	s.mu.Lock()
	rec, ok := s.lookupLocked(jobID)
	if !ok {
		s.mu.Unlock()
		abortWithDetail(c, http.StatusNotFound, "Job not found")
		return
	}
	if rec.Status != backend.StatusCancelled && !rec.Status.Terminal() {
		rec.Polls++
		rec.UpdatedAt = s.now()
		switch {
		case rec.Polls > rec.Plan.Polls:
			s.completeLocked(rec)
		case rec.Polls == 1:
			rec.Status = backend.StatusPending
		default:
			rec.Status = backend.StatusProcessing
		}
	}
	payload := s.statusPayloadLocked(rec)
	s.mu.Unlock()

	c.JSON(http.StatusOK, payload)
}

func (s *Server) statusPayloadLocked(rec *Record) gin.H {
	payload := gin.H{
		"status": rec.Status,
		"ram":    s.ramSnapshotLocked(),
	}
	switch rec.Status {
	case backend.StatusPending:
		payload["message"] = "Waiting in queue..."
	case backend.StatusProcessing:
		payload["message"] = "Processing..."
		if remaining := rec.remainingSeconds(); remaining != nil {
			payload["estimated_remaining"] = *remaining
		}
	case backend.StatusCancelled:
		payload["message"] = "Cancelled"
	default:
		if rec.Result != nil {
			payload["result"] = rec.Result
			if rec.Status == backend.StatusFailed {
				payload["message"] = rec.Result.Message
			}
		}
	}
	return payload
}

// completeLocked はプランの終端結果をジョブに反映し、成功時は成果物を書き出します。
func (s *Server) completeLocked(rec *Record) {
	result := rec.Plan.Result
	status := rec.Plan.Status
	if status == "" {
		status = backend.StatusCompleted
	}
	if result.Status == backend.ResultSuccess && result.OutputFile == "" {
		name, err := s.writeOutputLocked(rec, pdf.OperationType(result.Operation))
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", rec.JobID).Msg("failed to write output")
			status = backend.StatusFailed
			result = backend.Result{Status: "error", Message: "Failed to write output file"}
		} else {
			result.OutputFile = name
		}
	}
	rec.Status = status
	rec.Result = &result
	s.logger.Info().
		Str("job_id", rec.JobID).
		Str("status", string(status)).
		Int("polls", rec.Polls).
		Msg("job finished")
}

// writeOutputLocked は最初の入力ファイルを成果物として書き出します。
// プランにページ指定があればそのページだけを抜き出し、それ以外は複製します。
func (s *Server) writeOutputLocked(rec *Record, op pdf.OperationType) (string, error) {
	if op == "" {
		op = "result"
	}
	name := fmt.Sprintf("%s_%s%s", rec.JobID[:8], op, outputExt(op))
	outPath := filepath.Join(s.outputDir, name)

	if len(rec.Plan.Pages) > 0 && len(rec.Files) > 0 {
		if path, ok := s.uploads[rec.Files[0]]; ok {
			err := pdf.CollectPages(path, outPath, rec.Plan.Pages)
			if err == nil {
				return name, nil
			}
			s.logger.Warn().Err(err).Str("job_id", rec.JobID).Msg("page extraction failed, copying input")
		}
	}

	dst, err := os.Create(outPath)
	if err != nil {
		return "", err
	}

	var src io.ReadCloser
	if len(rec.Files) > 0 {
		if path, ok := s.uploads[rec.Files[0]]; ok {
			src, err = os.Open(path)
			if err != nil {
				s.logger.Warn().Err(err).Str("file", rec.Files[0]).Msg("failed to open source upload")
				src = nil
			}
		}
	}
	if src == nil {
		src = io.NopCloser(strings.NewReader("%PDF-1.4\n%%EOF\n"))
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Server) handleCancel(c *gin.Context) {
	jobID := c.Param("id")
	s.mu.Lock()
	rec, ok := s.lookupLocked(jobID)
	if !ok {
		s.mu.Unlock()
		abortWithDetail(c, http.StatusNotFound, "Job not found")
		return
	}
	if !rec.Status.Terminal() {
		rec.Status = backend.StatusCancelled
		rec.UpdatedAt = s.now()
	}
	status := rec.Status
	s.mu.Unlock()

	s.logger.Info().Str("job_id", jobID).Str("status", string(status)).Msg("cancel requested")
	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": status,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("file")
	if strings.TrimSpace(name) == "" || filepath.Base(name) != name || name == "." || name == ".." {
		abortWithDetail(c, http.StatusBadRequest, "Invalid file name")
		return
	}

	file, err := os.Open(filepath.Join(s.outputDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			abortWithDetail(c, http.StatusNotFound, "File not found")
			return
		}
		abortWithDetail(c, http.StatusInternalServerError, "Failed to open file")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		abortWithDetail(c, http.StatusInternalServerError, "Failed to open file")
		return
	}

	contentType := contentTypeFor(pdf.KindForFilename(name))
	encodedName := url.PathEscape(name)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", name, encodedName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

func (s *Server) handleRAM(c *gin.Context) {
	s.mu.Lock()
	snapshot := s.ramSnapshotLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, snapshot)
}

// ramSnapshotLocked はプロセスのメモリ使用量をバックエンドと同じ形式で返します。
func (s *Server) ramSnapshotLocked() backend.Telemetry {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mb := float64(ms.Sys) / (1024 * 1024)
	if mb > s.peakMB {
		s.peakMB = mb
	}
	level := "low"
	switch {
	case mb >= 1024:
		level = "high"
	case mb >= 512:
		level = "medium"
	}
	return backend.Telemetry{RSSMB: mb, PeakRSSMB: s.peakMB, Level: level}
}

func contentTypeFor(kind pdf.ResultKind) string {
	switch kind {
	case pdf.ResultKindPDF:
		return "application/pdf"
	case pdf.ResultKindZIP:
		return "application/zip"
	case pdf.ResultKindDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case pdf.ResultKindImage:
		return "image/png"
	}
	return "application/octet-stream"
}

func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
