package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/paper-agent/internal/pdf"
)

const (
	// DefaultUploadTimeout はアップロード全体の上限時間です。
	DefaultUploadTimeout = 10 * time.Minute

	requestTimeout = 30 * time.Second
	maxErrorBody   = 64 * 1024
)

// Options は Client の設定です。
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	UploadTimeout time.Duration
	Logger        zerolog.Logger
}

// Client はバックエンド API のクライアントです。
type Client struct {
	baseURL       string
	http          *http.Client
	uploadTimeout time.Duration
	logger        zerolog.Logger
}

// NewClient は Client を作成します。
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		http:          httpClient,
		uploadTimeout: timeout,
		logger:        opts.Logger,
	}
}

// SubmitRequest は新規アップロードと再利用送信の共通入力です。
type SubmitRequest struct {
	// Files は新規アップロード時に送るファイルです。
	Files []pdf.File
	// FileNames は再利用時に送るアップロード済みファイル名です。
	FileNames       []string
	Prompt          string
	SessionID       string
	ContextQuestion string
	InputSource     string
}

func (r SubmitRequest) writeFields(mw *multipart.Writer) error {
	fields := [][2]string{
		{"prompt", r.Prompt},
		{"session_id", r.SessionID},
		{"context_question", r.ContextQuestion},
		{"input_source", r.InputSource},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

// Submit はファイルをアップロードしてジョブを作成します。
// progress にはアップロード済みの割合が通知されます。
func (c *Client) Submit(ctx context.Context, req SubmitRequest, progress pdf.ProgressReporter) (*SubmitResponse, error) {
	if len(req.Files) == 0 {
		return nil, errors.New("no files to upload")
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.uploadTimeout, ErrUploadTimeout)
	defer cancel()

	var total int64
	for _, f := range req.Files {
		total += f.Size
	}

	counter := pdf.NewProgressCounter(total, "upload", progress)
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(mw, req, counter))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", pr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out SubmitResponse
	if err := c.do(httpReq, &out); err != nil {
		if errors.Is(context.Cause(ctx), ErrUploadTimeout) {
			return nil, ErrUploadTimeout
		}
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("%w: missing job_id", ErrMalformedResponse)
	}
	counter.Done()
	c.logger.Debug().Str("job_id", out.JobID).Int64("bytes", counter.BytesRead()).Msg("upload finished")
	return &out, nil
}

func writeUpload(mw *multipart.Writer, req SubmitRequest, counter *pdf.ProgressCounter) error {
	for _, f := range req.Files {
		if err := copyFilePart(mw, f, counter); err != nil {
			return err
		}
	}
	if err := req.writeFields(mw); err != nil {
		return err
	}
	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, f pdf.File, counter *pdf.ProgressCounter) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	part, err := mw.CreateFormFile("files", f.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, counter.Reader(src))
	return err
}

// SubmitReuse はアップロード済みファイルを参照してジョブを作成します。
// ファイルがサーバーから消えている場合は ErrNotFound に一致するエラーを返します。
func (c *Client) SubmitReuse(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if len(req.FileNames) == 0 {
		return nil, errors.New("no uploaded files to reuse")
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		err := mw.WriteField("file_names", strings.Join(req.FileNames, ","))
		if err == nil {
			err = req.writeFields(mw)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit-reuse", pr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out SubmitResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("%w: missing job_id", ErrMalformedResponse)
	}
	if len(out.UploadedFiles) == 0 {
		out.UploadedFiles = append([]string(nil), req.FileNames...)
	}
	return &out, nil
}

// Status はジョブの状態を取得します。
func (c *Client) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobID, "status"), nil)
	if err != nil {
		return nil, err
	}
	var out StatusResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel はサーバー側のジョブ取り消しを依頼します。
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobURL(jobID, "cancel"), nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

// RAM はサーバーのメモリ使用状況を取得します。
func (c *Client) RAM(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ram", nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download は成果物を dir に保存し、保存先のパスを返します。
func (c *Client) Download(ctx context.Context, ref, dir string) (string, error) {
	if ref == "" {
		return "", errors.New("download reference is empty")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+url.PathEscape(ref), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp)
	}

	name := filepath.Base(ref)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("download %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *Client) jobURL(jobID, action string) string {
	return fmt.Sprintf("%s/job/%s/%s", c.baseURL, url.PathEscape(jobID), action)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch d := body.Detail.(type) {
		case string:
			apiErr.Detail = d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				apiErr.Detail = string(b)
			}
		}
	}
	return apiErr
}
