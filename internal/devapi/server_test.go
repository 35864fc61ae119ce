package devapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/paper-agent/internal/backend"
	"github.com/yourusername/paper-agent/internal/pdf"
)

func newTestServer(t *testing.T, planner Planner) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := New(Options{Dir: t.TempDir(), Planner: planner, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return srv, srv.Router()
}

func postSubmit(t *testing.T, router *gin.Engine, prompt string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if prompt != "" {
		if err := mw.WriteField("prompt", prompt); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.WriteField("input_source", "text"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postReuse(router *gin.Engine, prompt string, names ...string) *httptest.ResponseRecorder {
	form := url.Values{}
	form.Set("prompt", prompt)
	form.Set("file_names", strings.Join(names, ","))
	req := httptest.NewRequest(http.MethodPost, "/submit-reuse", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getStatus(t *testing.T, router *gin.Engine, jobID string) (int, backend.StatusResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/job/"+jobID+"/status", nil))
	var st backend.StatusResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatalf("failed to decode status: %v", err)
		}
	}
	return rec.Code, st
}

func decodeSubmit(t *testing.T, rec *httptest.ResponseRecorder) backend.SubmitResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var resp backend.SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	return resp
}

func TestSubmitAndPollToCompletion(t *testing.T) {
	srv, router := newTestServer(t, DefaultPlanner(2))

	resp := decodeSubmit(t, postSubmit(t, router, "merge these", map[string]string{"a.pdf": "%PDF-1.4 a"}))
	if resp.JobID == "" || len(resp.UploadedFiles) != 1 || !strings.HasSuffix(resp.UploadedFiles[0], "_a.pdf") {
		t.Fatalf("unexpected submit response: %+v", resp)
	}
	job, ok := srv.Job(resp.JobID)
	if !ok || job.InputSource != "text" || job.Prompt != "merge these" {
		t.Fatalf("unexpected record: %+v", job)
	}

	code, st := getStatus(t, router, resp.JobID)
	if code != http.StatusOK || st.Status != backend.StatusPending || st.EstimatedRemaining != nil {
		t.Fatalf("first poll: code=%d %+v", code, st)
	}
	if _, ok := backend.ParseTelemetry(st.RAM); !ok {
		t.Fatalf("expected ram telemetry, got %s", st.RAM)
	}

	_, st = getStatus(t, router, resp.JobID)
	if st.Status != backend.StatusProcessing || st.EstimatedRemaining == nil || *st.EstimatedRemaining != 1 {
		t.Fatalf("second poll: %+v", st)
	}

	_, st = getStatus(t, router, resp.JobID)
	if st.Status != backend.StatusCompleted || !st.Result.Succeeded() {
		t.Fatalf("third poll: %+v", st)
	}
	if st.Result.Operation != string(pdf.OperationMerge) || !strings.HasSuffix(st.Result.OutputFile, "_merge.pdf") {
		t.Fatalf("unexpected result: %+v", st.Result)
	}

	// 終端後の確認は同じ結果を返し、回数も進めない
	_, again := getStatus(t, router, resp.JobID)
	if again.Result == nil || again.Result.OutputFile != st.Result.OutputFile {
		t.Fatalf("terminal status changed: %+v", again)
	}
	if job, _ := srv.Job(resp.JobID); job.Polls != 3 {
		t.Fatalf("polls = %d, want 3", job.Polls)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/"+st.Result.OutputFile, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status: %d", rec.Code)
	}
	if rec.Body.String() != "%PDF-1.4 a" {
		t.Fatalf("unexpected download body: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, st.Result.OutputFile) {
		t.Fatalf("unexpected content disposition: %s", cd)
	}
}

func TestSubmitValidation(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := postSubmit(t, router, "compress", nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "No files uploaded") {
		t.Fatalf("missing files: %d %s", rec.Code, rec.Body.String())
	}
	rec = postSubmit(t, router, "", map[string]string{"a.pdf": "x"})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "detail") {
		t.Fatalf("missing prompt: %d %s", rec.Code, rec.Body.String())
	}
}

func TestClarificationPlan(t *testing.T) {
	_, router := newTestServer(t, DefaultPlanner(0))

	resp := decodeSubmit(t, postSubmit(t, router, "rotate pages", map[string]string{"a.pdf": "x"}))
	_, st := getStatus(t, router, resp.JobID)
	if st.Status != backend.StatusCompleted || st.Result == nil || st.Result.Succeeded() {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Result.Message != "Which direction or how many degrees?" || len(st.Result.Options) != 3 {
		t.Fatalf("unexpected clarification: %+v", st.Result)
	}
}

func TestFailurePlan(t *testing.T) {
	planner := PlannerFunc(func(string, []string) Plan { return Failure(0, "File is corrupted.") })
	_, router := newTestServer(t, planner)

	resp := decodeSubmit(t, postSubmit(t, router, "compress", map[string]string{"a.pdf": "x"}))
	_, st := getStatus(t, router, resp.JobID)
	if st.Status != backend.StatusFailed || st.Message != "File is corrupted." {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSubmitReuse(t *testing.T) {
	srv, router := newTestServer(t, nil)

	first := decodeSubmit(t, postSubmit(t, router, "compress", map[string]string{"a.pdf": "x"}))
	second := decodeSubmit(t, postReuse(router, "merge", first.UploadedFiles...))
	if second.JobID == first.JobID || len(second.UploadedFiles) != 1 || second.UploadedFiles[0] != first.UploadedFiles[0] {
		t.Fatalf("unexpected reuse response: %+v", second)
	}

	rec := postReuse(router, "merge", "unknown.pdf")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown file: %d", rec.Code)
	}

	srv.ForgetUploads()
	rec = postReuse(router, "merge", first.UploadedFiles...)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "upload again") {
		t.Fatalf("forgotten upload: %d %s", rec.Code, rec.Body.String())
	}

	rec = postReuse(router, "merge")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty file_names: %d", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	_, router := newTestServer(t, DefaultPlanner(10))

	resp := decodeSubmit(t, postSubmit(t, router, "compress", map[string]string{"a.pdf": "x"}))
	getStatus(t, router, resp.JobID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/job/"+resp.JobID+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status: %d", rec.Code)
	}
	_, st := getStatus(t, router, resp.JobID)
	if st.Status != backend.StatusCancelled {
		t.Fatalf("unexpected status after cancel: %+v", st)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/job/missing/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown: %d", rec.Code)
	}
}

func TestStatusUnknownAndExpired(t *testing.T) {
	srv, router := newTestServer(t, nil)

	if code, _ := getStatus(t, router, "missing"); code != http.StatusNotFound {
		t.Fatalf("unknown job: %d", code)
	}

	resp := decodeSubmit(t, postSubmit(t, router, "compress", map[string]string{"a.pdf": "x"}))
	srv.Expire(resp.JobID)
	if code, _ := getStatus(t, router, resp.JobID); code != http.StatusNotFound {
		t.Fatalf("expired job: %d", code)
	}
	if _, ok := srv.Job(resp.JobID); ok {
		t.Fatal("expired job should be dropped")
	}
}

func TestDownloadRejectsUnknownFiles(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/missing.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/..", nil))
	if rec.Code == http.StatusOK {
		t.Fatal("path traversal should be rejected")
	}
}

func TestHealthAndRAM(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ram", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ram: %d", rec.Code)
	}
	tel, ok := backend.ParseTelemetry(rec.Body.Bytes())
	if !ok || tel.Level == "" || tel.PeakRSSMB < tel.RSSMB {
		t.Fatalf("unexpected telemetry: %+v", tel)
	}
}

func TestDefaultPlanner(t *testing.T) {
	planner := DefaultPlanner(1)
	cases := []struct {
		prompt  string
		success bool
		op      pdf.OperationType
	}{
		{"compress to 3mb", true, pdf.OperationCompressToTarget},
		{"compress", true, pdf.OperationCompress},
		{"merge these", true, pdf.OperationMerge},
		{"convert to docx", true, pdf.OperationPDFToDOCX},
		{"rotate 90 degrees", true, pdf.OperationRotate},
		{"rotate left", true, pdf.OperationRotate},
		{"keep pages 1-3", true, pdf.OperationSplit},
		{"delete pages 2", true, pdf.OperationDelete},
		{"rotate pages", false, ""},
		{"delete some pages", false, ""},
		{"do something", false, ""},
	}
	for _, tc := range cases {
		plan := planner.Plan(tc.prompt, nil)
		if plan.Polls != 1 {
			t.Fatalf("Plan(%q).Polls = %d", tc.prompt, plan.Polls)
		}
		if plan.Result.Succeeded() != tc.success {
			t.Fatalf("Plan(%q) success = %v, want %v", tc.prompt, plan.Result.Succeeded(), tc.success)
		}
		if tc.success && plan.Result.Operation != string(tc.op) {
			t.Fatalf("Plan(%q).Operation = %q, want %q", tc.prompt, plan.Result.Operation, tc.op)
		}
	}
}

// minimalPDF はページ数 pages の最小構成の PDF を組み立てます。
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestDefaultPlannerValidatesPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "four.pdf")
	if err := os.WriteFile(path, minimalPDF(4), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	planner := DefaultPlanner(1)
	files := []string{path}

	plan := planner.Plan("delete pages 2", files)
	if !plan.Result.Succeeded() {
		t.Fatalf("expected success, got %+v", plan.Result)
	}
	if want := []pdf.PageRange{{Start: 1, End: 1}, {Start: 3, End: 4}}; !reflect.DeepEqual(plan.Pages, want) {
		t.Fatalf("pages = %+v, want %+v", plan.Pages, want)
	}

	plan = planner.Plan("keep pages 2-3", files)
	if want := []pdf.PageRange{{Start: 2, End: 3}}; !reflect.DeepEqual(plan.Pages, want) {
		t.Fatalf("pages = %+v, want %+v", plan.Pages, want)
	}

	plan = planner.Plan("delete pages 9", files)
	if plan.Status != backend.StatusFailed || !strings.Contains(plan.Result.Message, "out of range") {
		t.Fatalf("expected out of range failure, got %+v", plan)
	}

	plan = planner.Plan("delete pages 1-4", files)
	if plan.Status != backend.StatusFailed || plan.Result.Message != "Cannot delete every page." {
		t.Fatalf("expected failure when every page is deleted, got %+v", plan)
	}

	// ページ数が読めない入力は検証しない
	plan = planner.Plan("delete pages 9", []string{filepath.Join(t.TempDir(), "missing.pdf")})
	if !plan.Result.Succeeded() || len(plan.Pages) != 0 {
		t.Fatalf("expected unchecked success, got %+v", plan)
	}
}
