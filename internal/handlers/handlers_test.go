package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
	"github.com/lehigh-university-libraries/tourguide/internal/pipeline"
	"github.com/lehigh-university-libraries/tourguide/internal/session"
)

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img models.ImagePayload) (*models.AnalysisResult, error) {
	f.calls++
	return f.result, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func newServer(t *testing.T, analyzer Analyzer) (*Handler, *httptest.Server) {
	t.Helper()
	h := New(analyzer, 0)
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)
	return h, server
}

func createSession(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/sessions", "", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if snap.State != session.StateIdle {
		t.Fatalf("Expected new session to be idle, got %s", snap.State)
	}
	return snap.ID
}

func uploadImage(t *testing.T, server *httptest.Server, id string, data []byte) (*http.Response, session.Snapshot) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	resp, err := http.Post(fmt.Sprintf("%s/api/sessions/%s/analyze", server.URL, id), mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("Analyze request failed: %v", err)
	}
	defer resp.Body.Close()

	var snap session.Snapshot
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("Failed to decode snapshot: %v", err)
		}
	}
	return resp, snap
}

func TestAnalyzeWithAudio(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{
		LandmarkLabel:  "Eiffel Tower, Paris, France",
		HistoryText:    "Built for the 1889 World's Fair.",
		NarrationAudio: &models.Audio{MIMEType: "audio/wav", Data: []byte("RIFFdata")},
	}}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	resp, snap := uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if snap.State != session.StateResult || snap.Result.LandmarkLabel != "Eiffel Tower, Paris, France" || !snap.AudioAvailable {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	audioResp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/audio", server.URL, id))
	if err != nil {
		t.Fatalf("Audio request failed: %v", err)
	}
	defer audioResp.Body.Close()
	data, _ := io.ReadAll(audioResp.Body)
	if audioResp.StatusCode != http.StatusOK || string(data) != "RIFFdata" {
		t.Errorf("Unexpected audio response %d %q", audioResp.StatusCode, data)
	}
	if audioResp.Header.Get("Content-Type") != "audio/wav" {
		t.Errorf("Unexpected audio content type %s", audioResp.Header.Get("Content-Type"))
	}

	// a second upload needs a reset first
	resp, _ = uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for upload while holding a result, got %d", resp.StatusCode)
	}

	resetResp, err := http.Post(fmt.Sprintf("%s/api/sessions/%s/reset", server.URL, id), "", nil)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	defer resetResp.Body.Close()
	var afterReset session.Snapshot
	_ = json.NewDecoder(resetResp.Body).Decode(&afterReset)
	if afterReset.State != session.StateIdle || afterReset.Result != nil {
		t.Errorf("Expected idle empty session after reset, got %+v", afterReset)
	}

	audioResp2, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/audio", server.URL, id))
	if err != nil {
		t.Fatalf("Audio request failed: %v", err)
	}
	audioResp2.Body.Close()
	if audioResp2.StatusCode != http.StatusNotFound {
		t.Errorf("Expected audio released after reset, got %d", audioResp2.StatusCode)
	}
}

func TestAnalyzeFatalStage(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &pipeline.StageError{Stage: pipeline.StageIdentify, Err: context.DeadlineExceeded}}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	resp, snap := uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
	if snap.State != session.StateIdle {
		t.Errorf("Expected idle after failure, got %s", snap.State)
	}
	if snap.Error == "" {
		t.Error("Expected an error message for the user")
	}
	if snap.Result != nil {
		t.Error("No result may be shown after a fatal stage")
	}
}

func TestAnalyzeWithoutAudio(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{
		LandmarkLabel:  "Big Ben, London, UK",
		HistoryText:    "The Great Bell...",
		NarrationError: "narrate stage failed: quota exceeded",
	}}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	resp, snap := uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if snap.State != session.StateResult || snap.AudioAvailable {
		t.Errorf("Expected result without audio, got %+v", snap)
	}
	if snap.Error != "" {
		t.Error("Narration failure must not surface as an error")
	}

	audioResp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/audio", server.URL, id))
	if err != nil {
		t.Fatalf("Audio request failed: %v", err)
	}
	defer audioResp.Body.Close()
	body, _ := io.ReadAll(audioResp.Body)
	if audioResp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "Audio unavailable") {
		t.Errorf("Expected Audio unavailable, got %d %q", audioResp.StatusCode, body)
	}
}

func TestAnalyzeMalformedImage(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	resp, snap := uploadImage(t, server, id, []byte("this is not a picture"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if snap.State != session.StateIdle || snap.Error == "" {
		t.Errorf("Expected idle with error, got %+v", snap)
	}
	if analyzer.calls != 0 {
		t.Error("Analyzer must not run for malformed input")
	}
}

func TestAnalyzeBusySession(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h, server := newServer(t, analyzer)
	id := createSession(t, server)

	sess, _ := h.sessionStore.Get(id)
	if _, err := sess.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	resp, _ := uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
	if analyzer.calls != 0 {
		t.Error("Analyzer must not run while another analysis is in flight")
	}
}

func TestAnalyzeJSONDataURL(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{LandmarkLabel: "Unknown Location", HistoryText: "History not available."}}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	body := fmt.Sprintf(`{"image_data":"data:image/png;base64,%s"}`, encodeBase64(pngBytes(t)))
	resp, err := http.Post(fmt.Sprintf("%s/api/sessions/%s/analyze", server.URL, id), "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Analyze request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if analyzer.calls != 1 {
		t.Errorf("Expected one analysis, got %d", analyzer.calls)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, server := newServer(t, &fakeAnalyzer{})

	resp, err := http.Get(server.URL + "/api/sessions/missing")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteAndList(t *testing.T) {
	_, server := newServer(t, &fakeAnalyzer{})
	id := createSession(t, server)
	createSession(t, server)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(server.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	defer listResp.Body.Close()
	var list []session.Snapshot
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 session after delete, got %d", len(list))
	}
}

func TestStaticAndHealthcheck(t *testing.T) {
	_, server := newServer(t, &fakeAnalyzer{})

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("Index request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Tour Guide") {
		t.Errorf("Expected index page, got %d", resp.StatusCode)
	}

	health, err := http.Get(server.URL + "/healthcheck")
	if err != nil {
		t.Fatalf("Healthcheck failed: %v", err)
	}
	defer health.Body.Close()
	ok, _ := io.ReadAll(health.Body)
	if string(ok) != "OK" {
		t.Errorf("Expected OK, got %q", ok)
	}

	missing, err := http.Get(server.URL + "/nope.js")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown asset, got %d", missing.StatusCode)
	}
}

func TestFailureResponse(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{&pipeline.MalformedInputError{Reason: "empty"}, http.StatusBadRequest},
		{&pipeline.StageError{Stage: pipeline.StageIdentify, Err: io.EOF}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", &pipeline.StageError{Stage: pipeline.StageHistory, Err: io.EOF}), http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, msg := failureResponse(tt.err)
		if status != tt.wantStatus || msg == "" {
			t.Errorf("%v: expected %d, got %d %q", tt.err, tt.wantStatus, status, msg)
		}
	}
}

type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
	result  *models.AnalysisResult
}

func (b *blockingAnalyzer) Analyze(ctx context.Context, img models.ImagePayload) (*models.AnalysisResult, error) {
	close(b.started)
	<-b.release
	return b.result, nil
}

func TestAnalyzeStaleRunDoesNotOverwriteNewerRun(t *testing.T) {
	analyzer := &blockingAnalyzer{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  &models.AnalysisResult{LandmarkLabel: "Stale Landmark", HistoryText: "old"},
	}
	h, server := newServer(t, analyzer)
	id := createSession(t, server)
	sess, _ := h.sessionStore.Get(id)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "photo.png")
	_, _ = part.Write(pngBytes(t))
	_ = mw.Close()

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(fmt.Sprintf("%s/api/sessions/%s/analyze", server.URL, id), mw.FormDataContentType(), &body)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	<-analyzer.started
	sess.Reset()
	newer, err := sess.Begin()
	if err != nil {
		t.Fatalf("Begin for newer run failed: %v", err)
	}
	close(analyzer.release)

	if status := <-done; status != http.StatusConflict {
		t.Errorf("Expected 409 for the stale run, got %d", status)
	}
	if sess.State() != session.StateAnalyzing {
		t.Fatalf("Newer run must still own the session, got %s", sess.State())
	}

	if err := sess.Complete(newer, &models.AnalysisResult{LandmarkLabel: "Current Landmark"}); err != nil {
		t.Fatalf("Complete for newer run failed: %v", err)
	}
	if label := sess.Snapshot().Result.LandmarkLabel; label != "Current Landmark" {
		t.Errorf("Expected Current Landmark, got %s", label)
	}
}

func TestAnalyzeLogsImageDimensions(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{LandmarkLabel: "Arc de Triomphe", HistoryText: "1836."}}
	_, server := newServer(t, analyzer)
	id := createSession(t, server)

	resp, _ := uploadImage(t, server, id, pngBytes(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(logs.String(), "width=2 height=2") {
		t.Errorf("Expected image dimensions in log, got:\n%s", logs.String())
	}
}
