package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	errs "github.com/groupsense/groupsense/internal/core/errors"
)

const (
	testModel            = "standard"
	expectedErrGotNil    = "expected error, got nil"
	unexpectedErrFmt     = "unexpected error: %v"
	failedToWriteResp    = "failed to write response: %v"
	testBatchID          = "b-1"
	testGroupName        = "Support Group"
	testSummaryNullField = `{"alerts": null, "summary": null, "sentiment_score": null}`
)

func newTestClient(t *testing.T, baseURL string) *httpClient {
	t.Helper()

	logger := zerolog.Nop()

	return newHTTPClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   testModel,
		Timeout: 5 * time.Second,
		RPS:     100,
	}, &logger)
}

func testRequest() *Request {
	return &Request{
		BatchID:        testBatchID,
		OrganizationID: "org-1",
		GroupName:      testGroupName,
		AgentPreset:    AgentPreset{Name: "moderator", Description: "watches for trouble"},
		OrganizationContext: OrganizationContext{
			Name: "Acme",
			Plan: "pro",
		},
		Messages: []RequestMessage{
			{ID: "m-1", Author: "a1", Text: "hello", Timestamp: "2026-02-10T10:00:00Z"},
		},
	}
}

func TestAnalyze_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		if req.BatchID != testBatchID {
			t.Errorf("batch_id = %q, want %q", req.BatchID, testBatchID)
		}

		if req.AgentPreset.Name != "moderator" {
			t.Errorf("agent_preset.name = %q, want %q", req.AgentPreset.Name, "moderator")
		}

		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}

		w.WriteHeader(http.StatusOK)

		_, err := w.Write([]byte(`{"alerts": [{"title": "Spam wave", "severity": "high", "evidence": "msg"}], "summary": "quiet day", "sentiment_score": 0}`))
		if err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)

	analysis, err := c.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}

	if len(analysis.Alerts) != 1 || analysis.Alerts[0].Title != "Spam wave" {
		t.Errorf("unexpected alerts: %+v", analysis.Alerts)
	}

	if analysis.Summary == nil || *analysis.Summary != "quiet day" {
		t.Errorf("unexpected summary: %v", analysis.Summary)
	}

	// 0 is a valid sentiment score and must survive decoding as non-nil.
	if analysis.SentimentScore == nil || *analysis.SentimentScore != 0 {
		t.Errorf("unexpected sentiment score: %v", analysis.SentimentScore)
	}
}

func TestAnalyze_AllFieldsOptional(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)

		_, err := w.Write([]byte(testSummaryNullField))
		if err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)

	analysis, err := c.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}

	if analysis.Alerts != nil || analysis.Summary != nil || analysis.SentimentScore != nil {
		t.Errorf("expected empty analysis, got %+v", analysis)
	}
}

func TestAnalyze_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)

	_, err := c.Analyze(context.Background(), testRequest())
	if err == nil {
		t.Fatal(expectedErrGotNil)
	}

	if !errors.Is(err, errs.ErrGatewayStatus) {
		t.Errorf("expected ErrGatewayStatus, got %v", err)
	}
}

func TestAnalyze_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)

		_, err := w.Write([]byte("not json"))
		if err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)

	if _, err := c.Analyze(context.Background(), testRequest()); err == nil {
		t.Fatal(expectedErrGotNil)
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	logger := zerolog.Nop()
	c := newHTTPClient(Config{
		BaseURL: ts.URL,
		APIKey:  "test-key",
		Model:   testModel,
		Timeout: 20 * time.Millisecond,
		RPS:     100,
	}, &logger)

	if _, err := c.Analyze(context.Background(), testRequest()); err == nil {
		t.Fatal(expectedErrGotNil)
	}
}

func TestNew_MockSelection(t *testing.T) {
	logger := zerolog.Nop()

	if _, ok := New(Config{APIKey: ""}, &logger).(*mockClient); !ok {
		t.Error("expected mock client for empty API key")
	}

	if _, ok := New(Config{APIKey: "mock"}, &logger).(*mockClient); !ok {
		t.Error("expected mock client for mock API key")
	}

	if _, ok := New(Config{APIKey: "real", BaseURL: "http://x"}, &logger).(*httpClient); !ok {
		t.Error("expected http client for real API key")
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	plain := strings.Repeat("a", 10)
	if got := truncate(plain, 20); got != plain {
		t.Errorf("short string changed: %q", got)
	}

	// A multibyte rune straddles the cut point.
	s := strings.Repeat("a", 9) + "語語"
	got := truncate(s, 10)

	if !utf8.ValidString(got) {
		t.Errorf("truncated string is not valid UTF-8: %q", got)
	}

	if got != strings.Repeat("a", 9) {
		t.Errorf("expected cut at the rune boundary, got %q", got)
	}
}
