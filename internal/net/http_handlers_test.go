package net

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rewind/server/internal/plan"
	"rewind/server/internal/timeline"
)

// fakeTimeline is a scripted Timeline for handler tests.
type fakeTimeline struct {
	status       timeline.Status
	previewErr   error
	summary      plan.Summary
	rewindErr    error
	rewindResult timeline.RewindResult

	rewindSeconds  []int
	previewSeconds []int
	frozen         bool
	cleared        bool
}

func (f *fakeTimeline) Status() timeline.Status { return f.status }

func (f *fakeTimeline) Preview(seconds int) (plan.Summary, error) {
	f.previewSeconds = append(f.previewSeconds, seconds)
	if f.previewErr != nil {
		return plan.Summary{}, f.previewErr
	}
	return f.summary, nil
}

func (f *fakeTimeline) Rewind(_ context.Context, seconds int) (timeline.RewindResult, error) {
	f.rewindSeconds = append(f.rewindSeconds, seconds)
	if f.rewindErr != nil {
		return f.rewindResult, f.rewindErr
	}
	return f.rewindResult, nil
}

func (f *fakeTimeline) Freeze(context.Context)   { f.frozen = true }
func (f *fakeTimeline) Unfreeze(context.Context) { f.frozen = false }
func (f *fakeTimeline) Clear(context.Context)    { f.cleared = true }

func newHandler(tl Timeline) http.Handler {
	return NewHTTPHandler(tl, nil, HTTPHandlerConfig{})
}

func TestStatusEndpoint(t *testing.T) {
	tl := &fakeTimeline{status: timeline.Status{State: "recording", Recording: true, FrameCount: 42}}
	handler := newHandler(tl)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		ServerTime int64           `json:"serverTime"`
		Timeline   timeline.Status `json:"timeline"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode status payload: %v", err)
	}
	if payload.Timeline.FrameCount != 42 || !payload.Timeline.Recording {
		t.Fatalf("unexpected status payload: %+v", payload.Timeline)
	}
	if payload.ServerTime == 0 {
		t.Fatalf("expected serverTime populated")
	}
}

func TestPreviewEndpoint(t *testing.T) {
	tl := &fakeTimeline{summary: plan.Summary{FrameCount: 10, CellCount: 3}}
	handler := newHandler(tl)

	req := httptest.NewRequest(http.MethodGet, "/preview?seconds=5", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(tl.previewSeconds) != 1 || tl.previewSeconds[0] != 5 {
		t.Fatalf("expected preview for 5 seconds, got %v", tl.previewSeconds)
	}

	var summary plan.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.CellCount != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestPreviewValidation(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		err      error
		wantCode int
	}{
		{name: "missing seconds", target: "/preview", wantCode: http.StatusBadRequest},
		{name: "malformed seconds", target: "/preview?seconds=abc", wantCode: http.StatusBadRequest},
		{name: "window too large", target: "/preview?seconds=99", err: timeline.ErrWindowTooLarge, wantCode: http.StatusBadRequest},
		{name: "no history", target: "/preview?seconds=5", err: timeline.ErrNoHistory, wantCode: http.StatusNotFound},
		{name: "rewind in progress", target: "/preview?seconds=5", err: timeline.ErrRewindInProgress, wantCode: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newHandler(&fakeTimeline{previewErr: tc.err})
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, resp.Code)
			}
		})
	}
}

func TestRewindEndpoint(t *testing.T) {
	tl := &fakeTimeline{rewindResult: timeline.RewindResult{
		Success:       true,
		StepsRewound:  40,
		CellsRestored: 7,
	}}
	handler := newHandler(tl)

	body := bytes.NewReader([]byte(`{"seconds":2}`))
	req := httptest.NewRequest(http.MethodPost, "/rewind", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(tl.rewindSeconds) != 1 || tl.rewindSeconds[0] != 2 {
		t.Fatalf("expected rewind for 2 seconds, got %v", tl.rewindSeconds)
	}

	var result timeline.RewindResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode rewind result: %v", err)
	}
	if !result.Success || result.StepsRewound != 40 || result.CellsRestored != 7 {
		t.Fatalf("unexpected rewind result: %+v", result)
	}
}

func TestRewindEndpointMethodAndErrors(t *testing.T) {
	handler := newHandler(&fakeTimeline{})
	req := httptest.NewRequest(http.MethodGet, "/rewind", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.Code)
	}

	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "invalid window", err: timeline.ErrInvalidWindow, wantCode: http.StatusBadRequest},
		{name: "no history", err: timeline.ErrNoHistory, wantCode: http.StatusNotFound},
		{name: "in progress", err: timeline.ErrRewindInProgress, wantCode: http.StatusConflict},
		{name: "closed", err: timeline.ErrClosed, wantCode: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newHandler(&fakeTimeline{rewindErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/rewind", bytes.NewReader([]byte(`{"seconds":1}`)))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, resp.Code)
			}
		})
	}
}

func TestRewindApplyFaultStillReturnsResult(t *testing.T) {
	tl := &fakeTimeline{
		rewindErr: timeline.ErrApplyFault,
		rewindResult: timeline.RewindResult{
			Success:  false,
			Warnings: []string{"internal fault: storage backend gone"},
		},
	}
	handler := newHandler(tl)

	req := httptest.NewRequest(http.MethodPost, "/rewind", bytes.NewReader([]byte(`{"seconds":1}`)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected fault to return the structured result, got %d", resp.Code)
	}
	var result timeline.RewindResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Success || len(result.Warnings) == 0 {
		t.Fatalf("expected failed result with warnings, got %+v", result)
	}
}

func TestFreezeUnfreezeClear(t *testing.T) {
	tl := &fakeTimeline{}
	handler := newHandler(tl)

	post := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := post("/freeze"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from freeze, got %d", resp.Code)
	}
	if !tl.frozen {
		t.Fatalf("expected freeze to reach the timeline")
	}
	if resp := post("/unfreeze"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from unfreeze, got %d", resp.Code)
	}
	if tl.frozen {
		t.Fatalf("expected unfreeze to reach the timeline")
	}
	if resp := post("/clear"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from clear, got %d", resp.Code)
	}
	if !tl.cleared {
		t.Fatalf("expected clear to reach the timeline")
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newHandler(&fakeTimeline{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("expected ok health response, got %d %q", resp.Code, resp.Body.String())
	}
}
