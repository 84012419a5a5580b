package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

func TestCaseDetailsReturnsRecord(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{record: cnr.CaseRecord{
		Reference:    "ABCD1234567890EF",
		RecordStatus: cnr.RecordStatusComplete,
		Documents: []cnr.DocumentReference{
			{OrderDate: "30-01-2025", URL: "gs://bucket/ABCD1234567890EF/intrim_orders/order_1.pdf"},
		},
	}}
	server := NewServer(acq, Options{}, zap.NewNop())

	rec := post(server, "/get_case_details_status", `{"cnr_number":"ABCD1234567890EF"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ABCD1234567890EF", body["cnr_number"])
	require.Equal(t, "complete", body["status"])
	links := body["s3_links"].([]any)
	require.Len(t, links, 1)
	require.Equal(t, "30-01-2025", links[0].(map[string]any)["order_date"])

	calls := acq.calls()
	require.Len(t, calls, 1)
	require.True(t, calls[0].Cutoff.IsZero())
}

func TestCaseDetailsPassesCutoff(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{}
	server := NewServer(acq, Options{}, zap.NewNop())

	rec := post(server, "/api/update-cnr-details",
		`{"cnr_number":"ABCD1234567890EF","next_hearing_date":"30th January 2025"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	calls := acq.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "30th January 2025", calls[0].Cutoff.String())
	require.Equal(t, time.Date(2025, time.January, 30, 0, 0, 0, 0, time.UTC), calls[0].Cutoff.Date())
}

func TestCaseDetailsRejectsBadInputWithoutAcquiring(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"missing cnr", "/get_case_details_status", `{}`, http.StatusBadRequest, msgMissingReference},
		{"numeric cnr", "/get_case_details_status", `{"cnr_number":1234}`, http.StatusBadRequest, msgMissingReference},
		{"invalid json", "/get_case_details_status", `{invalid`, http.StatusBadRequest, msgMissingReference},
		{"short cnr", "/get_case_details_status", `{"cnr_number":"short123"}`, http.StatusOK, msgInvalidReference},
		{"bad cutoff", "/get_case_details_status",
			`{"cnr_number":"ABCD1234567890EF","next_hearing_date":"30-01-2025"}`, http.StatusBadRequest, msgInvalidCutoff},
		{"non-string cutoff", "/get_case_details_status",
			`{"cnr_number":"ABCD1234567890EF","next_hearing_date":20250130}`, http.StatusBadRequest, msgInvalidCutoff},
		{"cutoff required", "/api/update-cnr-details",
			`{"cnr_number":"ABCD1234567890EF"}`, http.StatusBadRequest, msgInvalidCutoff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			acq := &fakeAcquirer{}
			server := NewServer(acq, Options{}, zap.NewNop())
			rec := post(server, tc.path, tc.body)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.msg, errorBody(t, rec))
			require.Empty(t, acq.calls())
		})
	}
}

func TestCaseDetailsMapsAcquisitionErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", fmt.Errorf("acquire: %w", cnr.ErrRecordNotFound), http.StatusOK, msgNotFound},
		{"exhausted", fmt.Errorf("acquire: %w", cnr.ErrRetriesExhausted), http.StatusInternalServerError, msgUnexpected},
		{"unexpected", cnr.ErrUnexpected, http.StatusInternalServerError, msgUnexpected},
		{"raw automation error", errors.New("cdp: target closed"), http.StatusInternalServerError, msgUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := NewServer(&fakeAcquirer{err: tc.err}, Options{}, zap.NewNop())
			rec := post(server, "/get_case_details_status", `{"cnr_number":"ABCD1234567890EF"}`)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.msg, errorBody(t, rec))
			require.NotContains(t, rec.Body.String(), "cdp")
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeAcquirer{}, Options{}, zap.NewNop())

	rec := get(server, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","message":"Api running."}`, rec.Body.String())

	rec = get(server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(server, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsFailedChecks(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeAcquirer{}, Options{
		ReadyChecks: map[string]func(context.Context) error{
			"redis":    func(context.Context) error { return errors.New("connection refused") },
			"postgres": func(context.Context) error { return nil },
		},
	}, zap.NewNop())

	rec := get(server, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis")
	require.NotContains(t, rec.Body.String(), "postgres")
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{}
	server := NewServer(acq, Options{AuthEnabled: true, APIKey: "secret"}, zap.NewNop())

	rec := post(server, "/get_case_details_status", `{"cnr_number":"ABCD1234567890EF"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/get_case_details_status",
		bytes.NewBufferString(`{"cnr_number":"ABCD1234567890EF"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(server, "/health")
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")
	require.Len(t, acq.calls(), 1)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeAcquirer{}, Options{}, zap.NewNop())
	rec := get(server, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeAcquirer{panicWith: "boom"}, Options{}, zap.NewNop())
	rec := post(server, "/get_case_details_status", `{"cnr_number":"ABCD1234567890EF"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, msgUnexpected, errorBody(t, rec))
}

func post(s *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// --- fakes ---

type fakeAcquirer struct {
	mu        sync.Mutex
	requests  []cnr.Request
	record    cnr.CaseRecord
	err       error
	panicWith any
}

func (f *fakeAcquirer) Acquire(_ context.Context, req cnr.Request) (cnr.CaseRecord, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.record, f.err
}

func (f *fakeAcquirer) calls() []cnr.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cnr.Request(nil), f.requests...)
}
