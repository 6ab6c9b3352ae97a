package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/skorper/harmony/internal/domain"
)

// mockRecorder implements domain.Recorder for testing.
type mockRecorder struct {
	mu       sync.Mutex
	requests []domain.RequestRecord
	jobs     []domain.JobOutcome
}

func (m *mockRecorder) RecordRequest(ctx context.Context, rec domain.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, rec)
	return nil
}

func (m *mockRecorder) RecordJob(ctx context.Context, out domain.JobOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, out)
	return nil
}

func setupClient(t *testing.T, h http.Handler) (*Client, *mockRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	rec := &mockRecorder{}
	c, err := New(srv.URL, Options{Recorder: rec, RunID: "run-1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, rec
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com", "http://"} {
		if _, err := New(raw, Options{}); err == nil {
			t.Errorf("New(%q) error = nil, want error", raw)
		}
	}
}

func TestClient_GetWithRepeatedParams(t *testing.T) {
	var gotPath, gotRawPath string
	var gotQuery url.Values
	c, rec := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRawPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query()
		fmt.Fprint(w, "payload")
	}))

	query := url.Values{
		"subset":    {"lat(20:60)", "lon(-140:-50)"},
		"granuleId": {"G1"},
	}
	path := "/C1/ogc-api-coverages/1.0.0/collections/" + url.PathEscape("science/grids/amp") + "/coverage/rangeset"

	resp, err := c.Get(context.Background(), "GDAL", path, query)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "payload" {
		t.Errorf("resp = %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Length != int64(len("payload")) {
		t.Errorf("Length = %d", resp.Length)
	}
	if gotPath != "/C1/ogc-api-coverages/1.0.0/collections/science/grids/amp/coverage/rangeset" {
		t.Errorf("path = %q", gotPath)
	}
	if gotRawPath != path {
		t.Errorf("escaped path = %q, want %q", gotRawPath, path)
	}
	if len(gotQuery["subset"]) != 2 {
		t.Errorf("subset = %v, want 2 values", gotQuery["subset"])
	}

	if len(rec.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(rec.requests))
	}
	r := rec.requests[0]
	if r.Name != "GDAL" || r.RunID != "run-1" || r.Method != http.MethodGet || r.StatusCode != 200 || r.Failed() {
		t.Errorf("record = %+v", r)
	}
}

func TestClient_PostForm(t *testing.T) {
	var subset, filename, contentType, content string
	c, _ := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		subset = r.FormValue("subset")
		f, hdr, err := r.FormFile("shapefile")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		filename = hdr.Filename
		contentType = hdr.Header.Get("Content-Type")
		content = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.PostForm(context.Background(), "Shapefile", "/C1/coverage",
		url.Values{"subset": {`time("2009-01-09T00:00:00Z":"2009-01-09T01:00:00Z")`}},
		[]FormFile{{
			Field:       "shapefile",
			Filename:    "poly.shp.zip",
			ContentType: "application/shapefile+zip",
			Content:     []byte("zipdata"),
		}})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	if subset != `time("2009-01-09T00:00:00Z":"2009-01-09T01:00:00Z")` {
		t.Errorf("subset = %q", subset)
	}
	if filename != "poly.shp.zip" || contentType != "application/shapefile+zip" || content != "zipdata" {
		t.Errorf("file = %q %q %q", filename, contentType, content)
	}
}

func TestClient_PostForm_MissingFile(t *testing.T) {
	c, rec := setupClient(t, http.NotFoundHandler())

	_, err := c.PostForm(context.Background(), "Shapefile", "/x", nil,
		[]FormFile{{Field: "shapefile", Path: "/does/not/exist.zip"}})
	if err == nil {
		t.Fatal("PostForm() error = nil, want error")
	}
	if len(rec.requests) != 1 || rec.requests[0].Error == "" {
		t.Errorf("records = %+v, want one failed record", rec.requests)
	}
}

func TestClient_CancelledRequestNotRecorded(t *testing.T) {
	c, rec := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, "Slow", "/x", nil); err == nil {
		t.Fatal("Get() error = nil, want deadline error")
	}
	if len(rec.requests) != 0 {
		t.Errorf("records = %+v, want none for a cancelled request", rec.requests)
	}
}

func TestClient_TransportErrorRecorded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	rec := &mockRecorder{}
	c, err := New(base, Options{Recorder: rec})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "Down", "/x", nil); err == nil {
		t.Fatal("Get() error = nil, want connection error")
	}
	if len(rec.requests) != 1 || !rec.requests[0].Failed() {
		t.Errorf("records = %+v, want one failed record", rec.requests)
	}
}

func TestClient_HTTPError(t *testing.T) {
	c, rec := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	resp, err := c.Get(context.Background(), "Broken", "/x", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Get() error = %v, want HTTPError", err)
	}
	if httpErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d", httpErr.StatusCode)
	}
	if resp == nil || resp.StatusCode != 500 {
		t.Errorf("resp = %+v, want 500 response", resp)
	}
	if !rec.requests[0].Failed() {
		t.Error("record not marked failed")
	}
}

func TestClient_FetchStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    domain.JobStatus
		wantErr error
	}{
		{"running", `{"jobID":"j1","status":"running","progress":40}`, domain.StatusRunning, nil},
		{"successful", `{"jobID":"j1","status":"successful","links":[{"href":"s3://a","rel":"data"}]}`, domain.StatusSuccessful, nil},
		{"not json", `<html>`, "", domain.ErrMalformedStatus},
		{"missing status", `{"jobID":"j1"}`, "", domain.ErrMalformedStatus},
		{"unknown status", `{"jobID":"j1","status":"paused"}`, "", domain.ErrMalformedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			}))

			state, err := c.FetchStatus(context.Background(), c.BaseURL()+"/jobs/j1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FetchStatus() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && state.Status != tt.want {
				t.Errorf("Status = %q, want %q", state.Status, tt.want)
			}
			if rec.requests[0].Name != StatusRequestName {
				t.Errorf("record name = %q, want %q", rec.requests[0].Name, StatusRequestName)
			}
		})
	}
}

func TestClient_ParseSubmission(t *testing.T) {
	c, err := New("https://harmony.test/", Options{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		resp    *Response
		wantURL string
		wantErr error
	}{
		{
			name: "self link",
			resp: &Response{
				URL:  "https://harmony.test/C1/coverage",
				Body: []byte(`{"jobID":"j1","status":"accepted","links":[{"href":"https://harmony.test/jobs/j1?x=1","rel":"self"}]}`),
			},
			wantURL: "https://harmony.test/jobs/j1?x=1",
		},
		{
			name: "redirected to job",
			resp: &Response{
				URL:  "https://harmony.test/jobs/j2",
				Body: []byte(`{"jobID":"j2","status":"running"}`),
			},
			wantURL: "https://harmony.test/jobs/j2",
		},
		{
			name: "fallback to jobs route",
			resp: &Response{
				URL:  "https://harmony.test/C1/coverage",
				Body: []byte(`{"jobID":"j3","status":"accepted"}`),
			},
			wantURL: "https://harmony.test/jobs/j3",
		},
		{
			name:    "synchronous payload",
			resp:    &Response{Body: []byte{0x89, 'P', 'N', 'G'}},
			wantErr: domain.ErrNotAsync,
		},
		{
			name:    "already complete",
			resp:    &Response{Body: []byte(`{"jobID":"j4","status":"successful"}`)},
			wantErr: domain.ErrNotAsync,
		},
		{
			name:    "no job id",
			resp:    &Response{Body: []byte(`{"status":"running"}`)},
			wantErr: domain.ErrNotAsync,
		},
		{
			name:    "nil",
			wantErr: domain.ErrNotAsync,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := c.ParseSubmission(tt.resp)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSubmission() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && sub.StatusURL != tt.wantURL {
				t.Errorf("StatusURL = %q, want %q", sub.StatusURL, tt.wantURL)
			}
		})
	}
}

func TestClient_FollowsRedirectToJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/C1/coverage", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/jobs/abc", http.StatusSeeOther)
	})
	mux.HandleFunc("/jobs/abc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobID":"abc","status":"accepted"}`)
	})
	c, _ := setupClient(t, mux)

	resp, err := c.Get(context.Background(), "Async", "/C1/coverage", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	sub, err := c.ParseSubmission(resp)
	if err != nil {
		t.Fatalf("ParseSubmission() error = %v", err)
	}
	if sub.StatusURL != c.BaseURL()+"/jobs/abc" {
		t.Errorf("StatusURL = %q", sub.StatusURL)
	}
}

func TestClient_Clone(t *testing.T) {
	c, err := New("http://harmony.test", Options{RunID: "r"})
	if err != nil {
		t.Fatal(err)
	}
	cl := c.Clone()
	if cl.http == c.http || cl.http.Transport == c.http.Transport {
		t.Error("Clone() shares the http client")
	}
	if cl.BaseURL() != c.BaseURL() || cl.opts.RunID != "r" {
		t.Errorf("Clone() = %+v", cl)
	}
}
