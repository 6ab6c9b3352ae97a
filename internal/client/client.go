package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skorper/harmony/internal/domain"
)

// StatusRequestName is the accounting name of job status polls.
const StatusRequestName = "Job status"

// maxBodyBytes bounds how much of a response body is kept in memory; the
// remainder is drained and only counted.
const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Transport TransportOptions
	Recorder  domain.Recorder
	RunID     string
}

// Client issues named requests against the API and records each of them.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
}

// Request describes one named API call.
type Request struct {
	Name   string
	Method string
	// Path is relative to the base URL unless it is an absolute http(s) URL.
	Path  string
	Query url.Values
	Form  url.Values
	Files []FormFile
}

// FormFile is a file attached to a multipart form body.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Path        string
	Content     []byte
}

// Response is a fully read API response.
type Response struct {
	Name       string
	StatusCode int
	Header     http.Header
	Body       []byte
	Length     int64
	// URL is the final URL after redirects.
	URL     string
	Elapsed time.Duration
}

// HTTPError is returned for 4xx and 5xx responses.
type HTTPError struct {
	Name       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Name, e.StatusCode, strings.TrimSpace(body))
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "harmony-load"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(opts),
		opts:    opts,
	}, nil
}

func newHTTPClient(opts Options) *http.Client {
	return &http.Client{
		Transport: newTransport(opts.Transport),
		Timeout:   opts.Timeout,
	}
}

// Clone returns a client with the same settings and its own connection pool.
func (c *Client) Clone() *Client {
	return &Client{
		baseURL: c.baseURL,
		http:    newHTTPClient(c.opts),
		opts:    c.opts,
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a named GET with query parameters.
func (c *Client) Get(ctx context.Context, name, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Name: name, Method: http.MethodGet, Path: path, Query: query})
}

// PostForm issues a named multipart POST.
func (c *Client) PostForm(ctx context.Context, name, path string, form url.Values, files []FormFile) (*Response, error) {
	return c.Do(ctx, Request{Name: name, Method: http.MethodPost, Path: path, Form: form, Files: files})
}

// Do executes req, records it under req.Name and returns the read response.
// A non-nil Response is returned along with an *HTTPError for error statuses.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target := c.resolve(req.Path, req.Query)
	started := time.Now()

	hreq, err := c.newRequest(ctx, req, target)
	if err != nil {
		c.record(ctx, req, target, 0, time.Since(started), 0, err)
		return nil, fmt.Errorf("%s: build request: %w", req.Name, err)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		// Requests cut off by the caller are not recorded.
		if ctx.Err() == nil {
			c.record(ctx, req, target, 0, time.Since(started), 0, err)
		}
		return nil, fmt.Errorf("%s: %w", req.Name, err)
	}
	defer resp.Body.Close()

	body, length, err := readBody(resp.Body)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() == nil {
			c.record(ctx, req, target, resp.StatusCode, elapsed, length, err)
		}
		return nil, fmt.Errorf("%s: read body: %w", req.Name, err)
	}

	out := &Response{
		Name:       req.Name,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Length:     length,
		URL:        resp.Request.URL.String(),
		Elapsed:    elapsed,
	}

	if resp.StatusCode >= 400 {
		httpErr := &HTTPError{Name: req.Name, StatusCode: resp.StatusCode, Body: string(body)}
		c.record(ctx, req, target, resp.StatusCode, elapsed, length, httpErr)
		return out, httpErr
	}

	c.record(ctx, req, target, resp.StatusCode, elapsed, length, nil)
	return out, nil
}

// FetchStatus fetches and decodes one job status payload.
func (c *Client) FetchStatus(ctx context.Context, statusURL string) (*domain.JobState, error) {
	resp, err := c.Get(ctx, StatusRequestName, statusURL, nil)
	if err != nil {
		return nil, err
	}
	return DecodeState(resp.Body)
}

// ParseSubmission extracts the job to wait for from an asynchronous response.
func (c *Client) ParseSubmission(resp *Response) (*domain.Submission, error) {
	if resp == nil {
		return nil, domain.ErrNotAsync
	}
	state, err := DecodeState(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", resp.Name, domain.ErrNotAsync, err)
	}
	if state.JobID == "" || state.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: %w (job %q, status %q)", resp.Name, domain.ErrNotAsync, state.JobID, state.Status)
	}

	statusURL := state.Link("self")
	if statusURL == "" && strings.Contains(resp.URL, "/jobs/") {
		statusURL = resp.URL
	}
	if statusURL == "" {
		statusURL = c.baseURL + "/jobs/" + url.PathEscape(state.JobID)
	}

	return &domain.Submission{
		JobID:     state.JobID,
		StatusURL: statusURL,
		Status:    state.Status,
	}, nil
}

// DecodeState decodes a job status payload and checks its status.
func DecodeState(body []byte) (*domain.JobState, error) {
	var state domain.JobState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedStatus, err)
	}
	if !state.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedStatus, state.Status)
	}
	return &state, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

func (c *Client) newRequest(ctx context.Context, req Request, target string) (*http.Request, error) {
	var body io.Reader
	contentType := ""

	if len(req.Form) > 0 || len(req.Files) > 0 {
		buf, ct, err := multipartBody(req.Form, req.Files)
		if err != nil {
			return nil, err
		}
		body = buf
		contentType = ct
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("User-Agent", c.opts.UserAgent)
	hreq.Header.Set("Accept", "*/*")
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	return hreq, nil
}

func multipartBody(form url.Values, files []FormFile) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}

	for _, f := range files {
		content := f.Content
		if content == nil {
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return nil, "", fmt.Errorf("read %s: %w", f.Field, err)
			}
			content = data
		}
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func readBody(r io.Reader) ([]byte, int64, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, int64(len(body)), err
	}
	rest, err := io.Copy(io.Discard, r)
	return body, int64(len(body)) + rest, err
}

func (c *Client) record(ctx context.Context, req Request, target string, code int, elapsed time.Duration, length int64, err error) {
	if c.opts.Recorder == nil {
		return
	}
	rec := domain.RequestRecord{
		RunID:      c.opts.RunID,
		Name:       req.Name,
		Method:     req.Method,
		URL:        target,
		StatusCode: code,
		Elapsed:    elapsed,
		Length:     length,
		Timestamp:  time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// Accounting must outlive a cancelled scenario context.
	if rerr := c.opts.Recorder.RecordRequest(context.WithoutCancel(ctx), rec); rerr != nil {
		log.Warn().Err(rerr).Str("request", req.Name).Msg("record request")
	}
}
