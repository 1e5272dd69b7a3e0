package extract

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every API call made through a Transport.
const DefaultTimeout = 60 * time.Second

// HTTPFetcher abstracts HTTP calls for testability
type HTTPFetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPFetcher wraps http.Client for production use
type RealHTTPFetcher struct {
	client *http.Client
}

// NewRealHTTPFetcher creates a production HTTP fetcher
func NewRealHTTPFetcher(client *http.Client) HTTPFetcher {
	return &RealHTTPFetcher{client: client}
}

func (f *RealHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// APIError is a non-2xx answer from the extraction service.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(e.Body))
}

// Transport carries the shared authentication for every client: a bearer token and,
// when set, the Project-Id header.
type Transport struct {
	baseURL   string
	apiKey    string
	projectID string
	fetcher   HTTPFetcher
}

// NewTransport creates a Transport with real HTTP and the default timeout.
func NewTransport(baseURL, apiKey, projectID string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
	return NewTransportWithFetcher(baseURL, apiKey, projectID, NewRealHTTPFetcher(client))
}

// NewTransportWithFetcher creates a Transport with injectable HTTP for testing
func NewTransportWithFetcher(baseURL, apiKey, projectID string, fetcher HTTPFetcher) *Transport {
	return &Transport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		projectID: projectID,
		fetcher:   fetcher,
	}
}

// JSON sends in (when non-nil) as a JSON body to the API path and decodes the answer into
// out (when non-nil).
func (t *Transport) JSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	t.authorize(req)

	resp, err := t.fetcher.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Stream copies the body of an absolute URL (typically a presigned content URL) into w.
// No credentials are attached.
func (t *Transport) Stream(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return 0, fmt.Errorf("invalid content url %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.fetcher.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(req, resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (t *Transport) authorize(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	if t.projectID != "" {
		req.Header.Set("Project-Id", t.projectID)
	}
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
}

// MockHTTPFetcher simulates HTTP responses for testing. Responses are keyed by
// "METHOD url"; several responses for one key are served in order and the last repeats.
type MockHTTPFetcher struct {
	mu        sync.Mutex
	responses map[string][]mockResponse
	requests  []RecordedRequest
}

type mockResponse struct {
	status int
	body   string
	err    error
}

// RecordedRequest is a request seen by MockHTTPFetcher.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// NewMockHTTPFetcher creates a mock HTTP fetcher
func NewMockHTTPFetcher() *MockHTTPFetcher {
	return &MockHTTPFetcher{responses: make(map[string][]mockResponse)}
}

// AddResponse registers a mock response
func (m *MockHTTPFetcher) AddResponse(method, urlStr string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + urlStr
	m.responses[key] = append(m.responses[key], mockResponse{status: statusCode, body: body})
}

// AddError registers a transport error
func (m *MockHTTPFetcher) AddError(method, urlStr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + urlStr
	m.responses[key] = append(m.responses[key], mockResponse{err: err})
}

// Requests returns the requests seen so far
func (m *MockHTTPFetcher) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

func (m *MockHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	key := req.Method + " " + req.URL.String()

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone(), Body: body})
	queue := m.responses[key]
	var r mockResponse
	found := len(queue) > 0
	if found {
		r = queue[0]
		if len(queue) > 1 {
			m.responses[key] = queue[1:]
		}
	}
	m.mu.Unlock()

	if !found {
		// Return 404 for unknown URLs
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("Not Found")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}
