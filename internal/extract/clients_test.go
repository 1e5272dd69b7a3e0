package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/stencil/pkg/schemas"
)

const api = "https://api.test"

func TestTransportHeaders(t *testing.T) {
	mock := NewMockHTTPFetcher()
	mock.AddResponse(http.MethodGet, api+"/api/v1/files/f1", 200, `{"id":"f1","name":"a.pdf"}`)

	tr := NewTransportWithFetcher(api+"/", "secret", "proj-1", mock)
	var meta FileMetadata
	require.NoError(t, tr.JSON(context.Background(), http.MethodGet, "/api/v1/files/f1", nil, &meta))
	assert.Equal(t, "a.pdf", meta.Name)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer secret", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "proj-1", reqs[0].Header.Get("Project-Id"))
}

func TestTransportOmitsEmptyProject(t *testing.T) {
	mock := NewMockHTTPFetcher()
	mock.AddResponse(http.MethodGet, api+"/ping", 204, "")

	tr := NewTransportWithFetcher(api, "secret", "", mock)
	require.NoError(t, tr.JSON(context.Background(), http.MethodGet, "/ping", nil, nil))
	assert.Empty(t, mock.Requests()[0].Header.Get("Project-Id"))
}

func TestTransportAPIError(t *testing.T) {
	mock := NewMockHTTPFetcher()
	mock.AddResponse(http.MethodGet, api+"/api/v1/files/f1", 500, "boom")

	store := NewHTTPClients(NewTransportWithFetcher(api, "k", "", mock), "agent", "coll").Files
	_, err := store.GetFile(context.Background(), "f1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "boom")

	_, err = store.GetFile(context.Background(), "unknown")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestTransportStreamRejectsRelativeURL(t *testing.T) {
	tr := NewTransportWithFetcher(api, "k", "", NewMockHTTPFetcher())
	_, err := tr.Stream(context.Background(), "not a url", nil)
	assert.Error(t, err)
}

func TestMockSequence(t *testing.T) {
	mock := NewMockHTTPFetcher()
	mock.AddError(http.MethodGet, api+"/x", errors.New("dial tcp: refused"))
	mock.AddResponse(http.MethodGet, api+"/x", 200, `{}`)

	tr := NewTransportWithFetcher(api, "", "", mock)
	assert.Error(t, tr.JSON(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.NoError(t, tr.JSON(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.NoError(t, tr.JSON(context.Background(), http.MethodGet, "/x", nil, nil))
}

func TestHTTPWorkflowEndToEnd(t *testing.T) {
	mock := NewMockHTTPFetcher()
	mock.AddResponse(http.MethodGet, api+"/api/v1/files/f1", 200, `{"id":"f1","name":"doc.pdf"}`)
	mock.AddResponse(http.MethodGet, api+"/api/v1/files/f1/content", 200, `{"url":"https://storage.test/doc.pdf?sig=1"}`)
	mock.AddResponse(http.MethodGet, "https://storage.test/doc.pdf?sig=1", 200, "PDFDATA")
	mock.AddResponse(http.MethodGet, api+"/api/v1/extraction/extraction-agents/by-name/review", 200, `{"id":"agent-1"}`)
	mock.AddResponse(http.MethodPost, api+"/api/v1/extraction/run", 200, `{
		"data": {"document_type": "memo", "summary": "s", "key_points": []},
		"extraction_metadata": {"field_metadata": {"summary": {"confidence": 0.7}}}
	}`)
	mock.AddResponse(http.MethodPost, api+"/api/v1/beta/agent-data/:search", 200, `{"items":[{"id":"old"}]}`)
	mock.AddResponse(http.MethodDelete, api+"/api/v1/beta/agent-data/old", 204, "")
	mock.AddResponse(http.MethodPost, api+"/api/v1/beta/agent-data", 200, `{"id":"new-item"}`)

	clients := NewHTTPClients(NewTransportWithFetcher(api, "key", "proj", mock), "review", "extraction-review")
	doc, err := schemas.Map("ExtractionSchema")
	require.NoError(t, err)
	w, err := New(clients, doc, Options{Collection: "extraction-review", Delay: time.Millisecond, TempDir: t.TempDir()})
	require.NoError(t, err)

	result, err := w.Run(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "new-item", result.ItemID)
	assert.Equal(t, StatusPendingReview, result.Status)

	byURL := map[string]RecordedRequest{}
	for _, r := range mock.Requests() {
		byURL[r.Method+" "+r.URL] = r
	}
	download := byURL["GET https://storage.test/doc.pdf?sig=1"]
	assert.Empty(t, download.Header.Get("Authorization"), "presigned downloads carry no credentials")

	run := byURL["POST "+api+"/api/v1/extraction/run"]
	assert.Contains(t, run.Body, `"extraction_agent_id":"agent-1"`)
	assert.Contains(t, run.Body, "UERGREFUQQ==")

	search := byURL["POST "+api+"/api/v1/beta/agent-data/:search"]
	assert.Contains(t, search.Body, `"file_hash":{"eq":"`+sha("PDFDATA")+`"}`)
	assert.Contains(t, search.Body, `"collection":"extraction-review"`)

	create := byURL["POST "+api+"/api/v1/beta/agent-data"]
	assert.Contains(t, create.Body, `"status":"pending_review"`)
	assert.Contains(t, create.Body, `"confidence":{"summary":0.7}`)
	assert.Contains(t, create.Body, `"deployment_name":"review"`)
}
