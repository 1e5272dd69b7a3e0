package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// FileMetadata describes an uploaded file.
type FileMetadata struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileStore reads uploaded files.
type FileStore interface {
	GetFile(ctx context.Context, id string) (*FileMetadata, error)
	// ContentURL returns a short-lived URL for the file's bytes.
	ContentURL(ctx context.Context, id string) (string, error)
	Download(ctx context.Context, contentURL string, w io.Writer) (int64, error)
}

// ExtractionRun is the extraction agent's answer for one document.
type ExtractionRun struct {
	Data               map[string]interface{} `json:"data"`
	ExtractionMetadata map[string]interface{} `json:"extraction_metadata"`
}

// Extractor runs the extraction agent over a document.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (*ExtractionRun, error)
}

// Record is an extracted-data item as stored in the collection.
type Record struct {
	Data       map[string]interface{} `json:"data"`
	Status     string                 `json:"status"`
	FileID     string                 `json:"file_id"`
	FileName   string                 `json:"file_name"`
	FileHash   string                 `json:"file_hash"`
	Confidence map[string]interface{} `json:"confidence"`
}

// StoredItem is a record reference returned by a search.
type StoredItem struct {
	ID string `json:"id"`
}

// DataStore persists extracted records.
type DataStore interface {
	FindByFileHash(ctx context.Context, hash string) ([]StoredItem, error)
	Delete(ctx context.Context, id string) error
	Create(ctx context.Context, record Record) (string, error)
}

// Clients are the service handles a workflow runs against. They are built once by the
// caller and shared.
type Clients struct {
	Files     FileStore
	Extractor Extractor
	Data      DataStore
}

func (c Clients) validate() error {
	if c.Files == nil || c.Extractor == nil || c.Data == nil {
		return errors.New("extraction clients are incomplete: files, extractor and data are required")
	}
	return nil
}

// NewHTTPClients builds the HTTP-backed clients over a shared transport.
func NewHTTPClients(t *Transport, agentName, collection string) Clients {
	return Clients{
		Files:     &HTTPFileStore{t: t},
		Extractor: &HTTPExtractor{t: t, agentName: agentName},
		Data:      &HTTPDataStore{t: t, deployment: agentName, collection: collection},
	}
}

// HTTPFileStore implements FileStore over the files API.
type HTTPFileStore struct {
	t *Transport
}

func (s *HTTPFileStore) GetFile(ctx context.Context, id string) (*FileMetadata, error) {
	var meta FileMetadata
	if err := s.t.JSON(ctx, http.MethodGet, "/api/v1/files/"+url.PathEscape(id), nil, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("file %s has no name", id)
	}
	return &meta, nil
}

func (s *HTTPFileStore) ContentURL(ctx context.Context, id string) (string, error) {
	var presigned struct {
		URL string `json:"url"`
	}
	if err := s.t.JSON(ctx, http.MethodGet, "/api/v1/files/"+url.PathEscape(id)+"/content", nil, &presigned); err != nil {
		return "", err
	}
	if presigned.URL == "" {
		return "", fmt.Errorf("file %s has no content url", id)
	}
	return presigned.URL, nil
}

func (s *HTTPFileStore) Download(ctx context.Context, contentURL string, w io.Writer) (int64, error) {
	return s.t.Stream(ctx, contentURL, w)
}

// HTTPExtractor implements Extractor against a named extraction agent. The agent id is
// looked up once and reused.
type HTTPExtractor struct {
	t         *Transport
	agentName string

	mu      sync.Mutex
	agentID string
}

func (e *HTTPExtractor) agent(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agentID != "" {
		return e.agentID, nil
	}
	var agent struct {
		ID string `json:"id"`
	}
	path := "/api/v1/extraction/extraction-agents/by-name/" + url.PathEscape(e.agentName)
	if err := e.t.JSON(ctx, http.MethodGet, path, nil, &agent); err != nil {
		return "", fmt.Errorf("failed to look up extraction agent %s: %w", e.agentName, err)
	}
	e.agentID = agent.ID
	return e.agentID, nil
}

func (e *HTTPExtractor) Extract(ctx context.Context, filename string, content []byte) (*ExtractionRun, error) {
	agentID, err := e.agent(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]interface{}{
		"extraction_agent_id": agentID,
		"file": map[string]string{
			"filename": filename,
			"data":     base64.StdEncoding.EncodeToString(content),
		},
	}
	var run ExtractionRun
	if err := e.t.JSON(ctx, http.MethodPost, "/api/v1/extraction/run", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// HTTPDataStore implements DataStore over the agent data API.
type HTTPDataStore struct {
	t          *Transport
	deployment string
	collection string
}

func (d *HTTPDataStore) FindByFileHash(ctx context.Context, hash string) ([]StoredItem, error) {
	req := map[string]interface{}{
		"deployment_name": d.deployment,
		"collection":      d.collection,
		"filter": map[string]interface{}{
			"file_hash": map[string]string{"eq": hash},
		},
	}
	var page struct {
		Items []StoredItem `json:"items"`
	}
	if err := d.t.JSON(ctx, http.MethodPost, "/api/v1/beta/agent-data/:search", req, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (d *HTTPDataStore) Delete(ctx context.Context, id string) error {
	return d.t.JSON(ctx, http.MethodDelete, "/api/v1/beta/agent-data/"+url.PathEscape(id), nil, nil)
}

func (d *HTTPDataStore) Create(ctx context.Context, record Record) (string, error) {
	req := map[string]interface{}{
		"deployment_name": d.deployment,
		"collection":      d.collection,
		"data":            record,
	}
	var created StoredItem
	if err := d.t.JSON(ctx, http.MethodPost, "/api/v1/beta/agent-data", req, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}
