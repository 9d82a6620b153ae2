package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ideaengine/ideaengine/internal/api"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/pkg/config"
)

func newTestServer(t *testing.T) (*api.Server, *oracle.FakeOracle) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ideaengine-test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"
	fake := oracle.NewFakeOracle()
	return api.NewServer(db, fake, cfg), fake
}

func postJSON(t *testing.T, server *api.Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestCreateIdeaSuccess(t *testing.T) {
	server, _ := newTestServer(t)
	rec := postJSON(t, server, "/api/v1/ideas", api.CreateIdeaRequest{Text: "We should expand public transit funding citywide."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestCreateIdeaInvalidLength covers E6: too-short text is rejected
// with a 400, not a 500.
func TestCreateIdeaInvalidLength(t *testing.T) {
	server, _ := newTestServer(t)
	rec := postJSON(t, server, "/api/v1/ideas", api.CreateIdeaRequest{Text: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid length, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp api.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success {
		t.Errorf("expected success=false on validation error")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTopicsEndpointListsCreatedTopics(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server, "/api/v1/ideas", api.CreateIdeaRequest{Text: "We should expand public transit funding citywide."})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/topics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReclusterEndpointReturnsCount(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/recluster", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
