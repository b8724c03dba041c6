package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docforest/docforest/internal/models"
	"github.com/docforest/docforest/internal/storage"
)

// newTestServer boots a full app on the in-memory tier.
func newTestServer(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.StorageTier = "memory"
	app, err := NewApp(context.Background(), t.TempDir(), &cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	srv := httptest.NewServer(NewRouter(app, "test"))
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return app, srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body failed: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Unmarshal %q failed: %v", data, err)
	}
	return v
}

// createNode posts a node and returns its decoded form.
func createNode(t *testing.T, base string, parent models.ID, name string, kind models.NodeKind) *models.Node {
	t.Helper()
	resp, data := do(t, "POST", base+"/api/v1/nodes", map[string]any{
		"parent_id": parent,
		"name":      name,
		"kind":      kind,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create %q = %d: %s", name, resp.StatusCode, data)
	}
	return decode[*models.Node](t, data)
}

func errCode(t *testing.T, data []byte) models.ErrorCode {
	t.Helper()
	var resp struct {
		Error struct {
			Code models.ErrorCode `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("error body %q is not the standard shape: %v", data, err)
	}
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, data := do(t, "GET", srv.URL+"/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
	got := decode[map[string]string](t, data)
	if got["status"] != "ok" || got["tier"] != "memory" || got["version"] != "test" {
		t.Errorf("health body = %v", got)
	}
}

func TestNodeLifecycle(t *testing.T) {
	_, srv := newTestServer(t)

	root := createNode(t, srv.URL, 0, "projects", models.KindContainer)
	if root.Name != "PROJECTS" {
		t.Errorf("root name = %q, want upper-cased", root.Name)
	}
	doc := createNode(t, srv.URL, root.ID, "report", models.KindLeaf)
	if doc.Description != models.DefaultDescription {
		t.Errorf("Description = %q, want placeholder", doc.Description)
	}

	t.Run("get", func(t *testing.T) {
		resp, data := do(t, "GET", srv.URL+"/api/v1/nodes/"+doc.ID.String(), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get = %d", resp.StatusCode)
		}
		if got := decode[*models.Node](t, data); got.Name != "report" {
			t.Errorf("Name = %q, want report", got.Name)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		resp, data := do(t, "GET", srv.URL+"/api/v1/nodes/"+models.NewID().String(), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("get missing = %d, want 404", resp.StatusCode)
		}
		if errCode(t, data) != models.ErrorCodeNotFound {
			t.Errorf("code = %q, want NOT_FOUND", errCode(t, data))
		}
	})

	t.Run("bad id", func(t *testing.T) {
		resp, _ := do(t, "GET", srv.URL+"/api/v1/nodes/not-an-id!", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("bad id = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("rename", func(t *testing.T) {
		resp, data := do(t, "PATCH", srv.URL+"/api/v1/nodes/"+doc.ID.String(), map[string]string{"name": "quarterly report"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("rename = %d: %s", resp.StatusCode, data)
		}
		if got := decode[*models.Node](t, data); got.Name != "quarterly report" {
			t.Errorf("Name = %q", got.Name)
		}
	})

	t.Run("toggle", func(t *testing.T) {
		resp, data := do(t, "POST", srv.URL+"/api/v1/nodes/"+root.ID.String()+"/toggle", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("toggle = %d: %s", resp.StatusCode, data)
		}
		if got := decode[*models.Node](t, data); !got.Expanded {
			t.Error("Expanded = false after toggle")
		}

		// A leaf has nothing to expand.
		resp, _ = do(t, "POST", srv.URL+"/api/v1/nodes/"+doc.ID.String()+"/toggle", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("toggle leaf = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("insert under leaf", func(t *testing.T) {
		resp, data := do(t, "POST", srv.URL+"/api/v1/nodes", map[string]any{
			"parent_id": doc.ID,
			"name":      "impossible",
			"kind":      models.KindLeaf,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("insert under leaf = %d, want 400", resp.StatusCode)
		}
		if errCode(t, data) != models.ErrorCodeInvalidParent {
			t.Errorf("code = %q, want INVALID_PARENT", errCode(t, data))
		}
	})

	t.Run("delete returns subtree count", func(t *testing.T) {
		resp, data := do(t, "DELETE", srv.URL+"/api/v1/nodes/"+root.ID.String(), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete = %d: %s", resp.StatusCode, data)
		}
		if got := decode[map[string]int](t, data); got["removed"] != 2 {
			t.Errorf("removed = %d, want 2", got["removed"])
		}
		resp, _ = do(t, "GET", srv.URL+"/api/v1/nodes/"+doc.ID.String(), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("get after delete = %d, want 404", resp.StatusCode)
		}
	})
}

func TestSelection(t *testing.T) {
	_, srv := newTestServer(t)
	root := createNode(t, srv.URL, 0, "inbox", models.KindContainer)
	doc := createNode(t, srv.URL, root.ID, "letter", models.KindLeaf)

	resp, data := do(t, "PUT", srv.URL+"/api/v1/selection", map[string]any{"id": root.ID})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("select container = %d, want 400: %s", resp.StatusCode, data)
	}

	resp, _ = do(t, "PUT", srv.URL+"/api/v1/selection", map[string]any{"id": doc.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select leaf = %d", resp.StatusCode)
	}
	_, data = do(t, "GET", srv.URL+"/api/v1/selection", nil)
	got := decode[map[string]models.ID](t, data)
	if got["selected"] != doc.ID {
		t.Errorf("selected = %v, want %v", got["selected"], doc.ID)
	}

	// Removing the selected leaf's container clears the selection.
	do(t, "DELETE", srv.URL+"/api/v1/nodes/"+root.ID.String(), nil)
	_, data = do(t, "GET", srv.URL+"/api/v1/selection", nil)
	got = decode[map[string]models.ID](t, data)
	if !got["selected"].IsZero() {
		t.Errorf("selected = %v after removal, want zero", got["selected"])
	}
}

func TestPayload(t *testing.T) {
	app, srv := newTestServer(t)
	root := createNode(t, srv.URL, 0, "docs", models.KindContainer)
	doc := createNode(t, srv.URL, root.ID, "manual", models.KindLeaf)
	payload := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xFF, 0x01}

	put := func(id models.ID, query string, body []byte) *http.Response {
		req, err := http.NewRequest("PUT", srv.URL+"/api/v1/nodes/"+id.String()+"/payload"+query, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest failed: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put payload failed: %v", err)
		}
		_ = resp.Body.Close()
		return resp
	}

	t.Run("put and get", func(t *testing.T) {
		if resp := put(doc.ID, "", payload); resp.StatusCode != http.StatusOK {
			t.Fatalf("put payload = %d", resp.StatusCode)
		}
		resp, data := do(t, "GET", srv.URL+"/api/v1/nodes/"+doc.ID.String()+"/payload", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get payload = %d", resp.StatusCode)
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("payload = %x, want %x", data, payload)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("Content-Type = %q", ct)
		}
		// Upload stamps the leaf.
		if got := app.Forest.FindByID(doc.ID); got.Uploaded.IsZero() {
			t.Error("Uploaded not stamped after payload put")
		}
	})

	t.Run("derived purpose is separate", func(t *testing.T) {
		if resp := put(doc.ID, "?purpose=derived-payload", []byte("extracted text")); resp.StatusCode != http.StatusOK {
			t.Fatalf("put derived = %d", resp.StatusCode)
		}
		_, data := do(t, "GET", srv.URL+"/api/v1/nodes/"+doc.ID.String()+"/payload?purpose=derived-payload", nil)
		if string(data) != "extracted text" {
			t.Errorf("derived = %q", data)
		}
		// The primary payload is untouched.
		_, data = do(t, "GET", srv.URL+"/api/v1/nodes/"+doc.ID.String()+"/payload", nil)
		if !bytes.Equal(data, payload) {
			t.Errorf("primary payload = %x, want %x", data, payload)
		}
	})

	t.Run("container rejects payloads", func(t *testing.T) {
		if resp := put(root.ID, "", payload); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("put on container = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("size limit enforced", func(t *testing.T) {
		app.Config.MaxBlobBytes = 8
		defer func() { app.Config.MaxBlobBytes = storage.DefaultConfig().MaxBlobBytes }()
		if resp := put(doc.ID, "", bytes.Repeat([]byte("x"), 64)); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("oversized put = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("absent payload is 404", func(t *testing.T) {
		other := createNode(t, srv.URL, root.ID, "empty", models.KindLeaf)
		resp, _ := do(t, "GET", srv.URL+"/api/v1/nodes/"+other.ID.String()+"/payload", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("get absent payload = %d, want 404", resp.StatusCode)
		}
	})
}

func TestExportImport(t *testing.T) {
	_, srv := newTestServer(t)
	root := createNode(t, srv.URL, 0, "archive me", models.KindContainer)
	doc := createNode(t, srv.URL, root.ID, "paper", models.KindLeaf)

	req, err := http.NewRequest("PUT", srv.URL+"/api/v1/nodes/"+doc.ID.String()+"/payload", strings.NewReader("paper bytes"))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put payload failed: %v", err)
	}
	_ = resp.Body.Close()

	resp, exported := do(t, "GET", srv.URL+"/api/v1/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// Import into a second, fresh server.
	app2, srv2 := newTestServer(t)
	req, err = http.NewRequest("POST", srv2.URL+"/api/v1/import", bytes.NewReader(exported))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import = %d: %s", resp.StatusCode, body)
	}

	if got := app2.Forest.FindByID(doc.ID); got == nil || got.Name != "paper" {
		t.Fatalf("imported leaf = %+v, want paper", got)
	}
	_, data := do(t, "GET", srv2.URL+"/api/v1/nodes/"+doc.ID.String()+"/payload", nil)
	if string(data) != "paper bytes" {
		t.Errorf("imported payload = %q", data)
	}

	t.Run("invalid archive is rejected", func(t *testing.T) {
		before := app2.Forest.Count()
		req, err := http.NewRequest("POST", srv2.URL+"/api/v1/import", strings.NewReader(`{"blobs":{}}`))
		if err != nil {
			t.Fatalf("NewRequest failed: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("import invalid = %d, want 400", resp.StatusCode)
		}
		if errCode(t, data) != models.ErrorCodeInvalidFormat {
			t.Errorf("code = %q, want INVALID_FORMAT", errCode(t, data))
		}
		if app2.Forest.Count() != before {
			t.Errorf("forest mutated by rejected import: %d -> %d", before, app2.Forest.Count())
		}
	})
}

func TestStorageAndSchema(t *testing.T) {
	_, srv := newTestServer(t)

	resp, data := do(t, "GET", srv.URL+"/api/v1/storage", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("storage = %d", resp.StatusCode)
	}
	usage := decode[storage.Usage](t, data)
	if usage.Tier != "memory" {
		t.Errorf("Tier = %q, want memory", usage.Tier)
	}
	// The first-run snapshot is already stored.
	if usage.TotalBytes == 0 {
		t.Error("TotalBytes = 0, want the snapshot accounted")
	}

	resp, data = do(t, "GET", srv.URL+"/api/v1/schema/archive", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schema = %d", resp.StatusCode)
	}
	if !bytes.Contains(data, []byte("forest")) {
		t.Error("schema does not mention the forest field")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := storage.DefaultConfig()
	cfg.StorageTier = "file"

	app, err := NewApp(context.Background(), dir, &cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	srv := httptest.NewServer(NewRouter(app, "test"))
	root := createNode(t, srv.URL, 0, "survives", models.KindContainer)
	srv.Close()
	if err := app.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewApp(context.Background(), dir, &cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() {
		_ = reopened.Close()
	}()
	got := reopened.Forest.FindByID(root.ID)
	if got == nil || got.Name != "SURVIVES" {
		t.Errorf("after restart FindByID = %+v, want the created root", got)
	}
}
