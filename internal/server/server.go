package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docforest/docforest/internal/models"
)

// NewRouter creates and configures the HTTP router over the app state.
func NewRouter(app *App, version string) http.Handler {
	h := &handler{app: app, version: version}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.health)
	mux.HandleFunc("GET /api/v1/tree", h.getTree)

	mux.HandleFunc("POST /api/v1/nodes", h.createNode)
	mux.HandleFunc("GET /api/v1/nodes/{id}", h.getNode)
	mux.HandleFunc("PATCH /api/v1/nodes/{id}", h.renameNode)
	mux.HandleFunc("DELETE /api/v1/nodes/{id}", h.deleteNode)
	mux.HandleFunc("POST /api/v1/nodes/{id}/toggle", h.toggleNode)

	mux.HandleFunc("GET /api/v1/selection", h.getSelection)
	mux.HandleFunc("PUT /api/v1/selection", h.putSelection)

	mux.HandleFunc("PUT /api/v1/nodes/{id}/payload", h.putPayload)
	mux.HandleFunc("GET /api/v1/nodes/{id}/payload", h.getPayload)

	mux.HandleFunc("GET /api/v1/export", h.export)
	mux.HandleFunc("POST /api/v1/import", h.importArchive)

	mux.HandleFunc("GET /api/v1/storage", h.storageUsage)
	mux.HandleFunc("GET /api/v1/schema/archive", h.archiveSchema)

	return logRequests(mux)
}

type handler struct {
	app     *App
	version string
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
		"tier":    h.app.Store.Tier(),
	})
}

func (h *handler) getTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"forest":   h.app.Forest.Snapshot(),
		"selected": h.app.Forest.Selected(),
	})
}

type createNodeRequest struct {
	ParentID    models.ID       `json:"parent_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        models.NodeKind `json:"kind"`
}

func (h *handler) createNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	node := &models.Node{
		ID:          models.NewID(),
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Created:     time.Now(),
	}
	if err := h.app.Forest.InsertChild(req.ParentID, node); err != nil {
		writeError(w, err)
		return
	}
	h.persist(w, r, func() {
		writeJSON(w, http.StatusCreated, h.app.Forest.FindByID(node.ID))
	})
}

func (h *handler) getNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	node := h.app.Forest.FindByID(id)
	if node == nil {
		writeError(w, models.NotFound("node "+id.String()))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *handler) renameNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.Forest.Rename(id, req.Name); err != nil {
		writeError(w, err)
		return
	}
	h.persist(w, r, func() {
		writeJSON(w, http.StatusOK, h.app.Forest.FindByID(id))
	})
}

func (h *handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	removed, err := h.app.Forest.Remove(id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Blob entries of removed leaves are orphaned, not deleted.
	h.persist(w, r, func() {
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	})
}

func (h *handler) toggleNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.app.Forest.ToggleExpanded(id); err != nil {
		writeError(w, err)
		return
	}
	h.persist(w, r, func() {
		writeJSON(w, http.StatusOK, h.app.Forest.FindByID(id))
	})
}

func (h *handler) getSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]models.ID{"selected": h.app.Forest.Selected()})
}

type selectionRequest struct {
	ID models.ID `json:"id"`
}

func (h *handler) putSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.Forest.Select(req.ID); err != nil {
		writeError(w, err)
		return
	}
	h.persist(w, r, func() {
		writeJSON(w, http.StatusOK, map[string]models.ID{"selected": h.app.Forest.Selected()})
	})
}

// payloadKey resolves the blob key for the request, honoring ?purpose=derived-payload.
func payloadKey(r *http.Request, id models.ID) models.BlobKey {
	if r.URL.Query().Get("purpose") == string(models.PurposeDerived) {
		return models.DerivedKey(id)
	}
	return models.PayloadKey(id)
}

func (h *handler) putPayload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	node := h.app.Forest.FindByID(id)
	if node == nil {
		writeError(w, models.NotFound("node "+id.String()))
		return
	}
	if node.Kind != models.KindLeaf {
		writeError(w, models.BadRequest("only leaf nodes hold payloads"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.app.Config.MaxBlobBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, models.BadRequest("payload exceeds the size limit"))
			return
		}
		writeError(w, models.InternalWithError("failed to read payload", err))
		return
	}

	key := payloadKey(r, id)
	if err := h.app.Blobs.Put(r.Context(), key, data); err != nil {
		writeError(w, err)
		return
	}
	if key.Purpose == models.PurposePayload {
		if err := h.app.Forest.AttachPayload(id); err != nil {
			writeError(w, err)
			return
		}
	}
	h.persist(w, r, func() {
		writeJSON(w, http.StatusOK, map[string]any{"key": key.String(), "size": len(data)})
	})
}

func (h *handler) getPayload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, err := h.app.Blobs.Get(r.Context(), payloadKey(r, id))
	if err != nil {
		writeError(w, err)
		return
	}
	if data == nil {
		writeError(w, models.NotFound("payload for node "+id.String()))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	archive, err := h.app.Archive.ExportAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="docforest-export.json"`)
	writeJSON(w, http.StatusOK, archive)
}

func (h *handler) importArchive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, models.InternalWithError("failed to read archive", err))
		return
	}
	if err := h.app.Archive.ImportAll(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": h.app.Forest.Count(),
	})
}

func (h *handler) storageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.app.Blobs.Usage(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *handler) archiveSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Archive.Schema())
}

// persist writes the snapshot after a successful mutation, then runs the
// success response. Snapshot encoding failures are the only possible error.
func (h *handler) persist(w http.ResponseWriter, r *http.Request, ok func()) {
	if err := h.app.Persist(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	ok()
}

func pathID(w http.ResponseWriter, r *http.Request) (models.ID, bool) {
	id, err := models.DecodeID(r.PathValue("id"))
	if err != nil {
		writeError(w, models.BadRequest("invalid node id"))
		return 0, false
	}
	return id, true
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request, into *T) bool {
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(into); err != nil {
		writeError(w, models.BadRequest("invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

// errorResponse is the standard error body.
type errorResponse struct {
	Error struct {
		Code    models.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	var resp errorResponse
	status := http.StatusInternalServerError
	resp.Error.Code = models.ErrorCodeInternal
	resp.Error.Message = "internal error"

	var me *models.Error
	if errors.As(err, &me) {
		status = me.StatusCode()
		resp.Error.Code = me.Code()
		resp.Error.Message = me.Error()
	} else {
		slog.Error("Unhandled error", "err", err)
	}
	writeJSON(w, status, &resp)
}
