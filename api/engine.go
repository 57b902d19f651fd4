package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/talentflow/pkg/repository"
)

// SchemaReloader is implemented by the analyzer and the orchestrator,
// which cache compiled schemas.
type SchemaReloader interface {
	ReloadSchemas(ctx context.Context) error
}

type EngineHandler struct {
	schemas   repository.SchemaRepo
	templates repository.TemplateRepo
	reloaders []SchemaReloader
}

func NewEngineHandler(sr repository.SchemaRepo, tr repository.TemplateRepo, reloaders ...SchemaReloader) *EngineHandler {
	return &EngineHandler{schemas: sr, templates: tr, reloaders: reloaders}
}

// ReloadHandler recompiles schema caches after a schema update.
func (h *EngineHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	for _, rl := range h.reloaders {
		if err := rl.ReloadSchemas(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("reload schemas: %v", err), http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EngineHandler) ListSchemasHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schemas.ListSchemas(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list schemas: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows, http.StatusOK)
}

type schemaPayload struct {
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	SchemaJSON  json.RawMessage `json:"schema_json"`
}

// CreateOrUpdateSchemaHandler validates and stores a schema
func (h *EngineHandler) CreateOrUpdateSchemaHandler(w http.ResponseWriter, r *http.Request) {
	var p schemaPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if p.Version == "" {
		http.Error(w, "version required", http.StatusBadRequest)
		return
	}

	// basic compile check using qri-io/jsonschema
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(p.SchemaJSON, rs); err != nil {
		http.Error(w, fmt.Sprintf("invalid schema json: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := h.schemas.CreateSchema(r.Context(), p.Version, p.Description, string(p.SchemaJSON)); err != nil {
		http.Error(w, fmt.Sprintf("store schema: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSchemaHandler returns a single schema by version (expects ?version=...)
func (h *EngineHandler) GetSchemaHandler(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		http.Error(w, "version required", http.StatusBadRequest)
		return
	}

	s, err := h.schemas.GetSchemaByVersion(r.Context(), version)
	if err != nil {
		http.Error(w, fmt.Sprintf("get schema: %v", err), http.StatusInternalServerError)
		return
	}
	if s == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, s, http.StatusOK)
}

// GetTemplateHandler returns one template by query params name and version
func (h *EngineHandler) GetTemplateHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	version := r.URL.Query().Get("version")
	if name == "" || version == "" {
		http.Error(w, "name and version required", http.StatusBadRequest)
		return
	}

	t, err := h.templates.GetTemplate(r.Context(), name, version)
	if err != nil {
		http.Error(w, fmt.Sprintf("get template: %v", err), http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, t, http.StatusOK)
}
