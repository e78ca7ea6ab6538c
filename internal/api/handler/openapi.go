package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
)

// OpenAPIHandler serves the OpenAPI document as JSON.
type OpenAPIHandler struct {
	rawYAML []byte
	version string

	once     sync.Once
	jsonSpec []byte
	etag     string
	err      error
}

// NewOpenAPIHandler creates a handler that converts the YAML document to JSON
// on first request. A non-empty version replaces info.version.
func NewOpenAPIHandler(yamlSpec []byte, version string) *OpenAPIHandler {
	return &OpenAPIHandler{rawYAML: yamlSpec, version: version}
}

func (h *OpenAPIHandler) render() ([]byte, error) {
	raw, err := yaml.YAMLToJSON(h.rawYAML)
	if err != nil {
		return nil, fmt.Errorf("converting YAML: %w", err)
	}
	if h.version == "" {
		return raw, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	info, _ := doc["info"].(map[string]any)
	if info == nil {
		info = map[string]any{}
		doc["info"] = info
	}
	info["version"] = h.version
	return json.Marshal(doc)
}

// ServeHTTP writes the cached JSON document, honouring If-None-Match.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.jsonSpec, h.err = h.render()
		if h.err == nil {
			sum := sha256.Sum256(h.jsonSpec)
			h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
		}
	})

	if h.err != nil {
		slog.Error("failed to render OpenAPI document", "error", h.err)
		requestID := middleware.GetRequestID(r.Context())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render OpenAPI document", requestID)
		return
	}

	w.Header().Set("ETag", h.etag)
	if r.Header.Get("If-None-Match") == h.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.jsonSpec); err != nil {
		slog.Error("failed to write OpenAPI response", "error", err)
	}
}
