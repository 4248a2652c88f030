package handle

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"study-agents/api/internal/agent"
	"study-agents/api/internal/util"
)

type UpdatePromptRequest struct {
	Name string `json:"name"` // e.g. "homework_analyze"
	Kind string `json:"kind"` // system|user; default system
	Text string `json:"text"`
}

type UpdatePromptResponse struct {
	OK      bool   `json:"ok"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Updated string `json:"updated_at"`
}

func (req *UpdatePromptRequest) Validate() error {
	if !slices.Contains(agent.PromptNames, req.Name) {
		return fmt.Errorf("unknown prompt %q", req.Name)
	}
	if len(req.Text) == 0 {
		return fmt.Errorf("text is required")
	}
	if len(req.Text) > 2*1024*1024 {
		return fmt.Errorf("text too large (max 2 MiB)")
	}
	return nil
}

// UpdatePrompt writes a prompt override into util.PromptDir() with an atomic
// rename. Pipelines pick it up on the next call.
func (h *Handle) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req UpdatePromptRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = "system"
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dstPath, err := util.PromptPath(req.Name, req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, "make dir: "+err.Error(), http.StatusInternalServerError)
		return
	}
	tmp, err := os.CreateTemp(dir, req.Name+".*.tmp")
	if err != nil {
		http.Error(w, "create temp: "+err.Error(), http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(req.Text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		http.Error(w, "write temp: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = tmp.Chmod(0o644)
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		http.Error(w, "close temp: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		http.Error(w, "rename: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.log.Info("prompt updated", "name", req.Name, "kind", req.Kind, "size", len(req.Text))
	writeJSON(w, http.StatusOK, UpdatePromptResponse{
		OK:      true,
		Name:    req.Name,
		Path:    dstPath,
		Size:    len(req.Text),
		Updated: time.Now().UTC().Format(time.RFC3339),
	})
}
