package handle

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"study-agents/api/internal/store"
)

func (h *Handle) Run(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history is disabled", http.StatusNotFound)
		return
	}
	run, err := h.runs.Find(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("run lookup failed", "error", err)
		http.Error(w, "run lookup error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
