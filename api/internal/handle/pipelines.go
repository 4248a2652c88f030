package handle

import (
	"net/http"

	"study-agents/api/internal/agent/types"
)

type HomeworkRequest struct {
	types.PipelineRequest
	types.HomeworkOptions
}

func (h *Handle) Homework(w http.ResponseWriter, r *http.Request) {
	var req HomeworkRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.AnalyzeHomework(ctx, req.PipelineRequest, req.HomeworkOptions)
	if err != nil {
		h.fail(w, r, "homework", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) Math(w http.ResponseWriter, r *http.Request) {
	var req types.MathRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.SolveMath(ctx, req)
	if err != nil {
		h.fail(w, r, "math", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type VideoRequest struct {
	types.PipelineRequest
	types.VideoOptions
}

func (h *Handle) Video(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.AnalyzeVideo(ctx, req.PipelineRequest, req.VideoOptions)
	if err != nil {
		h.fail(w, r, "video", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
