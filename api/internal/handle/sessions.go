package handle

import (
	"net/http"

	"study-agents/api/internal/agent/types"
)

func (h *Handle) ChatStart(w http.ResponseWriter, r *http.Request) {
	var req types.StartChat
	if err := decode(r, &req, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.StartChat(ctx, h.reg, req)
	if err != nil {
		h.fail(w, r, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) ChatSend(w http.ResponseWriter, r *http.Request) {
	var req types.PipelineRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.SendChat(ctx, h.reg, req)
	if err != nil {
		h.fail(w, r, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) ExamStart(w http.ResponseWriter, r *http.Request) {
	var req types.StartExam
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.StartExam(ctx, h.reg, req)
	if err != nil {
		h.fail(w, r, "exam", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) ExamSend(w http.ResponseWriter, r *http.Request) {
	var req types.PipelineRequest
	if err := decode(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.SendExam(ctx, h.reg, req)
	if err != nil {
		h.fail(w, r, "exam", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) ExamFinish(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.orch.FinishExam(ctx, h.reg)
	if err != nil {
		h.fail(w, r, "exam", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
