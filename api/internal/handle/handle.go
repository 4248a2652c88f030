package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"study-agents/api/internal/agent"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
	"study-agents/api/internal/store"
)

const maxBody = 64 << 20 // base64 video fits

// RunFinder is the read side of the run history.
type RunFinder interface {
	Find(ctx context.Context, id string) (*store.Run, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handle struct {
	orch    *agent.Orchestrator
	reg     *session.Registry
	runs    RunFinder
	db      Pinger
	log     *slog.Logger
	timeout time.Duration
}

type Option func(*Handle)

func WithRuns(r RunFinder) Option { return func(h *Handle) { h.runs = r } }

func WithDB(db Pinger) Option { return func(h *Handle) { h.db = db } }

func WithTimeout(d time.Duration) Option { return func(h *Handle) { h.timeout = d } }

// New wires the HTTP surface. reg is the process-wide session registry.
func New(orch *agent.Orchestrator, reg *session.Registry, logger *slog.Logger, opts ...Option) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handle{orch: orch, reg: reg, log: logger, timeout: 180 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/homework/analyze", h.Homework)
		r.Post("/math/solve", h.Math)
		r.Post("/video/analyze", h.Video)

		r.Post("/chat/start", h.ChatStart)
		r.Post("/chat/send", h.ChatSend)

		r.Post("/exam/start", h.ExamStart)
		r.Post("/exam/send", h.ExamSend)
		r.Post("/exam/finish", h.ExamFinish)

		r.Get("/runs/{id}", h.Run)
		r.Post("/prompts", h.UpdatePrompt)
	})
	return r
}

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps err to a status: 400 bad input, 409 no session, 429 quota
// exhausted on every tier, 504 deadline, 502 anything else upstream.
func (h *Handle) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	if code >= 500 || code == http.StatusTooManyRequests {
		h.log.Error("request failed", "op", op, "status", code, "error", err,
			"req_id", middleware.GetReqID(r.Context()))
	}
	http.Error(w, op+" error: "+err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case llm.IsQuota(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// decode reads a JSON body. An empty body leaves v untouched when allowEmpty.
func decode(r *http.Request, v any, allowEmpty bool) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}

// deadline: X-Request-Timeout header or ?timeoutSec=, in seconds; else the default.
func (h *Handle) deadline(r *http.Request) time.Duration {
	d := h.timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			d = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			d = time.Duration(v) * time.Second
		}
	}
	return d
}

func (h *Handle) withDeadline(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.deadline(r))
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"dur", time.Since(start),
				"req_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
