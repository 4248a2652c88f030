// Package session holds the long-lived conversation slots. Each slot owns at
// most one provider session together with the model it was bound to at start.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"study-agents/api/internal/llm"
)

type Slot string

const (
	SlotChat Slot = "chat"
	SlotExam Slot = "exam"
)

var ErrNotInitialized = errors.New("session not initialized")

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Turn struct {
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	ModelID string    `json:"model_id,omitempty"`
	At      time.Time `json:"at"`
}

// Reply is a turn output tagged with the model bound at Start.
type Reply struct {
	llm.Response
	ModelID string
	Tier    llm.Tier
}

type handle struct {
	modelID string
	tier    llm.Tier
	sess    llm.Session

	mu         sync.Mutex
	transcript []Turn
}

func (h *handle) send(ctx context.Context, parts []llm.Part) (llm.Response, error) {
	resp, err := h.sess.Send(ctx, parts...)
	if err != nil {
		return llm.Response{}, err
	}
	now := time.Now().UTC()
	h.mu.Lock()
	h.transcript = append(h.transcript,
		Turn{Role: RoleUser, Text: describe(parts), At: now},
		Turn{Role: RoleModel, Text: resp.Text, ModelID: h.modelID, At: now},
	)
	h.mu.Unlock()
	return resp, nil
}

// Registry: two independent slots. The lock only protects the slot map: two
// concurrent Starts on one slot race and the last install wins.
type Registry struct {
	p      llm.Provider
	caller *llm.Caller
	log    *slog.Logger

	mu    sync.Mutex
	slots map[Slot]*handle
}

func NewRegistry(p llm.Provider, caller *llm.Caller, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{p: p, caller: caller, log: logger, slots: map[Slot]*handle{}}
}

// Start creates a session on tier, sends first (when given) and installs the
// session into slot, replacing any previous one. Nothing is installed on error.
func (r *Registry) Start(ctx context.Context, slot Slot, tier llm.Tier, cfg llm.SessionConfig, first ...llm.Part) (Reply, error) {
	if err := validSlot(slot); err != nil {
		return Reply{}, err
	}

	type started struct {
		h    *handle
		resp llm.Response
	}
	res, err := llm.Call(ctx, r.caller, "session.start."+string(slot), tier, llm.TierNone,
		func(ctx context.Context, modelID string) (started, error) {
			s, err := r.p.StartSession(ctx, modelID, cfg)
			if err != nil {
				return started{}, err
			}
			h := &handle{modelID: modelID, tier: tier, sess: s}
			var resp llm.Response
			if len(first) > 0 {
				if resp, err = h.send(ctx, first); err != nil {
					return started{}, err
				}
			}
			return started{h: h, resp: resp}, nil
		})
	if err != nil {
		return Reply{}, fmt.Errorf("start %s session: %w", slot, err)
	}

	r.mu.Lock()
	_, replaced := r.slots[slot]
	r.slots[slot] = res.Output.h
	r.mu.Unlock()

	r.log.Info("session started", "slot", slot, "tier", tier, "model", res.ModelID, "replaced", replaced)
	return Reply{Response: res.Output.resp, ModelID: res.ModelID, Tier: tier}, nil
}

// Send continues the session in slot on the model it was started with.
func (r *Registry) Send(ctx context.Context, slot Slot, parts ...llm.Part) (Reply, error) {
	h, err := r.get(slot)
	if err != nil {
		return Reply{}, err
	}
	resp, err := h.send(ctx, parts)
	if err != nil {
		return Reply{}, fmt.Errorf("%s session: %w", slot, err)
	}
	return Reply{Response: resp, ModelID: h.modelID, Tier: h.tier}, nil
}

// BoundModel reports the model and tier the slot's session was started on.
func (r *Registry) BoundModel(slot Slot) (string, llm.Tier, error) {
	h, err := r.get(slot)
	if err != nil {
		return "", llm.TierNone, err
	}
	return h.modelID, h.tier, nil
}

func (r *Registry) Transcript(slot Slot) ([]Turn, error) {
	h, err := r.get(slot)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.transcript...), nil
}

func (r *Registry) Active(slot Slot) bool {
	_, err := r.get(slot)
	return err == nil
}

func (r *Registry) get(slot Slot) (*handle, error) {
	if err := validSlot(slot); err != nil {
		return nil, err
	}
	r.mu.Lock()
	h := r.slots[slot]
	r.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("%s: %w", slot, ErrNotInitialized)
	}
	return h, nil
}

func validSlot(slot Slot) error {
	switch slot {
	case SlotChat, SlotExam:
		return nil
	}
	return fmt.Errorf("unknown session slot %q", slot)
}

// FormatTranscript renders turns as plain text, one "ROLE: text" block per turn.
func FormatTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Text))
	}
	return b.String()
}

func describe(parts []llm.Part) string {
	var out []string
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, fmt.Sprintf("[attachment %s, %d bytes]", p.MIMEType, len(p.Data)))
			continue
		}
		out = append(out, p.Text)
	}
	return strings.Join(out, "\n")
}
