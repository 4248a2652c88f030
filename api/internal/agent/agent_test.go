package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"study-agents/api/internal/llm"
	"study-agents/api/internal/llm/llmtest"
	"study-agents/api/internal/session"
)

const (
	smartModel      = "smart-model"
	fastModel       = "fast-model"
	imageSmartModel = "image-smart-model"
	imageFastModel  = "image-fast-model"
)

type stage func(c llmtest.Call) (llm.Response, error)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testCaller(t *testing.T) *llm.Caller {
	t.Helper()
	tiers, err := llm.NewTiers(map[llm.Tier]string{
		llm.TierSmart:      smartModel,
		llm.TierFast:       fastModel,
		llm.TierImageSmart: imageSmartModel,
		llm.TierImageFast:  imageFastModel,
	})
	require.NoError(t, err)
	return llm.NewCaller(tiers, discard())
}

// newTestOrchestrator routes Generate calls to stages keyed by prompt name.
func newTestOrchestrator(t *testing.T, stages map[string]stage, opts ...Option) (*Orchestrator, *llmtest.Provider) {
	t.Helper()
	t.Setenv("PROMPT_DIR", t.TempDir())
	p := &llmtest.Provider{
		GenerateFunc: func(c llmtest.Call) (llm.Response, error) {
			for name, fn := range stages {
				if c.Config.SystemInstruction == System(name) {
					return fn(c)
				}
			}
			t.Errorf("unexpected generate call on %s: %q", c.ModelID, c.Prompt())
			return llm.Response{}, errors.New("unexpected call")
		},
	}
	return New(p, testCaller(t), discard(), opts...), p
}

func newTestRegistry(t *testing.T, p *llmtest.Provider) *session.Registry {
	return session.NewRegistry(p, testCaller(t), discard())
}

func reply(text string) stage {
	return func(llmtest.Call) (llm.Response, error) { return llm.Response{Text: text}, nil }
}

func fail(err error) stage {
	return func(llmtest.Call) (llm.Response, error) { return llm.Response{}, err }
}

func quota() error { return llm.NewError("generate", 429, errors.New("resource exhausted")) }

type fakeRecorder struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (r *fakeRecorder) Record(_ context.Context, kind, _, _ string, _ any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return "run-1", r.err
}
