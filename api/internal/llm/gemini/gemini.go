package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	ggenai "google.golang.org/genai"

	"study-agents/api/internal/llm"
)

// Engine is the Gemini-backed llm.Provider. Plain and schema-constrained calls
// and chat sessions go through generative-ai-go; calls that need the web-search
// tool go through the genai SDK, which exposes grounding metadata.
type Engine struct {
	client *genai.Client
	search *ggenai.Client
	log    *slog.Logger
}

func New(ctx context.Context, apiKey string, logger *slog.Logger) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	sc, err := ggenai.NewClient(ctx, &ggenai.ClientConfig{
		APIKey:  apiKey,
		Backend: ggenai.BackendGeminiAPI,
	})
	if err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("gemini search client: %w", err)
	}
	return &Engine{client: cl, search: sc, log: logger}, nil
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Close() error { return e.client.Close() }

// --------------------------- GENERATE ---------------------------

func (e *Engine) Generate(ctx context.Context, modelID string, parts []llm.Part, cfg llm.GenerateConfig) (llm.Response, error) {
	if cfg.Search {
		resp, _, err := e.generateGrounded(ctx, modelID, nil, parts, cfg.SystemInstruction, cfg.Temperature)
		return resp, err
	}

	m := e.model(modelID, cfg.SystemInstruction, cfg.Temperature)
	if cfg.Schema != nil {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = toSchema(cfg.Schema)
	} else if cfg.ResponseMIMEType != "" {
		m.ResponseMIMEType = cfg.ResponseMIMEType
	}

	resp, err := m.GenerateContent(ctx, toParts(parts)...)
	if err != nil {
		return llm.Response{}, wrapErr("gemini generate "+modelID, err)
	}
	txt := allText(resp)
	if strings.TrimSpace(txt) == "" {
		e.log.Warn("gemini: empty response", "model", modelID)
	}
	return llm.Response{Text: txt}, nil
}

func (e *Engine) model(modelID, system string, temperature *float32) *genai.GenerativeModel {
	m := e.client.GenerativeModel(strings.TrimSpace(modelID))
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	if temperature != nil {
		m.Temperature = temperature
	}
	return m
}

// --------------------------- SESSIONS ---------------------------

func (e *Engine) StartSession(ctx context.Context, modelID string, cfg llm.SessionConfig) (llm.Session, error) {
	if cfg.Search {
		return newGroundedSession(e, modelID, cfg), nil
	}

	m := e.model(modelID, cfg.SystemInstruction, cfg.Temperature)
	cs := m.StartChat()
	if len(cfg.Material) > 0 {
		cs.History = []*genai.Content{
			{Role: "user", Parts: toParts(cfg.Material)},
			{Role: "model", Parts: []genai.Part{genai.Text(materialAck)}},
		}
	}
	return &chatSession{cs: cs, modelID: modelID}, nil
}

const materialAck = "Reference material received. I will use it for this session."

type chatSession struct {
	mu      sync.Mutex
	cs      *genai.ChatSession
	modelID string
}

func (s *chatSession) Send(ctx context.Context, parts ...llm.Part) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.cs.SendMessage(ctx, toParts(parts)...)
	if err != nil {
		return llm.Response{}, wrapErr("gemini chat "+s.modelID, err)
	}
	return llm.Response{Text: allText(resp)}, nil
}

// --------------------------- helpers ---------------------------

func toParts(parts []llm.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

func allText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
