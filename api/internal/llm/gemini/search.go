package gemini

import (
	"context"
	"sync"

	ggenai "google.golang.org/genai"

	"study-agents/api/internal/llm"
)

func (e *Engine) generateGrounded(ctx context.Context, modelID string, history []*ggenai.Content, parts []llm.Part, system string, temperature *float32) (llm.Response, *ggenai.Content, error) {
	contents := make([]*ggenai.Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, &ggenai.Content{Role: "user", Parts: toGroundedParts(parts)})

	cfg := &ggenai.GenerateContentConfig{
		Tools: []*ggenai.Tool{{GoogleSearch: &ggenai.GoogleSearch{}}},
	}
	if system != "" {
		cfg.SystemInstruction = &ggenai.Content{Parts: []*ggenai.Part{{Text: system}}}
	}
	if temperature != nil {
		cfg.Temperature = temperature
	}

	resp, err := e.search.Models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		return llm.Response{}, nil, wrapErr("gemini grounded "+modelID, err)
	}

	txt := resp.Text()
	if txt == "" {
		e.log.Warn("gemini: empty grounded response", "model", modelID)
	}
	reply := &ggenai.Content{Role: "model", Parts: []*ggenai.Part{{Text: txt}}}
	return llm.Response{Text: txt, Sources: groundingSources(resp)}, reply, nil
}

// groundingSources collects web citations, deduplicated by URI.
func groundingSources(resp *ggenai.GenerateContentResponse) []llm.Source {
	if resp == nil {
		return nil
	}
	var out []llm.Source
	seen := map[string]bool{}
	for _, c := range resp.Candidates {
		if c == nil || c.GroundingMetadata == nil {
			continue
		}
		for _, ch := range c.GroundingMetadata.GroundingChunks {
			if ch == nil || ch.Web == nil || ch.Web.URI == "" || seen[ch.Web.URI] {
				continue
			}
			seen[ch.Web.URI] = true
			out = append(out, llm.Source{URI: ch.Web.URI, Title: ch.Web.Title})
		}
	}
	return out
}

func toGroundedParts(parts []llm.Part) []*ggenai.Part {
	out := make([]*ggenai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, &ggenai.Part{InlineData: &ggenai.Blob{MIMEType: p.MIMEType, Data: p.Data}})
			continue
		}
		out = append(out, &ggenai.Part{Text: p.Text})
	}
	return out
}

// groundedSession keeps its own history since search-enabled turns are plain
// GenerateContent calls.
type groundedSession struct {
	e           *Engine
	modelID     string
	system      string
	temperature *float32

	mu      sync.Mutex
	history []*ggenai.Content
}

func newGroundedSession(e *Engine, modelID string, cfg llm.SessionConfig) *groundedSession {
	s := &groundedSession{
		e:           e,
		modelID:     modelID,
		system:      cfg.SystemInstruction,
		temperature: cfg.Temperature,
	}
	if len(cfg.Material) > 0 {
		s.history = []*ggenai.Content{
			{Role: "user", Parts: toGroundedParts(cfg.Material)},
			{Role: "model", Parts: []*ggenai.Part{{Text: materialAck}}},
		}
	}
	return s
}

func (s *groundedSession) Send(ctx context.Context, parts ...llm.Part) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, reply, err := s.e.generateGrounded(ctx, s.modelID, s.history, parts, s.system, s.temperature)
	if err != nil {
		return llm.Response{}, err
	}
	s.history = append(s.history,
		&ggenai.Content{Role: "user", Parts: toGroundedParts(parts)},
		reply,
	)
	return resp, nil
}
