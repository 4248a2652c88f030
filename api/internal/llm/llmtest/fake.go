// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"study-agents/api/internal/llm"
)

type Call struct {
	ModelID string
	Parts   []llm.Part
	Config  llm.GenerateConfig
}

// Prompt joins the text parts of the call.
func (c Call) Prompt() string { return JoinText(c.Parts) }

type Reply struct {
	Text    string
	Sources []llm.Source
	Err     error
}

// Provider answers Generate calls from Replies in order, unless GenerateFunc is set.
type Provider struct {
	mu sync.Mutex

	Replies      []Reply
	GenerateFunc func(call Call) (llm.Response, error)

	// SessionFunc answers session turns. turn is 0 for the first Send.
	SessionFunc func(s *Session, turn int, parts []llm.Part) (llm.Response, error)
	StartErr    error

	Calls    []Call
	Sessions []*Session
}

var ErrNoReply = errors.New("llmtest: no scripted reply left")

func (p *Provider) Generate(_ context.Context, modelID string, parts []llm.Part, cfg llm.GenerateConfig) (llm.Response, error) {
	p.mu.Lock()
	call := Call{ModelID: modelID, Parts: parts, Config: cfg}
	p.Calls = append(p.Calls, call)
	fn := p.GenerateFunc
	var reply *Reply
	if fn == nil {
		if len(p.Replies) == 0 {
			p.mu.Unlock()
			return llm.Response{}, ErrNoReply
		}
		r := p.Replies[0]
		p.Replies = p.Replies[1:]
		reply = &r
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	if reply.Err != nil {
		return llm.Response{}, reply.Err
	}
	return llm.Response{Text: reply.Text, Sources: reply.Sources}, nil
}

func (p *Provider) StartSession(_ context.Context, modelID string, cfg llm.SessionConfig) (llm.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{ModelID: modelID, Config: cfg, provider: p}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// CallCount returns how many Generate calls went to modelID.
func (p *Provider) CallCount(modelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Calls {
		if c.ModelID == modelID {
			n++
		}
	}
	return n
}

type Session struct {
	ModelID  string
	Config   llm.SessionConfig
	Sent     [][]llm.Part
	provider *Provider
	mu       sync.Mutex
}

func (s *Session) Send(_ context.Context, parts ...llm.Part) (llm.Response, error) {
	s.mu.Lock()
	turn := len(s.Sent)
	s.Sent = append(s.Sent, parts)
	s.mu.Unlock()

	if s.provider.SessionFunc == nil {
		return llm.Response{Text: "ok"}, nil
	}
	return s.provider.SessionFunc(s, turn, parts)
}

func JoinText(parts []llm.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.IsBlob() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
