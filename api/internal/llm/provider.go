package llm

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Part is one piece of multimodal input. Either Text or Data+MIMEType is set.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func Text(s string) Part { return Part{Text: s} }

func Blob(mime string, data []byte) Part { return Part{Data: data, MIMEType: mime} }

func (p Part) IsBlob() bool { return len(p.Data) > 0 }

// GenerateConfig: per-call generation settings. Schema enforcement is advisory:
// the provider may still return text that violates it.
type GenerateConfig struct {
	SystemInstruction string
	Schema            *jsonschema.Schema
	ResponseMIMEType  string
	Temperature       *float32
	// Search grants the web-search tool. Not combined with Schema.
	Search bool
}

// Source is a grounding citation.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type Response struct {
	Text    string
	Sources []Source
}

// SessionConfig is fixed at session creation.
type SessionConfig struct {
	SystemInstruction string
	// Material is placed into the session history before the first turn.
	Material    []Part
	Search      bool
	Temperature *float32
}

// Session: provider-owned multi-turn conversation. It does not report which
// model it is bound to; callers track that themselves.
type Session interface {
	Send(ctx context.Context, parts ...Part) (Response, error)
}

// Provider is the Model Capability Provider.
type Provider interface {
	Generate(ctx context.Context, modelID string, parts []Part, cfg GenerateConfig) (Response, error)
	StartSession(ctx context.Context, modelID string, cfg SessionConfig) (Session, error)
}

func Float32(v float32) *float32 { return &v }
