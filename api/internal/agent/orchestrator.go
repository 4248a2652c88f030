// Package agent composes tiered model calls into the study pipelines: homework
// grading with a reflexion pass, math solving with independent verification,
// video analysis, and the tutor/invigilator exam with an auditor.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/util"
)

var ErrInvalidRequest = errors.New("invalid request")

// Recorder persists finished runs. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, kind, inputHash, modelID string, result any) (string, error)
}

type Orchestrator struct {
	p      llm.Provider
	caller *llm.Caller
	log    *slog.Logger
	rec    Recorder
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.rec = r }
}

func New(p llm.Provider, caller *llm.Caller, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{p: p, caller: caller, log: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// generateJSON runs one schema-constrained stage. Malformed output never fails
// the stage: missing or mistyped fields are left at their zero value.
func generateJSON[T any](ctx context.Context, o *Orchestrator, op string, primary, fallback llm.Tier, parts []llm.Part, cfg llm.GenerateConfig) (llm.Result[T], error) {
	cfg.Schema = llm.SchemaFor[T]()
	return llm.Call(ctx, o.caller, op, primary, fallback, func(ctx context.Context, modelID string) (T, error) {
		var out T
		resp, err := o.p.Generate(ctx, modelID, parts, cfg)
		if err != nil {
			return out, err
		}
		if err := decodeStage(resp.Text, &out); err != nil {
			o.log.Warn("structured output unusable, keeping zero fields", "op", op, "model", modelID,
				"error", err, "raw", util.Truncate(resp.Text, 200))
		}
		return out, nil
	})
}

// decodeStage decodes a stage reply into out. When T wraps a single list
// (ProblemSet) and the model answered with the bare list, the list is put
// under that field first.
func decodeStage[T any](raw string, out *T) error {
	if name, ok := listField[T](); ok {
		if list, ok := bareArray(raw); ok {
			doc, err := sjson.SetRawBytes([]byte(`{}`), name, list)
			if err != nil {
				return err
			}
			return json.Unmarshal(doc, out)
		}
	}
	return util.DecodeStructured(raw, out)
}

// listField returns the json name of T's only field when that field is a slice.
func listField[T any]() (string, bool) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return "", false
	}
	name := ""
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if !f.IsExported() || tag == "-" {
			continue
		}
		if name != "" || f.Type.Kind() != reflect.Slice {
			return "", false
		}
		name = tag
		if name == "" {
			name = f.Name
		}
	}
	return name, name != ""
}

// bareArray finds a top-level JSON array in raw, allowing fences and prose
// before it. An object opening before the array means the reply is not a bare list.
func bareArray(raw string) ([]byte, bool) {
	s := util.StripCodeFences(raw)
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return nil, false
	}
	if obj := strings.IndexByte(s, '{'); obj >= 0 && obj < start {
		return nil, false
	}
	end := strings.LastIndexByte(s, ']')
	if end < start {
		return nil, false
	}
	b := []byte(s[start : end+1])
	if !gjson.ValidBytes(b) {
		return nil, false
	}
	return b, true
}

// record stores a finished run. Failures are logged only.
func (o *Orchestrator) record(ctx context.Context, kind, inputHash, modelID string, result any) string {
	if o.rec == nil {
		return ""
	}
	id, err := o.rec.Record(context.WithoutCancel(ctx), kind, inputHash, modelID, result)
	if err != nil {
		o.log.Warn("run not persisted", "kind", kind, "error", err)
		return ""
	}
	return id
}

// InputHash is the hash runs of req are recorded under, for cache lookups.
func InputHash(req types.PipelineRequest) (string, error) {
	parts, err := req.Parts()
	if err != nil {
		return "", invalid("%v", err)
	}
	return hashParts(parts), nil
}

func hashParts(parts []llm.Part) string {
	chunks := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			chunks = append(chunks, p.Data)
			continue
		}
		chunks = append(chunks, []byte(p.Text))
	}
	return util.SHA256Chunks(chunks...)
}

func withText(parts []llm.Part, text string) []llm.Part {
	out := make([]llm.Part, 0, len(parts)+1)
	out = append(out, parts...)
	return append(out, llm.Text(text))
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
