package agent

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/util"
)

// SolveMath: optional search grounding (FAST) -> solve (SMART, FAST fallback)
// -> independent verification (FAST). A failed verification leaves the solve
// result unrepaired.
func (o *Orchestrator) SolveMath(ctx context.Context, req types.MathRequest) (types.MathLabResult, error) {
	parts, err := mathParts(req)
	if err != nil {
		return types.MathLabResult{}, err
	}

	var (
		grounding string
		sources   = []llm.Source{}
	)
	if req.UseRealWorldData {
		g, err := llm.Call(ctx, o.caller, "math.ground", llm.TierFast, llm.TierNone, func(ctx context.Context, modelID string) (llm.Response, error) {
			return o.p.Generate(ctx, modelID, withText(parts, solveTask(req, "")), llm.GenerateConfig{
				SystemInstruction: System(PromptGround),
				Search:            true,
			})
		})
		if err != nil {
			return types.MathLabResult{}, fmt.Errorf("math grounding: %w", err)
		}
		grounding = g.Output.Text
		if len(g.Output.Sources) > 0 {
			sources = g.Output.Sources
		}
	}

	solved, err := generateJSON[types.MathSolution](ctx, o, "math.solve", llm.TierSmart, llm.TierFast,
		withText(parts, solveTask(req, grounding)),
		llm.GenerateConfig{SystemInstruction: System(PromptSolve)})
	if err != nil {
		return types.MathLabResult{}, fmt.Errorf("math solve: %w", err)
	}

	out := types.MathLabResult{
		MathSolution: solved.Output,
		Sources:      sources,
		ModelUsed:    solved.ModelID,
	}
	if fixed, modelID, ok := o.verifyMath(ctx, problemText(req), solved.Output); ok {
		out.MathSolution = fixed
		out.WasAutoRepaired = true
		out.ModelUsed = modelID
	}
	out.PlotSVG = cleanSVG(out.PlotSVG)

	o.record(ctx, "math", hashParts(withText(parts, solveTask(req, ""))), out.ModelUsed, out)
	return out, nil
}

// verifyMath returns the corrected solution when the reviewer rejects the
// original and supplies a replacement. Any failure counts as "not repaired".
func (o *Orchestrator) verifyMath(ctx context.Context, problem string, sol types.MathSolution) (types.MathSolution, string, bool) {
	res, err := llm.Call(ctx, o.caller, "math.verify", llm.TierFast, llm.TierNone, func(ctx context.Context, modelID string) (string, error) {
		resp, err := o.p.Generate(ctx, modelID, []llm.Part{llm.Text(verifyTask(problem, sol))}, llm.GenerateConfig{
			SystemInstruction: System(PromptVerify),
			Schema:            llm.SchemaFor[types.Verification](),
		})
		return resp.Text, err
	})
	if err != nil {
		o.log.Warn("math verification skipped", "error", err)
		return types.MathSolution{}, "", false
	}

	fixed, err := parseVerdict(res.Output)
	if err != nil {
		if !errors.Is(err, errVerdictValid) {
			o.log.Warn("math verification unusable", "model", res.ModelID, "error", err)
		}
		return types.MathSolution{}, "", false
	}
	o.log.Info("math solution auto-repaired", "model", res.ModelID)
	return fixed, res.ModelID, true
}

var errVerdictValid = errors.New("solution valid")

// parseVerdict reads {valid, corrected_response} leniently: "false" strings
// count, extra prose around the JSON is ignored.
func parseVerdict(raw string) (types.MathSolution, error) {
	doc := util.StructuredBytes(raw)
	valid := gjson.GetBytes(doc, "valid")
	if !valid.Exists() {
		return types.MathSolution{}, errors.New("verdict has no valid field")
	}
	if valid.Bool() {
		return types.MathSolution{}, errVerdictValid
	}
	cr := gjson.GetBytes(doc, "corrected_response")
	if !cr.IsObject() {
		return types.MathSolution{}, errors.New("invalid verdict without corrected_response")
	}
	var fixed types.MathSolution
	if err := json.Unmarshal([]byte(cr.Raw), &fixed); err != nil {
		return types.MathSolution{}, fmt.Errorf("corrected_response: %w", err)
	}
	if fixed.Result == "" && fixed.PythonCode == "" && fixed.Latex == "" {
		return types.MathSolution{}, errors.New("corrected_response is empty")
	}
	return fixed, nil
}

func mathParts(req types.MathRequest) ([]llm.Part, error) {
	if req.Input != nil {
		parts, err := req.Input.Parts()
		if err != nil {
			return nil, invalid("%v", err)
		}
		return parts, nil
	}
	if strings.TrimSpace(req.Problem) == "" {
		return nil, invalid("problem is empty")
	}
	return nil, nil
}

func problemText(req types.MathRequest) string {
	if p := strings.TrimSpace(req.Problem); p != "" {
		return p
	}
	if req.Input != nil && req.Input.Kind == types.KindText {
		return req.Input.Content
	}
	return req.Notation
}

// cleanSVG keeps s only when it is a single well-formed XML document with an
// <svg> root.
func cleanSVG(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = util.StripCodeFences(s)
	}
	if s == "" {
		return ""
	}

	d := xml.NewDecoder(strings.NewReader(s))
	depth, roots := 0, 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 || t.Name.Local != "svg" {
					return ""
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return ""
			}
		}
	}
	if roots != 1 || depth != 0 {
		return ""
	}
	return s
}
