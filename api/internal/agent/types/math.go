package types

import "study-agents/api/internal/llm"

type MathRequest struct {
	Problem          string           `json:"problem,omitempty"`
	Input            *PipelineRequest `json:"input,omitempty"`
	Notation         string           `json:"notation,omitempty"`
	UseRealWorldData bool             `json:"use_real_world_data,omitempty"`
	// CodeHistory: python from earlier turns, oldest first.
	CodeHistory []string `json:"code_history,omitempty"`
}

// MathSolution is both the solve stage output and the shape of a corrected response.
type MathSolution struct {
	Latex       string `json:"latex"`
	Explanation string `json:"explanation"`
	PythonCode  string `json:"python_code"`
	Result      string `json:"result"`
	PlotSVG     string `json:"plot_svg,omitempty" jsonschema:"description=self-contained <svg> markup; omit when no visual is needed"`
}

type Verification struct {
	Valid             bool          `json:"valid"`
	Issues            []string      `json:"issues,omitempty"`
	CorrectedResponse *MathSolution `json:"corrected_response,omitempty"`
}

type MathLabResult struct {
	MathSolution
	WasAutoRepaired bool         `json:"was_auto_repaired"`
	Sources         []llm.Source `json:"sources"`
	ModelUsed       string       `json:"model_used"`
}
