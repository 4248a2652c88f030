package types

import (
	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
)

type Persona string

const (
	PersonaTutor       Persona = "tutor"
	PersonaInvigilator Persona = "invigilator"
)

func (p Persona) Valid() bool { return p == PersonaTutor || p == PersonaInvigilator }

type StartExam struct {
	Persona      Persona           `json:"persona"`
	Subject      string            `json:"subject"`
	NumQuestions int               `json:"num_questions,omitempty"`
	Material     []PipelineRequest `json:"material,omitempty"`
	UseSearch    bool              `json:"use_search,omitempty"`
}

type StartChat struct {
	Message  string            `json:"message,omitempty"`
	Material []PipelineRequest `json:"material,omitempty"`
}

// Reply: one session turn.
type Reply struct {
	Text      string       `json:"text"`
	ModelUsed string       `json:"model_used"`
	Sources   []llm.Source `json:"sources,omitempty"`
}

type GradingAudit struct {
	AuditedScore  float64  `json:"audited_score" jsonschema:"description=score recomputed from the transcript, 0-100"`
	FairnessScore int      `json:"fairness_score" jsonschema:"minimum=0,maximum=100"`
	Discrepancies []string `json:"discrepancies"`
	Feedback      string   `json:"feedback"`
	ModelUsed     string   `json:"model_used,omitempty" jsonschema:"-"`
}

type ExamReport struct {
	Report     string         `json:"report"`
	ModelUsed  string         `json:"model_used"`
	Audit      *GradingAudit  `json:"audit,omitempty"`
	Transcript []session.Turn `json:"transcript"`
}
