package agent

import (
	"context"
	"fmt"
	"strings"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
)

// StartExam opens the exam slot of reg with the chosen persona and returns the
// first question. Any running exam in reg is replaced.
func (o *Orchestrator) StartExam(ctx context.Context, reg *session.Registry, in types.StartExam) (types.Reply, error) {
	if !in.Persona.Valid() {
		return types.Reply{}, invalid("persona must be tutor or invigilator, got %q", in.Persona)
	}
	if strings.TrimSpace(in.Subject) == "" && len(in.Material) == 0 {
		return types.Reply{}, invalid("subject or material is required")
	}
	if in.NumQuestions < 0 || in.NumQuestions > 50 {
		return types.Reply{}, invalid("num_questions must be between 0 and 50")
	}
	material, err := materialParts(in.Material)
	if err != nil {
		return types.Reply{}, err
	}

	prompt := PromptTutor
	if in.Persona == types.PersonaInvigilator {
		prompt = PromptProctor
	}
	cfg := llm.SessionConfig{
		SystemInstruction: System(prompt),
		Material:          material,
		Search:            in.UseSearch,
	}
	rep, err := reg.Start(ctx, session.SlotExam, llm.TierFast, cfg, llm.Text(examOpening(in)))
	if err != nil {
		return types.Reply{}, err
	}
	o.log.Info("exam started", "persona", in.Persona, "subject", in.Subject, "model", rep.ModelID)
	return toReply(rep), nil
}

// SendExam forwards one student answer to the running exam.
func (o *Orchestrator) SendExam(ctx context.Context, reg *session.Registry, req types.PipelineRequest) (types.Reply, error) {
	parts, err := req.Parts()
	if err != nil {
		return types.Reply{}, invalid("%v", err)
	}
	if strings.TrimSpace(req.Content) == EndExamCommand {
		return types.Reply{}, invalid("use finish to end the exam")
	}
	rep, err := reg.Send(ctx, session.SlotExam, parts...)
	if err != nil {
		return types.Reply{}, err
	}
	return toReply(rep), nil
}

// FinishExam asks the persona for its final report, then has an independent
// auditor (SMART, no session, transcript only) re-grade it. A failed audit
// leaves Audit nil.
func (o *Orchestrator) FinishExam(ctx context.Context, reg *session.Registry) (types.ExamReport, error) {
	rep, err := reg.Send(ctx, session.SlotExam, llm.Text(finishCommand()))
	if err != nil {
		return types.ExamReport{}, fmt.Errorf("exam report: %w", err)
	}
	turns, err := reg.Transcript(session.SlotExam)
	if err != nil {
		return types.ExamReport{}, err
	}

	out := types.ExamReport{
		Report:     rep.Text,
		ModelUsed:  rep.ModelID,
		Transcript: turns,
	}
	if audit, err := o.audit(ctx, turns); err != nil {
		o.log.Warn("exam audit skipped", "error", err)
	} else {
		out.Audit = &audit
	}

	transcript := session.FormatTranscript(turns)
	o.record(ctx, "exam", hashParts([]llm.Part{llm.Text(transcript)}), rep.ModelID, out)
	return out, nil
}

func (o *Orchestrator) audit(ctx context.Context, turns []session.Turn) (types.GradingAudit, error) {
	res, err := generateJSON[types.GradingAudit](ctx, o, "exam.audit", llm.TierSmart, llm.TierNone,
		[]llm.Part{llm.Text(auditTask(session.FormatTranscript(turns)))},
		llm.GenerateConfig{SystemInstruction: System(PromptAuditor)})
	if err != nil {
		return types.GradingAudit{}, err
	}
	a := res.Output
	a.Discrepancies = nonNil(a.Discrepancies)
	a.FairnessScore = clamp(a.FairnessScore, 0, 100)
	a.ModelUsed = res.ModelID
	return a, nil
}

func materialParts(material []types.PipelineRequest) ([]llm.Part, error) {
	var out []llm.Part
	for i, m := range material {
		p, err := m.Parts()
		if err != nil {
			return nil, invalid("material[%d]: %v", i, err)
		}
		out = append(out, p...)
	}
	return out, nil
}

func toReply(r session.Reply) types.Reply {
	return types.Reply{Text: r.Text, ModelUsed: r.ModelID, Sources: r.Sources}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
