package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
)

const (
	refinedConfidence = 99
	refinedNote       = "self-corrected"
	badBoxNote        = "bounding box outside 0-1000 or inverted; not rendered"
)

var analyzeTemperature = llm.Float32(0.2)

// AnalyzeHomework: tune (FAST) -> deep analysis (SMART, FAST fallback) ->
// refinement of uncertain records (SMART) -> merge.
func (o *Orchestrator) AnalyzeHomework(ctx context.Context, req types.PipelineRequest, opts types.HomeworkOptions) (types.HomeworkReport, error) {
	parts, err := req.Parts()
	if err != nil {
		return types.HomeworkReport{}, invalid("%v", err)
	}
	switch opts.Strictness {
	case "", types.Lenient, types.Standard, types.Strict:
	default:
		return types.HomeworkReport{}, invalid("unknown strictness %q", opts.Strictness)
	}

	tune, err := generateJSON[types.TuningResult](ctx, o, "homework.tune", llm.TierFast, llm.TierNone,
		withText(parts, tuneTask(opts)),
		llm.GenerateConfig{SystemInstruction: System(PromptTune)})
	if err != nil {
		return types.HomeworkReport{}, fmt.Errorf("homework tuning: %w", err)
	}
	if tune.Output.Subject == "" {
		tune.Output.Subject = opts.Subject
	}

	deep, err := generateJSON[types.ProblemSet](ctx, o, "homework.analyze", llm.TierSmart, llm.TierFast,
		withText(parts, analyzeTask(tune.Output, opts)),
		llm.GenerateConfig{SystemInstruction: System(PromptAnalyze), Temperature: analyzeTemperature})
	if err != nil {
		return types.HomeworkReport{}, fmt.Errorf("homework analysis: %w", err)
	}

	problems := prepareRecords(deep.Output.Problems)
	refined := 0
	if flagged := SelectForRefinement(problems); len(flagged) > 0 {
		o.log.Info("homework refinement", "flagged", len(flagged), "total", len(problems))
		corrected, err := o.refine(ctx, parts, tune.Output, flagged)
		if err != nil {
			o.log.Warn("homework refinement skipped", "error", err)
		} else {
			problems, refined = MergeRefined(problems, corrected)
		}
	}

	report := types.HomeworkReport{
		Subject:      tune.Output.Subject,
		Topic:        tune.Output.Topic,
		GradingRules: nonNil(tune.Output.GradingRules),
		Problems:     problems,
		Score:        score(problems),
		RefinedCount: refined,
		ModelUsed:    deep.ModelID,
		TuningModel:  tune.ModelID,
	}
	o.record(ctx, "homework", hashParts(parts), deep.ModelID, report)
	return report, nil
}

func (o *Orchestrator) refine(ctx context.Context, parts []llm.Part, tune types.TuningResult, flagged []types.ProblemRecord) ([]types.ProblemRecord, error) {
	res, err := generateJSON[types.ProblemSet](ctx, o, "homework.refine", llm.TierSmart, llm.TierNone,
		withText(parts, refineTask(tune, flagged)),
		llm.GenerateConfig{SystemInstruction: System(PromptRefine), Temperature: analyzeTemperature})
	if err != nil {
		return nil, err
	}
	out := res.Output.Problems
	for i := range out {
		if out[i].BoundingBox != nil && !out[i].BoundingBox.Valid() {
			out[i].BoundingBox = nil
		}
	}
	return out, nil
}

// prepareRecords assigns ids and turns invalid boxes into warnings so the
// refinement stage picks them up.
func prepareRecords(in []types.ProblemRecord) []types.ProblemRecord {
	out := make([]types.ProblemRecord, len(in))
	for i, p := range in {
		p.ID = uuid.NewString()
		if p.BoundingBox != nil && !p.BoundingBox.Valid() {
			p.BoundingBox = nil
			p.Validation.Status = types.StatusWarning
			p.Validation.RenderingNote = badBoxNote
		}
		if p.Validation.Status == "" {
			p.Validation.Status = types.StatusWarning
		}
		p.Steps = nonNil(p.Steps)
		p.KeyConcepts = nonNil(p.KeyConcepts)
		out[i] = p
	}
	return out
}

// SelectForRefinement returns the records with warning status or confidence below 80.
func SelectForRefinement(problems []types.ProblemRecord) []types.ProblemRecord {
	var out []types.ProblemRecord
	for _, p := range problems {
		if p.NeedsRefinement() {
			out = append(out, p)
		}
	}
	return out
}

// MergeRefined replaces each original record that a correction matches and
// returns the new sequence with the number of replacements. A correction
// matches by id first, else by problem_statement or student_answer; the first
// match in order wins. Unmatched corrections are dropped.
func MergeRefined(original, corrected []types.ProblemRecord) ([]types.ProblemRecord, int) {
	out := make([]types.ProblemRecord, len(original))
	copy(out, original)

	n := 0
	for _, c := range corrected {
		i := matchRecord(out, c)
		if i < 0 {
			continue
		}
		if c.ID == "" {
			c.ID = out[i].ID
		}
		c.Steps = nonNil(c.Steps)
		c.KeyConcepts = nonNil(c.KeyConcepts)
		c.Validation = types.Validation{
			Status:          types.StatusVerified,
			ConfidenceScore: refinedConfidence,
			RenderingNote:   refinedNote,
		}
		out[i] = c
		n++
	}
	return out, n
}

func matchRecord(records []types.ProblemRecord, c types.ProblemRecord) int {
	if c.ID != "" {
		for i, p := range records {
			if p.ID == c.ID {
				return i
			}
		}
	}
	for i, p := range records {
		if c.ProblemStatement != "" && p.ProblemStatement == c.ProblemStatement {
			return i
		}
		if c.StudentAnswer != "" && p.StudentAnswer == c.StudentAnswer {
			return i
		}
	}
	return -1
}

func score(problems []types.ProblemRecord) types.Score {
	var s types.Score
	for _, p := range problems {
		if p.IsCorrect == nil {
			continue
		}
		s.Total++
		if *p.IsCorrect {
			s.Correct++
		}
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
