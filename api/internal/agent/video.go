package agent

import (
	"context"
	"fmt"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
)

// AnalyzeVideo runs a single schema-constrained pass on the image tiers.
func (o *Orchestrator) AnalyzeVideo(ctx context.Context, req types.PipelineRequest, opts types.VideoOptions) (types.VideoAnalysis, error) {
	if !req.IsMedia() {
		return types.VideoAnalysis{}, invalid("video analysis needs media, got kind %q", req.Kind)
	}
	if opts.NumQuestions < 0 || opts.NumQuestions > 50 {
		return types.VideoAnalysis{}, invalid("num_questions must be between 0 and 50")
	}
	parts, err := req.Parts()
	if err != nil {
		return types.VideoAnalysis{}, invalid("%v", err)
	}

	res, err := generateJSON[types.VideoAnalysis](ctx, o, "video.analyze", llm.TierImageSmart, llm.TierImageFast,
		withText(parts, videoTask(opts)),
		llm.GenerateConfig{SystemInstruction: System(PromptVideo)})
	if err != nil {
		return types.VideoAnalysis{}, fmt.Errorf("video analysis: %w", err)
	}

	out := res.Output
	out.KeyMoments = nonNil(out.KeyMoments)
	out.Concepts = nonNil(out.Concepts)
	out.Questions = nonNil(out.Questions)
	out.ModelUsed = res.ModelID

	o.record(ctx, "video", hashParts(parts), res.ModelID, out)
	return out, nil
}
