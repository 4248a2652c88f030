package agent

import (
	"context"
	"strings"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
)

const chatGreeting = "Say hello and ask what I would like to study."

// StartChat opens the chat slot of reg on the FAST tier.
func (o *Orchestrator) StartChat(ctx context.Context, reg *session.Registry, in types.StartChat) (types.Reply, error) {
	material, err := materialParts(in.Material)
	if err != nil {
		return types.Reply{}, err
	}
	first := strings.TrimSpace(in.Message)
	if first == "" {
		first = chatGreeting
	}
	rep, err := reg.Start(ctx, session.SlotChat, llm.TierFast, llm.SessionConfig{
		SystemInstruction: System(PromptChat),
		Material:          material,
	}, llm.Text(first))
	if err != nil {
		return types.Reply{}, err
	}
	return toReply(rep), nil
}

func (o *Orchestrator) SendChat(ctx context.Context, reg *session.Registry, req types.PipelineRequest) (types.Reply, error) {
	parts, err := req.Parts()
	if err != nil {
		return types.Reply{}, invalid("%v", err)
	}
	rep, err := reg.Send(ctx, session.SlotChat, parts...)
	if err != nil {
		return types.Reply{}, err
	}
	return toReply(rep), nil
}
