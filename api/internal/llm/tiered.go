package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Result is a stage payload plus the model that actually produced it.
type Result[T any] struct {
	Output  T
	ModelID string
	Tier    Tier
}

// Caller runs one logical operation against a primary tier and, on quota
// exhaustion only, a single fallback tier. It does no caching, no backoff and
// no rate limiting.
type Caller struct {
	tiers Tiers
	log   *slog.Logger
}

func NewCaller(tiers Tiers, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{tiers: tiers, log: logger}
}

func (c *Caller) Tiers() Tiers { return c.tiers }

// Call invokes fn with the primary tier's model. A quota error with a fallback
// configured triggers exactly one fn call with the fallback model, whose outcome
// is returned as-is. Non-quota errors propagate without fallback.
func Call[T any](ctx context.Context, c *Caller, op string, primary, fallback Tier, fn func(ctx context.Context, modelID string) (T, error)) (Result[T], error) {
	modelID, ok := c.tiers.Model(primary)
	if !ok {
		return Result[T]{}, fmt.Errorf("%s: no model configured for tier %q", op, primary)
	}

	c.log.Debug("model call", "op", op, "tier", primary, "model", modelID)
	out, err := fn(ctx, modelID)
	if err == nil {
		return Result[T]{Output: out, ModelID: modelID, Tier: primary}, nil
	}
	if !IsQuota(err) {
		return Result[T]{}, err
	}

	fbModel, ok := c.tiers.Model(fallback)
	if fallback == TierNone || !ok {
		c.log.Warn("quota exceeded, no fallback", "op", op, "tier", primary, "model", modelID, "error", err)
		return Result[T]{}, err
	}

	c.log.Warn("quota exceeded, falling back", "op", op, "from", modelID, "to", fbModel, "error", err)
	out, err = fn(ctx, fbModel)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Output: out, ModelID: fbModel, Tier: fallback}, nil
}
