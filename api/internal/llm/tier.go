package llm

import (
	"fmt"
	"strings"
)

// Tier is a named model configuration.
type Tier string

const (
	TierNone       Tier = ""
	TierSmart      Tier = "smart"
	TierFast       Tier = "fast"
	TierImageSmart Tier = "image_smart"
	TierImageFast  Tier = "image_fast"
)

var AllTiers = []Tier{TierSmart, TierFast, TierImageSmart, TierImageFast}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTiers {
		if t == known {
			return t, nil
		}
	}
	return TierNone, fmt.Errorf("unknown tier %q", s)
}

// Tiers maps each tier to a concrete model identifier. Built once at startup and
// never mutated afterwards.
type Tiers struct {
	m map[Tier]string
}

func NewTiers(models map[Tier]string) (Tiers, error) {
	m := make(map[Tier]string, len(AllTiers))
	for _, t := range AllTiers {
		id := strings.TrimSpace(models[t])
		if id == "" {
			return Tiers{}, fmt.Errorf("tier %s: model id is empty", t)
		}
		m[t] = id
	}
	return Tiers{m: m}, nil
}

// Model returns the model id for t. ok is false for TierNone or an unknown tier.
func (t Tiers) Model(tier Tier) (string, bool) {
	id, ok := t.m[tier]
	return id, ok
}

// Map returns a copy of the table.
func (t Tiers) Map() map[Tier]string {
	out := make(map[Tier]string, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}
