package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var promptNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// PromptDir is where prompt overrides live: <dir>/<name>.<kind>.txt.
func PromptDir() string {
	if d := strings.TrimSpace(os.Getenv("PROMPT_DIR")); d != "" {
		return d
	}
	return filepath.Join("api", "prompts")
}

// LoadPrompt returns the on-disk override for (name, kind) if present, else def.
func LoadPrompt(name, kind, def string) string {
	p, err := PromptPath(name, kind)
	if err != nil {
		return def
	}
	if b, err := os.ReadFile(p); err == nil && len(strings.TrimSpace(string(b))) > 0 {
		return strings.TrimSpace(string(b))
	}
	return def
}

// PromptPath validates name and kind and builds the override path.
func PromptPath(name, kind string) (string, error) {
	if !promptNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid prompt name %q: must match %s", name, promptNameRe.String())
	}
	switch kind {
	case "system", "user":
	default:
		return "", fmt.Errorf("invalid prompt kind %q: want system|user", kind)
	}
	return filepath.Join(PromptDir(), fmt.Sprintf("%s.%s.txt", name, kind)), nil
}
