package gemini

import (
	"fmt"
	"slices"

	"github.com/google/generative-ai-go/genai"
	"github.com/invopop/jsonschema"
)

// toSchema maps the subset of JSON Schema that Gemini response schemas accept.
// Optional object properties become nullable.
func toSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	if s.Type == "" {
		for _, alt := range append(append([]*jsonschema.Schema{}, s.AnyOf...), s.OneOf...) {
			if alt != nil && alt.Type != "" && alt.Type != "null" {
				out := toSchema(alt)
				out.Nullable = true
				return out
			}
		}
	}

	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}

	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop := toSchema(pair.Value)
			if !slices.Contains(s.Required, pair.Key) {
				prop.Nullable = true
			}
			out.Properties[pair.Key] = prop
		}
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		out.Items = toSchema(s.Items)
	}
	if len(s.Enum) > 0 && out.Type == genai.TypeString {
		out.Format = "enum"
		for _, v := range s.Enum {
			out.Enum = append(out.Enum, fmt.Sprint(v))
		}
	}
	return out
}
