package llm

import (
	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
	Anonymous:      true,
}

// SchemaFor builds the response schema for T from its json/jsonschema tags.
// Fields without omitempty are required.
func SchemaFor[T any]() *jsonschema.Schema {
	var zero T
	s := reflector.Reflect(&zero)
	s.Version = ""
	return s
}
