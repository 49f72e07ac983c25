package models

// JSONSchema is a structural description of a step's input or output
// parameters. Schema inference composes these along the step graph.
type JSONSchema struct {
	Type        string               `json:"type"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// Property describes a single field of a JSONSchema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// EmptyObjectSchema returns a schema describing an object with no declared
// properties. Compositions without steps infer to this.
func EmptyObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       "object",
		Properties: map[string]*Property{},
	}
}
