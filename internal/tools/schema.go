package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// argSchema pairs the wire form of a schema with its compiled validator.
type argSchema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// generateSchema reflects a JSON schema from an argument struct. Unknown
// properties are rejected and all definitions are inlined.
func generateSchema(args any) (json.RawMessage, error) {
	reflector := invopop.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	s := reflector.Reflect(args)
	s.Version = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return raw, nil
}

func compileSchema(args any) (*argSchema, error) {
	raw, err := generateSchema(args)
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString("", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &argSchema{raw: raw, compiled: compiled}, nil
}

// validate checks raw JSON arguments against the schema. An empty string is
// treated as an empty object.
func (s *argSchema) validate(raw string) []FieldError {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []FieldError{{Field: "", Message: "arguments are not valid JSON: " + err.Error()}}
	}
	if _, err := dec.Token(); err != io.EOF {
		return []FieldError{{Field: "", Message: "arguments are not valid JSON: trailing data after object"}}
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fieldErrors(err)
	}
	return nil
}

var quotedName = regexp.MustCompile(`'([^']+)'`)

// fieldErrors flattens a validation error tree into its leaf violations.
func fieldErrors(err error) []FieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []FieldError{{Message: err.Error()}}
	}

	var out []FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := strings.ReplaceAll(strings.TrimPrefix(e.InstanceLocation, "/"), "/", ".")
		if strings.HasPrefix(e.Message, "missing properties") {
			for _, m := range quotedName.FindAllStringSubmatch(e.Message, -1) {
				out = append(out, FieldError{Field: joinField(field, m[1]), Message: "is required"})
			}
			return
		}
		if strings.HasPrefix(e.Message, "additionalProperties") {
			for _, m := range quotedName.FindAllStringSubmatch(e.Message, -1) {
				out = append(out, FieldError{Field: joinField(field, m[1]), Message: "is not allowed"})
			}
			return
		}
		out = append(out, FieldError{Field: field, Message: e.Message})
	}
	walk(ve)

	if len(out) == 0 {
		out = append(out, FieldError{Message: ve.Message})
	}
	return out
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
