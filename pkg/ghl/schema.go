package ghl

import (
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// typeMapping maps JSON Schema primitive type names to genai types.
var typeMapping = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// Translate converts a tool's JSON Schema into the genai function
// declaration parameter schema. Keywords the target format cannot express
// ($schema, format hints, etc.) are dropped rather than rejected; required
// lists and enum sets are preserved verbatim. It fails only when a field has
// no resolvable type, reporting the field path in the returned *SchemaError.
func Translate(inputSchema map[string]any) (*genai.Schema, error) {
	if len(inputSchema) == 0 {
		return &genai.Schema{Type: genai.TypeObject}, nil
	}
	// The catalog omits "type" on some top-level schemas; resolveType infers
	// object from the presence of properties without touching the input.
	return translate(inputSchema, "")
}

func translate(schema map[string]any, path string) (*genai.Schema, error) {
	out := &genai.Schema{}

	typ, err := resolveType(schema, path)
	if err != nil {
		return nil, err
	}
	out.Type = typ

	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			propSchema, ok := raw.(map[string]any)
			if !ok {
				return nil, &SchemaError{Path: joinPath(path, "properties."+name), Message: "property is not a schema object"}
			}
			translated, err := translate(propSchema, joinPath(path, "properties."+name))
			if err != nil {
				return nil, err
			}
			out.Properties[name] = translated
		}
	}

	if typ == genai.TypeArray {
		items, ok := schema["items"].(map[string]any)
		if !ok {
			// GHL's catalog leaves items unspecified on a few array params.
			out.Items = &genai.Schema{Type: genai.TypeString}
		} else {
			translated, err := translate(items, joinPath(path, "items"))
			if err != nil {
				return nil, err
			}
			out.Items = translated
		}
	}

	if rawRequired, ok := schema["required"].([]any); ok {
		for _, r := range rawRequired {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}

	if rawEnum, ok := schema["enum"].([]any); ok {
		for _, v := range rawEnum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			} else {
				out.Enum = append(out.Enum, fmt.Sprint(v))
			}
		}
	}

	return out, nil
}

// resolveType determines the genai type for one schema node. A node without
// an explicit "type" is inferred from structure where possible.
func resolveType(schema map[string]any, path string) (genai.Type, error) {
	if raw, ok := schema["type"]; ok {
		name, ok := raw.(string)
		if !ok {
			return genai.TypeUnspecified, &SchemaError{Path: rootPath(path), Message: fmt.Sprintf("type is %T, want string", raw)}
		}
		typ, ok := typeMapping[name]
		if !ok {
			return genai.TypeUnspecified, &SchemaError{Path: rootPath(path), Message: fmt.Sprintf("unsupported type %q", name)}
		}
		return typ, nil
	}
	if _, ok := schema["properties"]; ok {
		return genai.TypeObject, nil
	}
	if _, ok := schema["items"]; ok {
		return genai.TypeArray, nil
	}
	if _, ok := schema["enum"]; ok {
		// Enum-only nodes in the catalog are string-valued.
		return genai.TypeString, nil
	}
	return genai.TypeUnspecified, &SchemaError{Path: rootPath(path), Message: "no resolvable type"}
}

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "." + elem
}

func rootPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
