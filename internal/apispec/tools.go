package apispec

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/mcp-go/mcp"
)

const hiddenExtension = "x-mcp-hidden"

// Tools builds one MCP tool per documented operation. Request body
// properties and path parameters become top-level tool arguments.
// Operations marked x-mcp-hidden and tools the adjuster drops are skipped.
func (s *Spec) Tools(adj *Adjuster) []mcp.Tool {
	var tools []mcp.Tool
	for _, op := range s.Operations() {
		if hidden, _ := op.Op.Extensions[hiddenExtension].(bool); hidden {
			continue
		}
		if !adj.Enabled(op.ID) {
			continue
		}
		tools = append(tools, s.toolFor(op, adj))
	}
	return tools
}

func (s *Spec) toolFor(op Operation, adj *Adjuster) mcp.Tool {
	desc := op.Op.Description
	if desc == "" {
		desc = op.Op.Summary
	}
	opts := []mcp.ToolOption{
		mcp.WithDescription(adj.Description(op.ID, desc)),
	}

	for _, param := range op.Op.Parameters {
		if param.Value == nil || param.Value.In != openapi3.ParameterInPath {
			continue
		}
		opts = append(opts, schemaToMCPOptions(param.Value.Schema, param.Value.Name, param.Value.Description, true))
	}

	if body := bodySchema(op.Op); body != nil {
		required := make(map[string]bool, len(body.Value.Required))
		for _, name := range body.Value.Required {
			required[name] = true
		}
		for name, prop := range body.Value.Properties {
			description := ""
			if prop.Value != nil {
				description = prop.Value.Description
			}
			opts = append(opts, schemaToMCPOptions(prop, name, description, required[name]))
		}
	}

	return mcp.NewTool(op.ID, opts...)
}

func bodySchema(op *openapi3.Operation) *openapi3.SchemaRef {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil
	}
	return media.Schema
}

// schemaToMCPOptions converts an OpenAPI schema to an MCP tool option
func schemaToMCPOptions(schema *openapi3.SchemaRef, name, description string, required bool) mcp.ToolOption {
	baseOpts := []mcp.PropertyOption{
		mcp.Description(description),
	}
	if required {
		baseOpts = append(baseOpts, mcp.Required())
	}

	if schema == nil || schema.Value == nil || schema.Value.Type == nil {
		return mcp.WithObject(name, baseOpts...)
	}

	switch {
	case schema.Value.Type.Includes(openapi3.TypeArray):
		return createArrayOption(schema, name, baseOpts)

	case schema.Value.Type.Includes(openapi3.TypeObject):
		return createObjectOption(schema, name, baseOpts)

	case schema.Value.Type.Includes(openapi3.TypeString):
		return createStringOption(schema, name, baseOpts)

	case schema.Value.Type.Includes(openapi3.TypeNumber) || schema.Value.Type.Includes(openapi3.TypeInteger):
		return createNumberOption(schema, name, baseOpts)

	case schema.Value.Type.Includes(openapi3.TypeBoolean):
		return mcp.WithBoolean(name, baseOpts...)

	default:
		baseOpts[0] = mcp.Description(fmt.Sprintf("%s (unknown type: %v)", description, schema.Value.Type.Slice()))
		return mcp.WithObject(name, baseOpts...)
	}
}

func createArrayOption(schema *openapi3.SchemaRef, name string, baseOpts []mcp.PropertyOption) mcp.ToolOption {
	arrayOpts := baseOpts
	if schema.Value.Items != nil && schema.Value.Items.Value != nil {
		arrayOpts = append(arrayOpts, mcp.Items(propertySchema(schema.Value.Items.Value)))
	}
	return mcp.WithArray(name, arrayOpts...)
}

func createObjectOption(schema *openapi3.SchemaRef, name string, baseOpts []mcp.PropertyOption) mcp.ToolOption {
	objOpts := baseOpts
	if len(schema.Value.Properties) > 0 {
		props := make(map[string]any, len(schema.Value.Properties))
		for propName, propSchema := range schema.Value.Properties {
			if propSchema.Value != nil {
				props[propName] = propertySchema(propSchema.Value)
			}
		}
		objOpts = append(objOpts, mcp.Properties(props))
	}
	if len(schema.Value.Required) > 0 {
		required := schema.Value.Required
		objOpts = append(objOpts, func(m map[string]any) {
			m["required"] = required
		})
	}
	return mcp.WithObject(name, objOpts...)
}

// propertySchema renders a nested schema as a plain JSON schema map.
func propertySchema(s *openapi3.Schema) map[string]any {
	prop := make(map[string]any)
	if s.Type != nil && len(s.Type.Slice()) > 0 {
		prop["type"] = s.Type.Slice()[0]
	}
	if s.Description != "" {
		prop["description"] = s.Description
	}

	if s.Type == nil {
		return prop
	}
	switch {
	case s.Type.Includes(openapi3.TypeString):
		if s.MaxLength != nil {
			prop["maxLength"] = *s.MaxLength
		}
		if s.MinLength != 0 {
			prop["minLength"] = s.MinLength
		}
		if s.Pattern != "" {
			prop["pattern"] = s.Pattern
		}
		if len(s.Enum) > 0 {
			prop["enum"] = s.Enum
		}
	case s.Type.Includes(openapi3.TypeNumber) || s.Type.Includes(openapi3.TypeInteger):
		if s.Max != nil {
			prop["maximum"] = *s.Max
		}
		if s.Min != nil {
			prop["minimum"] = *s.Min
		}
	}
	return prop
}

func createStringOption(schema *openapi3.SchemaRef, name string, baseOpts []mcp.PropertyOption) mcp.ToolOption {
	stringOpts := baseOpts
	if len(schema.Value.Enum) > 0 {
		enumValues := make([]string, 0, len(schema.Value.Enum))
		for _, val := range schema.Value.Enum {
			if strVal, ok := val.(string); ok {
				enumValues = append(enumValues, strVal)
			}
		}
		if len(enumValues) > 0 {
			stringOpts = append(stringOpts, mcp.Enum(enumValues...))
		}
	}
	if schema.Value.MaxLength != nil {
		stringOpts = append(stringOpts, mcp.MaxLength(int(*schema.Value.MaxLength)))
	}
	if schema.Value.MinLength != 0 {
		stringOpts = append(stringOpts, mcp.MinLength(int(schema.Value.MinLength)))
	}
	if schema.Value.Pattern != "" {
		stringOpts = append(stringOpts, mcp.Pattern(schema.Value.Pattern))
	}
	return mcp.WithString(name, stringOpts...)
}

func createNumberOption(schema *openapi3.SchemaRef, name string, baseOpts []mcp.PropertyOption) mcp.ToolOption {
	numberOpts := baseOpts
	if schema.Value.Max != nil {
		numberOpts = append(numberOpts, mcp.Max(*schema.Value.Max))
	}
	if schema.Value.Min != nil {
		numberOpts = append(numberOpts, mcp.Min(*schema.Value.Min))
	}
	return mcp.WithNumber(name, numberOpts...)
}
