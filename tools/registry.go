package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned when a name is not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Definition couples a tool's declared schema with its argument decoder.
type Definition struct {
	Name   Name
	Schema mcptypes.Tool
	decode func(json.RawMessage) (Invocation, error)
}

var propertyItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "description": "The ID of the property"},
		"price":       map[string]any{"type": "number", "description": "The price of the property"},
		"description": map[string]any{"type": "string", "description": "A brief description of the property"},
	},
	"required": []any{"id", "price", "description"},
}

var eventItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date":        map[string]any{"type": "string", "description": "The date of the event, in ISO-8601 format"},
		"headline":    map[string]any{"type": "string", "description": "The headline of the event"},
		"description": map[string]any{"type": "string", "description": "The description of the event"},
	},
	"required": []any{"date", "headline", "description"},
}

var registry = []Definition{
	{
		Name: ListTrendingProperties,
		Schema: mcptypes.NewTool(string(ListTrendingProperties),
			mcptypes.WithDescription("List three popular properties that are currently trending."),
			mcptypes.WithArray("properties",
				mcptypes.Required(),
				mcptypes.Description("The trending properties"),
				mcptypes.Items(propertyItem),
			),
		),
		decode: decodeInto[TrendingProperties],
	},
	{
		Name: ShowPropertyDetails,
		Schema: mcptypes.NewTool(string(ShowPropertyDetails),
			mcptypes.WithDescription("Get the details of a specific property. Use this to show the property information to the user."),
			mcptypes.WithString("id", mcptypes.Required(), mcptypes.Description("The ID of the property.")),
			mcptypes.WithNumber("price", mcptypes.Required(), mcptypes.Description("The price of the property.")),
			mcptypes.WithString("description", mcptypes.Required(), mcptypes.Description("A brief description of the property.")),
		),
		decode: decodeInto[PropertyDetails],
	},
	{
		Name: ShowPropertyInquiryForm,
		Schema: mcptypes.NewTool(string(ShowPropertyInquiryForm),
			mcptypes.WithDescription("Show the UI to submit an inquiry for a property. Use this if the user wants to inquire about a property."),
			mcptypes.WithString("propertyId", mcptypes.Required(), mcptypes.Description("The ID of the property the user wants to inquire about.")),
			mcptypes.WithString("userId", mcptypes.Required(), mcptypes.Description("The ID of the user submitting the inquiry.")),
		),
		decode: decodeInto[InquiryForm],
	},
	{
		Name: GetRealEstateEvents,
		Schema: mcptypes.NewTool(string(GetRealEstateEvents),
			mcptypes.WithDescription("List recent real estate news or events between user-highlighted dates."),
			mcptypes.WithArray("events",
				mcptypes.Required(),
				mcptypes.Description("The news items or events"),
				mcptypes.Items(eventItem),
			),
		),
		decode: decodeInto[RealEstateEvents],
	},
}

// All returns the model-facing tool definitions in declaration order.
func All() []Definition {
	out := make([]Definition, len(registry))
	copy(out, registry)
	return out
}

// Schemas returns the MCP tool schemas offered to the model.
func Schemas() []mcptypes.Tool {
	out := make([]mcptypes.Tool, len(registry))
	for i, d := range registry {
		out[i] = d.Schema
	}
	return out
}

// Lookup finds a model-facing tool by name.
func Lookup(name string) (Definition, bool) {
	for _, d := range registry {
		if string(d.Name) == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Parse resolves name against the registry and validates args against the
// tool's schema. It returns ErrUnknownTool for names outside the registry and
// a *ValidationError for missing or mistyped arguments.
func Parse(name string, args json.RawMessage) (Invocation, error) {
	def, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return def.Parse(args)
}

// Parse validates args against the definition's schema and decodes them.
func (d Definition) Parse(args json.RawMessage) (Invocation, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}

	var value any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}

	if err := validateObject(d.Name, "", d.Schema.InputSchema.Properties, d.Schema.InputSchema.Required, value); err != nil {
		return nil, err
	}

	inv, err := d.decode(args)
	if err != nil {
		return nil, &ValidationError{Tool: d.Name, Reason: err.Error()}
	}
	return inv, nil
}

func decodeInto[T Invocation](args json.RawMessage) (Invocation, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return nil, err
	}
	return v, nil
}
