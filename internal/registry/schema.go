package registry

import (
	"sort"

	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

// ToolDescriptor is the MCP-facing shape of one tool, as returned by
// tools/list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
	Disabled    bool           `json:"disabled,omitempty"`
	InstallHint string         `json:"installHint,omitempty"`
}

// propertySchema maps one CommandOption onto a JSON schema property.
func propertySchema(opt toolconfig.CommandOption) map[string]any {
	prop := map[string]any{}
	switch opt.Type {
	case toolconfig.OptionBoolean:
		prop["type"] = "boolean"
	case toolconfig.OptionInteger:
		prop["type"] = "integer"
	case toolconfig.OptionNumber:
		prop["type"] = "number"
	case toolconfig.OptionArray:
		itemType := "string"
		if opt.Items != nil {
			switch opt.Items.Type {
			case toolconfig.OptionInteger:
				itemType = "integer"
			case toolconfig.OptionNumber:
				itemType = "number"
			case toolconfig.OptionBoolean:
				itemType = "boolean"
			}
		}
		prop["type"] = "array"
		prop["items"] = map[string]any{"type": itemType}
	default:
		prop["type"] = "string"
		if opt.Format == toolconfig.FormatPath {
			prop["format"] = "path"
		}
	}
	if opt.Description != "" {
		prop["description"] = opt.Description
	}
	return prop
}

// collectLeafProperties walks a subcommand tree and merges every leaf's
// options and positional args into one flat property set, plus the set of
// leaf path strings for the "subcommand" enum. A tool call names which leaf
// it wants via the reserved "subcommand" argument (space-joined path); the
// schema can't conditionally scope properties to a specific leaf without a
// oneOf per branch, so properties are the union across all leaves —
// callers are expected to pass only the arguments relevant to the leaf
// they selected, same as Adapter's "extra keys are ignored" rule.
func collectLeafProperties(subs []toolconfig.SubcommandConfig, prefix string, props map[string]any, required map[string]bool, paths *[]string) {
	for _, sub := range subs {
		path := sub.Name
		if prefix != "" {
			path = prefix + " " + sub.Name
		}
		if len(sub.Subcommands) == 0 {
			*paths = append(*paths, path)
		}
		for _, opt := range sub.Options {
			props[opt.Name] = propertySchema(opt)
			if opt.Required {
				required[opt.Name] = true
			}
		}
		for _, pos := range sub.PositionalArgs {
			if _, exists := props[pos]; !exists {
				props[pos] = map[string]any{"type": "string"}
			}
			required[pos] = true
		}
		collectLeafProperties(sub.Subcommands, path, props, required, paths)
	}
}

// Schema builds the MCP inputSchema for tool: a JSON Schema object whose
// properties are the union of every subcommand leaf's options and
// positional args, plus the reserved dispatch keys.
func Schema(tool *toolconfig.ToolConfig) map[string]any {
	props := map[string]any{
		"working_directory": map[string]any{"type": "string", "description": "directory the command runs in"},
		"timeout_seconds":   map[string]any{"type": "number", "description": "per-call timeout, capped at 600s"},
		"execution_mode":    map[string]any{"type": "string", "enum": []string{"sync", "async"}},
	}
	required := map[string]bool{}
	var leafPaths []string
	collectLeafProperties(tool.Subcommands, "", props, required, &leafPaths)

	if len(leafPaths) > 0 {
		props["subcommand"] = map[string]any{"type": "string", "enum": leafPaths}
	}

	requiredList := make([]string, 0, len(required))
	for name := range required {
		requiredList = append(requiredList, name)
	}
	sort.Strings(requiredList)

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   requiredList,
	}
}

// Describe builds the tools/list descriptor for tool, given its current
// enabled/availability state.
func Describe(tool *toolconfig.ToolConfig, available bool) ToolDescriptor {
	return ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: Schema(tool),
		Disabled:    !tool.IsEnabled() || !available,
		InstallHint: tool.InstallHint,
	}
}
