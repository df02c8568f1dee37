package adapter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

// ReservedArgKeys drive dispatch rather than argv construction and are
// never forwarded to the command line.
var ReservedArgKeys = map[string]bool{
	"working_directory": true,
	"timeout_seconds":   true,
	"execution_mode":    true,
	"subcommand":        true,
}

// BuildArgv constructs the argv vector for one tool invocation: base
// command tokens, then positional/flag tokens in the order dictated by
// sub.PositionalArgsFirst, honoring the option rules in order. subTokens is
// the subcommand path as returned by ToolConfig.FindSubcommand — each token
// is itself split on whitespace, since a subcommand's Name may be compiled
// from several nested levels into one space-joined string.
func BuildArgv(tool *toolconfig.ToolConfig, subTokens []string, sub *toolconfig.SubcommandConfig, args map[string]any, workingDir string, spiller Spiller) ([]string, error) {
	argv := []string{tool.Command}
	for _, tok := range subTokens {
		argv = append(argv, strings.Fields(tok)...)
	}

	var positionals []string
	if sub != nil {
		for _, name := range sub.PositionalArgs {
			v, ok := args[name]
			if !ok || v == nil {
				continue
			}
			s, err := stringify(v)
			if err != nil {
				return nil, &ArgumentError{Option: name, Reason: err.Error()}
			}
			positionals = append(positionals, s)
		}
	}

	var flags []string
	if sub != nil {
		var err error
		flags, err = buildFlags(sub.Options, args, workingDir, spiller)
		if err != nil {
			return nil, err
		}
	}

	if sub != nil && sub.PositionalArgsFirst {
		argv = append(argv, positionals...)
		argv = append(argv, flags...)
	} else {
		argv = append(argv, flags...)
		argv = append(argv, positionals...)
	}

	return argv, nil
}

func buildFlags(options []toolconfig.CommandOption, args map[string]any, workingDir string, spiller Spiller) ([]string, error) {
	var out []string
	for _, opt := range options {
		v, present := lookupValue(opt, args)
		if !present || v == nil {
			continue
		}

		switch opt.Type {
		case toolconfig.OptionBoolean:
			b, ok := v.(bool)
			if !ok {
				return nil, &ArgumentError{Option: opt.Name, Reason: "expected boolean"}
			}
			if b {
				out = append(out, "--"+opt.Name)
			}

		case toolconfig.OptionArray:
			items, ok := v.([]any)
			if !ok {
				return nil, &ArgumentError{Option: opt.Name, Reason: "expected array"}
			}
			for _, item := range items {
				s, err := stringify(item)
				if err != nil {
					return nil, &ArgumentError{Option: opt.Name, Reason: err.Error()}
				}
				out = append(out, "--"+opt.Name, s)
			}

		default:
			s, err := stringify(v)
			if err != nil {
				return nil, &ArgumentError{Option: opt.Name, Reason: err.Error()}
			}
			if opt.FileArg && NeedsFileHandling(s) {
				path, err := spiller.Spill(workingDir, s)
				if err != nil {
					return nil, &SpillError{Option: opt.Name, Err: err}
				}
				flag := opt.FileFlag
				if flag == "" {
					flag = "--" + opt.Name
				}
				out = append(out, flag, path)
			} else {
				out = append(out, "--"+opt.Name, s)
			}
		}
	}
	return out, nil
}

// lookupValue resolves an option's value by name first, falling back to
// its alias; if both keys are present in the args map, the full name wins.
func lookupValue(opt toolconfig.CommandOption, args map[string]any) (any, bool) {
	if v, ok := args[opt.Name]; ok {
		return v, true
	}
	if opt.Alias != "" {
		if v, ok := args[opt.Alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// NonSchemaArgs returns the keys of args that are neither reserved
// dispatch keys nor recognized options of sub — present only for callers
// that want to log/ignore them per rule 4 ("ignored, except reserved
// keys").
func NonSchemaArgs(sub *toolconfig.SubcommandConfig, args map[string]any) []string {
	known := map[string]bool{}
	if sub != nil {
		for _, opt := range sub.Options {
			known[opt.Name] = true
			if opt.Alias != "" {
				known[opt.Alias] = true
			}
		}
		for _, p := range sub.PositionalArgs {
			known[p] = true
		}
	}
	var extra []string
	for k := range args {
		if ReservedArgKeys[k] || known[k] {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return extra
}
