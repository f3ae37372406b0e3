// Package cli describes storyragd's commands as JSON for --help-json.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AnnotationRequires lists the backing services a command or flag needs.
const AnnotationRequires = "storyrag_requires"

// Backing services named in AnnotationRequires.
const (
	RequiresDatabase = "database"
	RequiresS3       = "s3"
)

// cobra keeps these flag group annotation keys unexported.
const (
	oneRequiredAnnotation       = "cobra_annotation_one_required"
	mutuallyExclusiveAnnotation = "cobra_annotation_mutually_exclusive"
)

// FlagSchema describes one flag.
type FlagSchema struct {
	Name        string   `json:"name"`
	Shorthand   string   `json:"shorthand,omitempty"`
	Type        string   `json:"type"`
	Default     string   `json:"default,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Requires    []string `json:"requires,omitempty"`
}

// CommandSchema describes a command and its subcommands.
type CommandSchema struct {
	Name              string          `json:"name"`
	Args              []string        `json:"args,omitempty"`
	Description       string          `json:"description,omitempty"`
	Long              string          `json:"long,omitempty"`
	Requires          []string        `json:"requires,omitempty"`
	Flags             []FlagSchema    `json:"flags,omitempty"`
	OneRequired       [][]string      `json:"one_required,omitempty"`
	MutuallyExclusive [][]string      `json:"mutually_exclusive,omitempty"`
	Subcommands       []CommandSchema `json:"subcommands,omitempty"`
}

// Requires marks cmd as needing the given backing services.
func Requires(cmd *cobra.Command, services ...string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[AnnotationRequires] = strings.Join(services, ",")
}

// FlagRequires marks a flag of cmd as needing the given backing services
// when it is set.
func FlagRequires(cmd *cobra.Command, flag string, services ...string) {
	_ = cmd.Flags().SetAnnotation(flag, AnnotationRequires, services)
}

// GenerateSchema describes cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Args:        positionalArgs(cmd.Use),
		Description: cmd.Short,
		Long:        cmd.Long,
	}
	if req := cmd.Annotations[AnnotationRequires]; req != "" {
		schema.Requires = strings.Split(req, ",")
	}

	oneRequired := map[string]bool{}
	exclusive := map[string]bool{}
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help-json" || f.Name == "help" {
			return
		}
		schema.Flags = append(schema.Flags, flagToSchema(f))
		for _, g := range f.Annotations[oneRequiredAnnotation] {
			oneRequired[g] = true
		}
		for _, g := range f.Annotations[mutuallyExclusiveAnnotation] {
			exclusive[g] = true
		}
	})
	schema.OneRequired = flagGroups(oneRequired)
	schema.MutuallyExclusive = flagGroups(exclusive)

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

func flagToSchema(f *pflag.Flag) FlagSchema {
	schema := FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
		Requires:    f.Annotations[AnnotationRequires],
	}

	if vals, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(vals) > 0 && vals[0] == "true" {
		schema.Required = true
	}

	return schema
}

// positionalArgs returns the argument placeholders of a Use line, e.g.
// "query <question>" gives ["<question>"].
func positionalArgs(use string) []string {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// flagGroups turns cobra's space-separated group annotations into sorted
// name lists.
func flagGroups(groups map[string]bool) [][]string {
	if len(groups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Strings(keys)

	out := make([][]string, 0, len(keys))
	for _, g := range keys {
		out = append(out, strings.Fields(g))
	}
	return out
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// HandleHelpJSON looks for --help-json in args (without the program name)
// and writes the schema of the command named before it. It reports whether
// the flag was present. Call it before Execute so argument validation does
// not reject the flag.
func HandleHelpJSON(w io.Writer, rootCmd *cobra.Command, args []string) (bool, error) {
	for i, arg := range args {
		if arg == "--help-json" {
			return true, WriteSchema(w, findTargetCommand(rootCmd, args[:i]))
		}
	}
	return false, nil
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}

	return cmd
}
