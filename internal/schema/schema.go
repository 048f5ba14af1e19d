// Package schema describes the command tree in machine-readable form so
// agents and UI layers can discover the surface without parsing help text.
package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Command struct {
	Path        string    `json:"path"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Aliases     []string  `json:"aliases,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	GlobalFlags []Flag    `json:"globalFlags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Describe resolves path (space-separated command names, empty for the
// root) and serializes that subtree. Global flags appear once, on the
// returned node, instead of repeating on every subcommand.
func Describe(root *cobra.Command, path string) (Command, error) {
	cmd, err := resolve(root, path)
	if err != nil {
		return Command{}, err
	}
	out := describe(cmd)
	out.GlobalFlags = flagList(root.PersistentFlags())
	return out, nil
}

func resolve(root *cobra.Command, path string) (*cobra.Command, error) {
	cmd := root
	for _, name := range strings.Fields(strings.TrimSpace(path)) {
		next := findChild(cmd, name)
		if next == nil {
			return nil, fmt.Errorf("unknown command %q", path)
		}
		cmd = next
	}
	return cmd, nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, child := range cmd.Commands() {
		if child.Name() == name {
			return child
		}
		for _, alias := range child.Aliases {
			if alias == name {
				return child
			}
		}
	}
	return nil
}

func describe(cmd *cobra.Command) Command {
	out := Command{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   flagList(cmd.NonInheritedFlags()),
	}
	for _, child := range cmd.Commands() {
		if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
			continue
		}
		out.Subcommands = append(out.Subcommands, describe(child))
	}
	return out
}

func flagList(set *pflag.FlagSet) []Flag {
	var out []Flag
	set.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		out = append(out, Flag{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required(f),
		})
	})
	return out
}

func required(f *pflag.Flag) bool {
	values, ok := f.Annotations[cobra.BashCompOneRequiredFlag]
	return ok && len(values) > 0 && values[0] == "true"
}
