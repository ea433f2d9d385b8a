// Copyright © 2021 Springer Nature Engineering Enablement, Jose Riguera
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serverless

import (
	"context"

	engine "serverless/internal/engine"

	cobra "github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
)

// Runner runs a command of the framework
type Runner func(ctx context.Context, path []string, options engine.Options) error

// AddCommands adds one cobra command per framework command, with one flag
// per option. Shortcuts are flags on their own, so the framework receives
// the flags exactly as they were given.
func AddCommands(parent *cobra.Command, commands engine.CommandMap, run Runner) {
	addCommands(parent, nil, commands, run)
}

func addCommands(parent *cobra.Command, path []string, commands engine.CommandMap, run Runner) {
	for _, name := range commands.Names() {
		parent.AddCommand(newCommand(append(append([]string{}, path...), name), commands[name], run))
	}
}

func newCommand(path []string, c *engine.Command, run Runner) *cobra.Command {
	command := &cobra.Command{
		Use:           path[len(path)-1],
		Short:         c.Usage,
		Hidden:        c.Type == engine.CommandTypeEntrypoint,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, args []string) error {
			if len(args) == 0 && !c.IsRunnable() {
				return command.Help()
			}
			full := append(append([]string{}, path...), args...)
			return run(command.Context(), full, options(command))
		},
	}
	flags := command.Flags()
	for _, name := range c.OptionNames() {
		option := c.Options[name]
		addFlag(flags, name, "", option)
		shortcut := option.Shortcut
		if shortcut == "" || shortcut == "h" || flags.Lookup(shortcut) != nil {
			continue
		}
		if len(shortcut) == 1 {
			if flags.ShorthandLookup(shortcut) != nil {
				continue
			}
			addFlag(flags, shortcut, shortcut, option)
		} else {
			addFlag(flags, shortcut, "", option)
		}
	}
	addCommands(command, path, c.Commands, run)
	return command
}

func addFlag(flags *pflag.FlagSet, name, shorthand string, option *engine.Option) {
	usage := option.Usage
	if option.Required {
		usage += " (required)"
	}
	if option.Type == engine.OptionTypeBoolean {
		flags.BoolP(name, shorthand, false, usage)
		return
	}
	flags.StringP(name, shorthand, "", usage)
}

// options returns the flags given by the user, without the global ones
func options(command *cobra.Command) engine.Options {
	opts := engine.Options{}
	command.Flags().Visit(func(f *pflag.Flag) {
		if command.Root().PersistentFlags().Lookup(f.Name) != nil {
			return
		}
		if f.Value.Type() == "bool" {
			opts[f.Name] = f.Value.String() == "true"
			return
		}
		opts[f.Name] = f.Value.String()
	})
	return opts
}
