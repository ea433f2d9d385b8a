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
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	cli "serverless/internal/program"

	cobra "github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
)

var (
	program cli.ProgramCLI
	// Version is injected at compile time (from main.go)
	Version string
	// Build is injected at compile time (from main.go)
	Build string
	// Cmd represents the base command when called without any subcommands
	Cmd = &cobra.Command{
		Use:           "serverless",
		Short:         "Serverless",
		Long:          `Build, deploy and operate serverless services with plugins`,
		Args:          cobra.ArbitraryArgs,
		RunE:          root,
		SilenceUsage:  true,
		SilenceErrors: true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
	}
)

func init() {
	program = cli.NewProgram(Build, Version, "config", Cmd)
}

// Run loads the service and its plugins, builds the command tree from them
// and executes it. This is called by main.main().
func Run(version, build string) {
	Version = version
	Build = build
	if err := run(os.Args[1:]); err != nil {
		fmt.Printf("Errors:\n")
		fmt.Printf("\t%s\n\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	bootstrap(args)
	program.Init()
	if err := program.LoadConfig(); err != nil {
		return err
	}
	if err := program.LoadPlugins(ctx); err != nil {
		return err
	}
	Cmd.Version = Version
	AddCommands(Cmd, program.Commands(), program.RunCommand)
	Cmd.SetArgs(args)
	return Cmd.ExecuteContext(ctx)
}

// bootstrap parses the global flags, which are needed to load the service
// before the command tree exists
func bootstrap(args []string) {
	flags := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.SetOutput(ioutil.Discard)
	flags.AddFlagSet(Cmd.PersistentFlags())
	flags.BoolP("help", "h", false, "")
	flags.BoolP("version", "", false, "")
	flags.Parse(args)
}

// root hands unknown commands to the framework, which reports them
func root(command *cobra.Command, args []string) error {
	if len(args) == 0 {
		return command.Help()
	}
	return program.RunCommand(command.Context(), args, nil)
}
