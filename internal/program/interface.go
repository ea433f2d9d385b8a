package program

import (
	"context"

	engine "serverless/internal/engine"
)

type ProgramCLI interface {
	Init()
	LoadConfig() error
	LoadPlugins(ctx context.Context) error
	Commands() engine.CommandMap
	RunCommand(ctx context.Context, path []string, options engine.Options) error
}
