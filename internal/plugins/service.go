package plugins

import (
	"fmt"
	"path/filepath"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
)

// Options shared by the commands working on a deployed stage
var (
	StageOption = &engine.Option{
		Usage:    "Stage of the service",
		Shortcut: "s",
	}
	RegionOption = &engine.Option{
		Usage:    "Region of the service",
		Shortcut: "r",
	}
	FunctionOption = &engine.Option{
		Usage:    "The function name",
		Shortcut: "f",
		Required: true,
	}
)

// ApplyProviderOptions overrides the configured stage and region with the
// command line options
func ApplyProviderOptions(fw *engine.Framework, opts engine.Options) {
	if stage := opts.String("stage"); stage != "" {
		fw.Config.Provider.Stage = stage
	}
	if region := opts.String("region"); region != "" {
		fw.Config.Provider.Region = region
	}
}

// Function returns the function of the service named by the function option
func Function(fw *engine.Framework, opts engine.Options) (string, *config.Function, error) {
	name := opts.String("function")
	f, exists := fw.Config.Functions[name]
	if !exists || f == nil {
		return name, nil, fmt.Errorf("Function \"%s\" doesn't exist in this Service", name)
	}
	return name, f, nil
}

// StateDir is the folder where the service artifacts are written. The
// package option overrides it.
func StateDir(fw *engine.Framework, opts engine.Options) string {
	if p := opts.String("package"); p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(fw.Config.ServicePath, p)
	}
	return filepath.Join(fw.Config.ServicePath, config.ServiceStateDir)
}

// ArtifactPath is the service artifact inside StateDir
func ArtifactPath(fw *engine.Framework, opts engine.Options) string {
	return filepath.Join(StateDir(fw, opts), fw.Config.Service+".tar")
}
