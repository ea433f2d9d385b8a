package info

import (
	"context"
	"fmt"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "info", Factory: New})
}

// Info prints the service summary. Providers add the deployed details on
// the same event.
type Info struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Info{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "info"),
	}, nil
}

func (i *Info) Commands() engine.CommandMap {
	return engine.CommandMap{
		"info": {
			Usage:            "Display information about the service",
			LifecycleEvents:  []string{"info"},
			ServiceDependent: true,
			Options: map[string]*engine.Option{
				"stage":  plugins.StageOption,
				"region": plugins.RegionOption,
				"verbose": {
					Usage:    "Display more information",
					Shortcut: "v",
					Type:     engine.OptionTypeBoolean,
				},
			},
		},
	}
}

func (i *Info) Hooks() engine.HookMap {
	return engine.HookMap{
		"before:info:info": i.prepare,
		"info:info":        i.info,
	}
}

func (i *Info) prepare(ctx context.Context) error {
	plugins.ApplyProviderOptions(i.fw, i.opts)
	return nil
}

func (i *Info) info(ctx context.Context) error {
	cfg := i.fw.Config
	fields := []plugins.Field{
		{Key: "service", Value: cfg.Service},
		{Key: "provider", Value: cfg.Provider.Name},
		{Key: "stage", Value: cfg.Provider.Stage},
		{Key: "region", Value: cfg.Provider.Region},
	}
	plugins.PrintSection(i.fw.Output, "Service Information", fields...)
	functions := []plugins.Field{}
	for _, name := range cfg.FunctionNames() {
		f := cfg.Functions[name]
		line := fmt.Sprintf("%s: %s", name, f.Handler)
		if i.opts.Bool("verbose") && f.Description != "" {
			line += " " + plugins.Gray("("+f.Description+")")
		}
		functions = append(functions, plugins.Field{Key: line})
	}
	plugins.PrintSection(i.fw.Output, "functions:", functions...)
	return nil
}
