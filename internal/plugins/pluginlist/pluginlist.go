package pluginlist

import (
	"context"
	"strings"

	engine "serverless/internal/engine"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "plugin", Factory: New})
}

// PluginList shows the plugins of the program and the ones loaded for the
// service
type PluginList struct {
	fw   *engine.Framework
	opts engine.Options
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &PluginList{fw: fw, opts: opts}, nil
}

func (p *PluginList) Commands() engine.CommandMap {
	return engine.CommandMap{
		"plugin": {
			Usage: "Plugin management for Serverless",
			Type:  engine.CommandTypeContainer,
			Commands: engine.CommandMap{
				"list": {
					Usage:           "Lists all available plugins",
					LifecycleEvents: []string{"list"},
					Aliases:         []string{"plugins"},
					Options: map[string]*engine.Option{
						"hooks": {
							Usage: "Show the events each loaded plugin is hooked on",
							Type:  engine.OptionTypeBoolean,
						},
					},
				},
			},
		},
	}
}

func (p *PluginList) Hooks() engine.HookMap {
	return engine.HookMap{
		"plugin:list:list": p.list,
	}
}

func (p *PluginList) list(ctx context.Context) error {
	loaded := make(map[string]*engine.LoadedPlugin)
	for _, lp := range p.fw.Manager.Plugins() {
		loaded[lp.Name] = lp
	}
	fields := []plugins.Field{}
	for _, name := range plugins.List() {
		line := name
		if plugins.IsCore(name) {
			line += " " + plugins.Gray("(core)")
		}
		if lp, ok := loaded[name]; ok {
			line += " " + plugins.Yellow("loaded")
			if p.opts.Bool("hooks") && len(lp.Events()) > 0 {
				line += "\n    " + strings.Join(lp.Events(), "\n    ")
			}
		}
		fields = append(fields, plugins.Field{Key: line})
	}
	plugins.PrintSection(p.fw.Output, "Plugins", fields...)
	return nil
}
