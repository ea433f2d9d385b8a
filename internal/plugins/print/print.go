package print

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	yaml "gopkg.in/yaml.v3"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "print", Factory: New})
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Print writes the effective service configuration
type Print struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Print{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "print"),
	}, nil
}

func (p *Print) Commands() engine.CommandMap {
	return engine.CommandMap{
		"print": {
			Usage:            "Print your compiled and resolved config file",
			LifecycleEvents:  []string{"print"},
			ServiceDependent: true,
			Options: map[string]*engine.Option{
				"format": {
					Usage:   "Print configuration in given format (\"yaml\", \"json\")",
					Default: "yaml",
					CustomValidation: &engine.CustomValidation{
						RegularExpression: regexp.MustCompile(`^(yaml|json)$`),
						ErrorMessage:      "Format must be \"yaml\" or \"json\"",
					},
				},
				"path": {
					Usage: "Optional period-separated path to print a sub-value (eg: \"provider.name\")",
				},
				"stage":  plugins.StageOption,
				"region": plugins.RegionOption,
			},
		},
	}
}

func (p *Print) Hooks() engine.HookMap {
	return engine.HookMap{
		"print:print": p.print,
	}
}

func (p *Print) print(ctx context.Context) error {
	plugins.ApplyProviderOptions(p.fw, p.opts)
	m, err := p.fw.Config.Map()
	if err != nil {
		p.log.Error(err)
		return err
	}
	var value interface{} = m
	if path := p.opts.String("path"); path != "" {
		if value, err = lookup(m, path); err != nil {
			p.log.Error(err)
			return err
		}
	}
	var out []byte
	switch p.opts.String("format") {
	case "json":
		out, err = json.MarshalIndent(value, "", "  ")
		out = append(out, '\n')
	default:
		out, err = yaml.Marshal(value)
	}
	if err != nil {
		err = fmt.Errorf("Unable to render configuration: %s", err.Error())
		p.log.Error(err)
		return err
	}
	_, err = p.fw.Output.Write(out)
	return err
}

func lookup(m map[string]interface{}, path string) (interface{}, error) {
	var current interface{} = m
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("Path \"%s\" not found in the configuration", path)
		}
		if current, ok = node[key]; !ok {
			return nil, fmt.Errorf("Path \"%s\" not found in the configuration", path)
		}
	}
	return current, nil
}
