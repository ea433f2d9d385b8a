package remove

import (
	"context"
	"fmt"
	"os"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "remove", Factory: New})
}

// Remove defines the remove command, providers delete the resources
type Remove struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Remove{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "remove"),
	}, nil
}

func (r *Remove) Commands() engine.CommandMap {
	return engine.CommandMap{
		"remove": {
			Usage:            "Remove Serverless service and all resources",
			LifecycleEvents:  []string{"remove"},
			ServiceDependent: true,
			Options: map[string]*engine.Option{
				"stage":  plugins.StageOption,
				"region": plugins.RegionOption,
				"verbose": {
					Usage:    "Show all stack events during deployment",
					Shortcut: "v",
					Type:     engine.OptionTypeBoolean,
				},
			},
		},
	}
}

func (r *Remove) Hooks() engine.HookMap {
	return engine.HookMap{
		"before:remove:remove": r.prepare,
		"after:remove:remove":  r.cleanup,
	}
}

func (r *Remove) prepare(ctx context.Context) error {
	plugins.ApplyProviderOptions(r.fw, r.opts)
	return nil
}

// cleanup deletes the local artifacts once the provider removed the service
func (r *Remove) cleanup(ctx context.Context) error {
	dir := plugins.StateDir(r.fw, engine.Options{})
	if err := os.RemoveAll(dir); err != nil {
		err = fmt.Errorf("Unable to clean '%s': %s", dir, err.Error())
		r.log.Error(err)
		return err
	}
	cfg := r.fw.Config
	r.log.Infof("Service %s removed from stage %s (%s)", cfg.Service, cfg.Provider.Stage, cfg.Provider.Region)
	return nil
}
