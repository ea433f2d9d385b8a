package deploy

import (
	"context"
	"fmt"
	"os"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "deploy", Factory: New})
}

// Deploy defines the deploy commands. The provider plugins do the work.
type Deploy struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Deploy{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "deploy"),
	}, nil
}

func (d *Deploy) Commands() engine.CommandMap {
	return engine.CommandMap{
		"deploy": {
			Usage:            "Deploy a Serverless service",
			LifecycleEvents:  []string{"deploy", "finalize"},
			ServiceDependent: true,
			Options: map[string]*engine.Option{
				"stage":  plugins.StageOption,
				"region": plugins.RegionOption,
				"package": {
					Usage:    "Path of the deployment package",
					Shortcut: "p",
				},
				"force": {
					Usage: "Forces a deployment to take place",
					Type:  engine.OptionTypeBoolean,
				},
			},
			Commands: engine.CommandMap{
				"function": {
					Usage:           "Deploy a single function from the service",
					LifecycleEvents: []string{"initialize", "packageFunction", "deploy"},
					Options: map[string]*engine.Option{
						"function": plugins.FunctionOption,
						"stage":    plugins.StageOption,
						"region":   plugins.RegionOption,
						"force": {
							Usage: "Forces a deployment to take place",
							Type:  engine.OptionTypeBoolean,
						},
					},
				},
				"list": {
					Usage:           "List deployed version of your Serverless Service",
					LifecycleEvents: []string{"log"},
					Options: map[string]*engine.Option{
						"stage":  plugins.StageOption,
						"region": plugins.RegionOption,
					},
					Commands: engine.CommandMap{
						"functions": {
							Usage:           "List all the deployed functions and their versions",
							LifecycleEvents: []string{"log"},
							Options: map[string]*engine.Option{
								"stage":  plugins.StageOption,
								"region": plugins.RegionOption,
							},
						},
					},
				},
			},
		},
	}
}

func (d *Deploy) Hooks() engine.HookMap {
	return engine.HookMap{
		"before:deploy:deploy":             d.beforeDeploy,
		"after:deploy:finalize":            d.afterDeploy,
		"deploy:function:initialize":       d.initializeFunction,
		"deploy:function:packageFunction":  d.packageFunction,
		"before:deploy:list:log":           d.prepare,
		"before:deploy:list:functions:log": d.prepare,
	}
}

func (d *Deploy) prepare(ctx context.Context) error {
	plugins.ApplyProviderOptions(d.fw, d.opts)
	return nil
}

// beforeDeploy packages the service, unless a package is given
func (d *Deploy) beforeDeploy(ctx context.Context) error {
	if err := d.prepare(ctx); err != nil {
		return err
	}
	if d.opts.String("package") == "" {
		return d.fw.Manager.Spawn(ctx, "package", false)
	}
	artifact := plugins.ArtifactPath(d.fw, d.opts)
	if _, err := os.Stat(artifact); err != nil {
		err = fmt.Errorf("Unable to use package '%s': %s", artifact, err.Error())
		d.log.Error(err)
		return err
	}
	d.fw.Config.Package.Artifact = artifact
	return nil
}

func (d *Deploy) afterDeploy(ctx context.Context) error {
	cfg := d.fw.Config
	d.log.Infof("Service %s deployed to stage %s (%s)", cfg.Service, cfg.Provider.Stage, cfg.Provider.Region)
	return nil
}

func (d *Deploy) initializeFunction(ctx context.Context) error {
	if err := d.prepare(ctx); err != nil {
		return err
	}
	name, _, err := plugins.Function(d.fw, d.opts)
	if err != nil {
		d.log.Error(err)
		return err
	}
	d.log.Debugf("Deploying function %s", name)
	return nil
}

func (d *Deploy) packageFunction(ctx context.Context) error {
	return d.fw.Manager.Spawn(ctx, "package:function", false)
}
