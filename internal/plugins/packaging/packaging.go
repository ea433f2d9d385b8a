package packaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
	tar "serverless/pkg/tar"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "package", Factory: New})
}

// Excluded from every artifact
var defaultExcludes = []string{config.ServiceStateDir, ".git", ".gitignore", ".DS_Store"}

// Package creates the deployment artifact of the service: a tarball with the
// service folder
type Package struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Package{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "package"),
	}, nil
}

func (p *Package) Commands() engine.CommandMap {
	return engine.CommandMap{
		"package": {
			Usage:            "Packages a Serverless service",
			ServiceDependent: true,
			LifecycleEvents: []string{
				"cleanup",
				"initialize",
				"setupProviderConfiguration",
				"createDeploymentArtifacts",
				"compileLayers",
				"compileFunctions",
				"compileEvents",
				"finalize",
			},
			Options: map[string]*engine.Option{
				"stage":  plugins.StageOption,
				"region": plugins.RegionOption,
				"package": {
					Usage:    "Output path for the package",
					Shortcut: "p",
				},
			},
			Commands: engine.CommandMap{
				"function": {
					Type:            engine.CommandTypeEntrypoint,
					LifecycleEvents: []string{"package"},
				},
			},
		},
	}
}

func (p *Package) Hooks() engine.HookMap {
	return engine.HookMap{
		"package:cleanup":                   p.cleanup,
		"package:createDeploymentArtifacts": p.createArtifact,
		"package:function:package":          p.packageFunction,
		"package:finalize":                  p.finalize,
	}
}

func (p *Package) cleanup(ctx context.Context) error {
	plugins.ApplyProviderOptions(p.fw, p.opts)
	dir := plugins.StateDir(p.fw, p.opts)
	p.log.Debugf("Removing %s", dir)
	if err := os.RemoveAll(dir); err != nil {
		err = fmt.Errorf("Unable to clean '%s': %s", dir, err.Error())
		p.log.Error(err)
		return err
	}
	return nil
}

func (p *Package) createArtifact(ctx context.Context) error {
	cfg := p.fw.Config
	// a prebuilt artifact given in the service is used as is
	if cfg.Package.Artifact != "" {
		if _, err := os.Stat(cfg.Package.Artifact); err == nil {
			p.log.Infof("Using artifact %s", cfg.Package.Artifact)
			return nil
		}
	}
	artifact := plugins.ArtifactPath(p.fw, p.opts)
	skip := append(append([]string{}, defaultExcludes...), cfg.Package.Exclude...)
	if rel, err := filepath.Rel(cfg.ServicePath, filepath.Dir(artifact)); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		skip = append(skip, rel)
	}
	t, err := tar.NewTarFile(artifact, p.log)
	if err != nil {
		err = fmt.Errorf("Unable to create artifact '%s': %s", artifact, err.Error())
		p.log.Error(err)
		return err
	}
	err = t.Add(ctx, cfg.ServicePath, ".", tar.Skip(skip...), tar.Include(cfg.Package.Include...))
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		err = fmt.Errorf("Unable to package service '%s': %s", cfg.Service, err.Error())
		p.log.Error(err)
		return err
	}
	cfg.Package.Artifact = artifact
	p.log.Infof("Packaged service %s: %d files in %s", cfg.Service, t.Files(), artifact)
	return nil
}

func (p *Package) packageFunction(ctx context.Context) error {
	name, _, err := plugins.Function(p.fw, p.opts)
	if err != nil {
		return err
	}
	p.log.Infof("Packaging function %s", name)
	return p.createArtifact(ctx)
}

func (p *Package) finalize(ctx context.Context) error {
	p.log.Debugf("Package of service %s finished", p.fw.Config.Service)
	return nil
}
