package program

import (
	"context"
	"errors"
	"fmt"

	"serverless/internal/config"
	"serverless/internal/config/configurator"
	engine "serverless/internal/engine"
	plugins "serverless/internal/plugins"

	cobra "github.com/spf13/cobra"
)

var _ ProgramCLI = (*Program)(nil)

type Program struct {
	Build        string
	Version      string
	Config       *config.Config
	ConfigArg    string
	Configurator configurator.Configurator
	Framework    *engine.Framework
}

func NewProgram(build, version, configArg string, command *cobra.Command) *Program {
	p := Program{
		Build:        build,
		Version:      version,
		ConfigArg:    configArg,
		Configurator: configurator.New(version, configArg, command),
	}
	return &p
}

func (p *Program) Init() {
	p.Config = p.Configurator.InitConfig()
}

// LoadConfig reads the service file. Without a service file the program
// keeps the empty configuration, so only the commands which do not need a
// service are usable.
func (p *Program) LoadConfig() error {
	log := p.Configurator.Logger()
	cfg, err := p.Configurator.LoadConfig(p.ConfigArg)
	if errors.Is(err, configurator.ErrConfigNotFound) {
		log.Debug("No service configuration file found")
		return nil
	}
	if err != nil {
		return err
	}
	log = p.Configurator.Logger()
	log.Debugf("Configuration loaded from file: %s", p.Configurator.GetConfigFile(false))
	if err = p.Configurator.CheckConfig(cfg); err == nil {
		p.Config = cfg
	}
	return err
}

// LoadPlugins creates the framework with the core plugins and the ones
// listed by the service
func (p *Program) LoadPlugins(ctx context.Context) error {
	if p.Config == nil {
		p.Init()
	}
	log := p.Configurator.Logger()
	p.Framework = engine.NewFramework(p.Config, log, nil)
	descriptors, err := plugins.Resolve(p.Config.Plugins, log)
	if err != nil {
		log.Error(err)
		return err
	}
	return p.Framework.Manager.LoadAll(ctx, descriptors...)
}

// Commands returns the commands available to the user
func (p *Program) Commands() engine.CommandMap {
	if p.Framework == nil {
		return engine.CommandMap{}
	}
	return p.Framework.Manager.Commands()
}

// RunCommand runs a command with the flags given by the user
func (p *Program) RunCommand(ctx context.Context, path []string, options engine.Options) error {
	if p.Framework == nil {
		return fmt.Errorf("Plugins not loaded")
	}
	p.Framework.Manager.SetCliOptions(options)
	return p.Framework.Manager.Run(ctx, path)
}
