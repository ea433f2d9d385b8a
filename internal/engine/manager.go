package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"serverless/internal/log"
)

// Manager loads plugins, keeps the merged command registry and runs the
// lifecycle of the commands
type Manager struct {
	fw       *Framework
	log      log.Logger
	options  Options
	registry *Registry
	plugins  []*LoadedPlugin
	// names of the active plugins
	names  map[string]bool
	warned map[string]bool
}

// NewManager creates a manager without plugins. The options map is shared
// with every plugin created by the manager.
func NewManager(fw *Framework, opts Options) *Manager {
	if opts == nil {
		opts = make(Options)
	}
	l := log.StandardLogger()
	if fw != nil && fw.Log != nil {
		l = fw.Log
	}
	return &Manager{
		fw:       fw,
		log:      l.WithField("component", "plugins"),
		options:  opts,
		registry: NewRegistry(),
		names:    make(map[string]bool),
		warned:   make(map[string]bool),
	}
}

// SetCliOptions replaces the raw options. The map given to the plugins is
// kept, so they see the new values.
func (m *Manager) SetCliOptions(opts Options) {
	for k := range m.options {
		delete(m.options, k)
	}
	for k, v := range opts {
		m.options[k] = v
	}
}

func (m *Manager) Options() Options {
	return m.options
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Commands returns the public command tree
func (m *Manager) Commands() CommandMap {
	return m.registry.PublicCommands()
}

// Plugins returns the active plugins in load order
func (m *Manager) Plugins() []*LoadedPlugin {
	return m.plugins
}

func (m *Manager) PluginNames() []string {
	names := make([]string, 0, len(m.plugins))
	for _, p := range m.plugins {
		names = append(names, p.Name)
	}
	return names
}

// Plugin returns an active plugin by name
func (m *Manager) Plugin(name string) (Plugin, error) {
	for _, p := range m.plugins {
		if p.Name == name {
			return p.Plugin, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

func (m *Manager) providerName() string {
	if m.fw == nil {
		return ""
	}
	return m.fw.ProviderName()
}

// AddPlugin creates a plugin and activates it when it applies to the
// configured provider. A plugin which does not apply is skipped without
// error and never contributes commands or hooks.
func (m *Manager) AddPlugin(d Descriptor) error {
	if m.names[d.Name] {
		return &DuplicatePluginError{Name: d.Name}
	}
	provider := m.providerName()
	if d.Provider != nil && d.Provider.ProviderName() != provider {
		m.log.Debugf("Skipping plugin '%s', it is for provider '%s'", d.Name, d.Provider.ProviderName())
		return nil
	}
	if d.Factory == nil {
		return fmt.Errorf("Unable to create plugin '%s': no factory", d.Name)
	}
	p, err := d.Factory(m.fw, m.options)
	if err != nil {
		err = fmt.Errorf("Unable to create plugin '%s': %w", d.Name, err)
		m.log.Error(err)
		return err
	}
	if !ShouldLoad(p, provider) {
		m.log.Debugf("Skipping plugin '%s', it does not apply to provider '%s'", d.Name, provider)
		return nil
	}
	hooks := p.Hooks()
	for event := range hooks {
		if !ValidEventName(event) {
			return &MalformedEventError{Plugin: d.Name, Event: event}
		}
	}
	if err := m.registry.Register(d.Name, p.Commands()); err != nil {
		m.log.Error(err)
		return err
	}
	m.names[d.Name] = true
	m.plugins = append(m.plugins, &LoadedPlugin{
		Name:   d.Name,
		Plugin: p,
		raw:    hooks,
	})
	m.log.Debugf("Loaded plugin '%s'", d.Name)
	return nil
}

// LoadAll adds the plugins in order and then initializes the ones which
// need it
func (m *Manager) LoadAll(ctx context.Context, descriptors ...Descriptor) error {
	for _, d := range descriptors {
		if err := m.AddPlugin(d); err != nil {
			return err
		}
	}
	for _, p := range m.plugins {
		if i, ok := p.Plugin.(Initializer); ok {
			if err := i.Init(ctx); err != nil {
				err = fmt.Errorf("Unable to initialize plugin '%s': %w", p.Name, err)
				m.log.Error(err)
				return err
			}
		}
	}
	return nil
}

// index maps the hooks of every plugin to their events, redirecting the
// deprecated ones. Commands registered by later plugins may deprecate
// events, so this is done before every run.
func (m *Manager) index() {
	for _, p := range m.plugins {
		p.hooks = make(map[string][]Hook, len(p.raw))
		for _, event := range p.Events() {
			target, deprecated := m.registry.RedirectEvent(event)
			if deprecated && !m.warned[p.Name+" "+event] {
				m.warned[p.Name+" "+event] = true
				if target != event {
					m.log.Warnf("Plugin '%s' uses deprecated event '%s', redirected to '%s'", p.Name, event, target)
				} else {
					m.log.Warnf("Plugin '%s' uses deprecated event '%s'", p.Name, event)
				}
			}
			if p.raw[event] == nil {
				continue
			}
			p.hooks[target] = append(p.hooks[target], p.raw[event])
		}
	}
}

// Validate checks that the command exists and it is not an entrypoint
func (m *Manager) Validate(path []string) error {
	return Validate(path, m.registry)
}

// Events returns the lifecycle events of a command
func (m *Manager) Events(path []string) []string {
	return Expand(path, m.registry.Commands())
}

// requireService fails when the command needs a service and none is
// configured
func (m *Manager) requireService(path []string) error {
	if !m.registry.ServiceDependent(path) {
		return nil
	}
	if m.fw == nil || m.fw.Config == nil || !m.fw.Config.HasService() {
		return ErrNoService
	}
	return nil
}

// prepare resolves the options of the command before its lifecycle runs
func (m *Manager) prepare(path []string, command *Command) error {
	ConvertShortcuts(command, m.options)
	if err := m.requireService(path); err != nil {
		return err
	}
	AssignDefaults(command, m.options)
	return nil
}

// runGlobal runs the hooks on one of the global events
func (m *Manager) runGlobal(ctx context.Context, event string) error {
	return runChain(ctx, collect([]string{event}, m.plugins))
}

// Run resolves the options of the command, validates them and runs every
// hook attached to its lifecycle events. The initialize hooks run before
// the lifecycle, except for the plugin commands, and the finalize hooks
// after it succeeds. When the lifecycle fails the error hooks get the
// failure from CommandError and the failure is returned unchanged.
func (m *Manager) Run(ctx context.Context, path []string) error {
	path = m.registry.Resolve(path)
	command, err := m.registry.Lookup(path, false)
	if err != nil {
		return err
	}
	if err := m.prepare(path, command); err != nil {
		return err
	}
	if err := ValidateOptions(command, m.options); err != nil {
		return err
	}
	events := m.Events(path)
	m.index()
	chain := collect(events, m.plugins)
	if len(chain) == 0 {
		return &NoMatchingHookError{Path: path, Events: events}
	}
	if path[0] != "plugin" {
		if err := m.runGlobal(ctx, EventInitialize); err != nil {
			return err
		}
	}
	m.log.Debugf("Running '%s': %d hooks on %d events", strings.Join(path, " "), len(chain), len(events))
	err = runChain(ctx, chain)
	if errors.Is(err, errTerminateHookChainKind) {
		m.log.Debug(err.Error())
		err = nil
	}
	if err != nil {
		if hookErr := m.runGlobal(withCommandError(ctx, err), EventError); hookErr != nil {
			m.log.Warnf("The \"error\" hook crashed with:\n%s", hookErr.Error())
		}
		return err
	}
	return m.runGlobal(ctx, EventFinalize)
}

// Spawn runs the lifecycle of another command, entrypoints included, from
// inside a hook. The command is given with colons, e.g. "deploy:function".
// When terminate is set the calling chain stops after the spawned one,
// without an error for the user. A terminate raised inside the spawned
// lifecycle only ends that lifecycle.
func (m *Manager) Spawn(ctx context.Context, command string, terminate bool) error {
	path := m.registry.Resolve(strings.Split(command, ":"))
	c, err := m.registry.Lookup(path, true)
	if err != nil {
		return err
	}
	if err := m.prepare(path, c); err != nil {
		return err
	}
	events := m.Events(path)
	m.index()
	chain := collect(events, m.plugins)
	if len(chain) == 0 {
		m.log.Debugf("Spawned command '%s' did not catch on any hooks", command)
	}
	err = runChain(ctx, chain)
	if errors.Is(err, errTerminateHookChainKind) {
		m.log.Debug(err.Error())
		err = nil
	}
	if err != nil {
		return err
	}
	if terminate {
		return &terminateHookChain{path: path}
	}
	return nil
}
