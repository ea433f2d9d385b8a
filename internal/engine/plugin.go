package engine

import (
	"context"
	"sort"
)

// Plugin supplies commands and the hooks attached to lifecycle events
type Plugin interface {
	Commands() CommandMap
	Hooks() HookMap
}

// ProviderRef identifies the provider a plugin applies to
type ProviderRef interface {
	ProviderName() string
}

// ProviderName is a provider given by its plain name
type ProviderName string

func (p ProviderName) ProviderName() string {
	return string(p)
}

// ProviderScoped is implemented by plugins that only apply to one provider.
// A nil ProviderRef means the plugin applies to every provider.
type ProviderScoped interface {
	Provider() ProviderRef
}

// Initializer is implemented by plugins which need to do some work once all
// plugins are loaded, before any command runs
type Initializer interface {
	Init(ctx context.Context) error
}

// Factory creates a plugin. It is called once per run.
type Factory func(fw *Framework, opts Options) (Plugin, error)

// Descriptor is a named plugin factory. When Provider is set, the plugin is
// only created for that provider.
type Descriptor struct {
	Name     string
	Provider ProviderRef
	Factory  Factory
}

// LoadedPlugin is an active plugin with its hooks indexed by event, after
// deprecated events have been redirected
type LoadedPlugin struct {
	Name   string
	Plugin Plugin
	raw    HookMap
	hooks  map[string][]Hook
}

// Events returns the events the plugin has hooks on
func (p *LoadedPlugin) Events() []string {
	events := make([]string, 0, len(p.raw))
	for e := range p.raw {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// ShouldLoad tells if the plugin applies to the configured provider
func ShouldLoad(p Plugin, providerName string) bool {
	scoped, ok := p.(ProviderScoped)
	if !ok {
		return true
	}
	ref := scoped.Provider()
	if ref == nil {
		return true
	}
	return ref.ProviderName() == providerName
}
