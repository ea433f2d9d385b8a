package plugins

import (
	"fmt"
	"sort"
	"sync"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
)

var (
	muPlugins sync.RWMutex
	plugins   = make(map[string]engine.Descriptor)
)

// Core is the load order of the built-in plugins. Plugins of the catalogue
// not listed here are only loaded when the service declares them.
var Core = []string{
	"package",
	"deploy",
	"info",
	"invoke",
	"remove",
	"print",
	"plugin",
	"create",
	"aws",
	"kubernetes",
	"docker",
}

// Plugins must call this function in their init
func Register(d engine.Descriptor) {
	muPlugins.Lock()
	defer muPlugins.Unlock()

	if d.Factory == nil {
		panic("Plugin factory is nil")
	}
	if _, exist := plugins[d.Name]; exist {
		panic("Plugin already registered: " + d.Name)
	}
	plugins[d.Name] = d
}

// Lookup returns the descriptor of a plugin of the catalogue
func Lookup(name string) (engine.Descriptor, error) {
	muPlugins.RLock()
	defer muPlugins.RUnlock()

	d, exist := plugins[name]
	if !exist {
		return engine.Descriptor{}, fmt.Errorf("%w: '%s' is not included in the program", engine.ErrPluginNotFound, name)
	}
	return d, nil
}

// List returns the names of the plugins in the catalogue, sorted
func List() []string {
	muPlugins.RLock()
	defer muPlugins.RUnlock()

	result := []string{}
	for k := range plugins {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// IsCore tells if the plugin is always loaded
func IsCore(name string) bool {
	for _, c := range Core {
		if c == name {
			return true
		}
	}
	return false
}

// Resolve returns the descriptors to load: the core plugins first, then the
// ones declared by the service, in the declared order
func Resolve(service []string, l log.Logger) ([]engine.Descriptor, error) {
	result := []engine.Descriptor{}
	for _, name := range Core {
		d, err := Lookup(name)
		if err != nil {
			l.Debugf("Core plugin '%s' not available", name)
			continue
		}
		result = append(result, d)
	}
	for _, name := range service {
		d, err := Lookup(name)
		if err != nil {
			err = fmt.Errorf("Unable to load service plugin: %w", err)
			l.Error(err)
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}
