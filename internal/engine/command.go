package engine

import (
	"regexp"
	"sort"
)

// CommandType changes how a command is exposed and resolved
type CommandType string

const (
	// CommandTypeDefault commands are visible and runnable
	CommandTypeDefault CommandType = ""
	// CommandTypeEntrypoint commands are hidden from the CLI, only plugins
	// can spawn them
	CommandTypeEntrypoint CommandType = "entrypoint"
	// CommandTypeContainer commands only group sub-commands
	CommandTypeContainer CommandType = "container"
)

// Option types
const (
	OptionTypeString  = "string"
	OptionTypeBoolean = "boolean"
)

type CustomValidation struct {
	RegularExpression *regexp.Regexp
	ErrorMessage      string
}

// Option describes one command line option of a command
type Option struct {
	Usage            string
	Required         bool
	Shortcut         string
	Default          string
	Type             string
	CustomValidation *CustomValidation
}

// Command is a unit of work contributed by plugins. Key and PluginName are
// set by the registry.
type Command struct {
	Usage           string
	Type            CommandType
	LifecycleEvents []string
	Options         map[string]*Option
	Commands        CommandMap
	// colon separated paths which run this command
	Aliases []string
	// the command and its sub-commands need a service configuration
	ServiceDependent bool

	// colon separated path from the root command, e.g. "deploy:function"
	Key string
	// plugin that registered the command first
	PluginName string
}

type CommandMap map[string]*Command

// Names returns the command names, sorted
func (m CommandMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptionNames returns the option names of the command, sorted
func (c *Command) OptionNames() []string {
	names := make([]string, 0, len(c.Options))
	for name := range c.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRunnable tells if the command has a lifecycle
func (c *Command) IsRunnable() bool {
	return len(c.LifecycleEvents) > 0
}

func (o *Option) clone() *Option {
	if o == nil {
		return nil
	}
	n := *o
	if o.CustomValidation != nil {
		cv := *o.CustomValidation
		n.CustomValidation = &cv
	}
	return &n
}

// clone returns a deep copy of the command tree, setting key and plugin name
// on every node
func (c *Command) clone(key, pluginName string) *Command {
	n := &Command{
		Usage:            c.Usage,
		Type:             c.Type,
		ServiceDependent: c.ServiceDependent,
		Key:              key,
		PluginName:       pluginName,
		Options:          make(map[string]*Option, len(c.Options)),
		Commands:         make(CommandMap, len(c.Commands)),
	}
	if c.Aliases != nil {
		n.Aliases = append([]string{}, c.Aliases...)
	}
	if c.LifecycleEvents != nil {
		n.LifecycleEvents = append([]string{}, c.LifecycleEvents...)
	}
	for name, o := range c.Options {
		n.Options[name] = o.clone()
	}
	for name, sub := range c.Commands {
		if sub == nil {
			continue
		}
		n.Commands[name] = sub.clone(key+":"+name, pluginName)
	}
	return n
}

// mergeCommand merges source into target, which must be owned by the
// registry. Lifecycle events are unioned keeping the existing order, options
// are merged key by key (source wins on the same key), sub-commands are
// merged recursively and any other defined field of source overwrites.
func mergeCommand(target, source *Command) *Command {
	if target == nil {
		return source
	}
	seen := make(map[string]bool, len(target.LifecycleEvents))
	for _, e := range target.LifecycleEvents {
		seen[e] = true
	}
	for _, e := range source.LifecycleEvents {
		if !seen[e] {
			target.LifecycleEvents = append(target.LifecycleEvents, e)
			seen[e] = true
		}
	}
	if target.Options == nil {
		target.Options = make(map[string]*Option)
	}
	for name, o := range source.Options {
		target.Options[name] = o
	}
	if target.Commands == nil {
		target.Commands = make(CommandMap)
	}
	for name, sub := range source.Commands {
		target.Commands[name] = mergeCommand(target.Commands[name], sub)
	}
	if source.Usage != "" {
		target.Usage = source.Usage
	}
	if source.Type != CommandTypeDefault {
		target.Type = source.Type
	}
	if source.ServiceDependent {
		target.ServiceDependent = true
	}
	return target
}
