package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// deprecated#<stem>[-><event>]
var deprecatedEventRegexp = regexp.MustCompile(`^deprecated#(.*?)(?:->(.*?))?$`)

// Registry holds the command tree merged from every loaded plugin
type Registry struct {
	commands CommandMap
	// deprecated event -> replacement event ("" when there is no replacement)
	deprecated map[string]string
	aliases    *aliasNode
}

// aliasNode is one level of the alias tree. A node with a target is an alias
// of the command with that key.
type aliasNode struct {
	target   string
	children map[string]*aliasNode
}

func newAliasNode() *aliasNode {
	return &aliasNode{children: make(map[string]*aliasNode)}
}

func NewRegistry() *Registry {
	return &Registry{
		commands:   make(CommandMap),
		deprecated: make(map[string]string),
		aliases:    newAliasNode(),
	}
}

// Register merges the commands of a plugin into the registry. The incoming
// tree is copied, so the plugin keeps ownership of its own values. Aliases
// are checked against the commands registered before.
func (r *Registry) Register(pluginName string, commands CommandMap) error {
	for _, name := range commands.Names() {
		details := commands[name]
		if details == nil {
			continue
		}
		command := details.clone(name, pluginName)
		if err := r.registerAliases(command); err != nil {
			return err
		}
		r.extractDeprecated(command)
		r.commands[name] = mergeCommand(r.commands[name], command)
	}
	return nil
}

func (r *Registry) registerAliases(command *Command) error {
	if r.AliasTarget(strings.Split(command.Key, ":")) != "" {
		return &AliasError{Message: fmt.Sprintf("Command \"%s\" cannot override an existing alias", command.Key)}
	}
	for _, name := range command.Commands.Names() {
		if err := r.registerAliases(command.Commands[name]); err != nil {
			return err
		}
	}
	for _, alias := range command.Aliases {
		if err := r.addAlias(alias, command.Key); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) addAlias(alias, key string) error {
	if strings.HasPrefix(key, alias) {
		return &AliasError{Message: fmt.Sprintf("Command \"%s\" cannot be overriden by an alias", alias)}
	}
	path := strings.Split(alias, ":")
	if _, exists := r.find(path); exists {
		return &AliasError{Message: fmt.Sprintf("Command \"%s\" cannot be overriden by an alias", alias)}
	}
	node := r.aliases
	for _, name := range path {
		child, ok := node.children[name]
		if !ok {
			child = newAliasNode()
			node.children[name] = child
		}
		node = child
	}
	if node.target != "" {
		return &AliasError{Message: fmt.Sprintf("Alias \"%s\" is already defined for command %s", alias, node.target)}
	}
	node.target = key
	return nil
}

// AliasTarget returns the key of the command the path is an alias of, or ""
func (r *Registry) AliasTarget(path []string) string {
	node := r.aliases
	for _, name := range path {
		child, ok := node.children[name]
		if !ok {
			return ""
		}
		node = child
	}
	return node.target
}

// Resolve replaces an alias with the path of its command
func (r *Registry) Resolve(path []string) []string {
	if target := r.AliasTarget(path); target != "" {
		return strings.Split(target, ":")
	}
	return path
}

// find walks the tree without any visibility rule
func (r *Registry) find(path []string) (*Command, bool) {
	current := r.commands
	var command *Command
	for _, name := range path {
		c, exists := current[name]
		if !exists || c == nil {
			return nil, false
		}
		command = c
		current = c.Commands
	}
	return command, command != nil
}

// ServiceDependent tells if the command, or one of its parents, needs a
// service configuration
func (r *Registry) ServiceDependent(path []string) bool {
	current := r.commands
	for _, name := range path {
		c, exists := current[name]
		if !exists || c == nil {
			return false
		}
		if c.ServiceDependent {
			return true
		}
		current = c.Commands
	}
	return false
}

func (r *Registry) extractDeprecated(command *Command) {
	for i, event := range command.LifecycleEvents {
		if m := deprecatedEventRegexp.FindStringSubmatch(event); m != nil {
			r.deprecated[command.Key+":"+m[1]] = m[2]
			command.LifecycleEvents[i] = m[1]
		}
	}
	for _, sub := range command.Commands {
		r.extractDeprecated(sub)
	}
}

// RedirectEvent maps a hook event registered on a deprecated lifecycle event
// to its replacement. The second value is true when the event is deprecated.
func (r *Registry) RedirectEvent(event string) (string, bool) {
	prefix := ""
	base := event
	for _, p := range []string{"before:", "after:"} {
		if strings.HasPrefix(event, p) {
			prefix = p
			base = strings.TrimPrefix(event, p)
			break
		}
	}
	redirect, deprecated := r.deprecated[base]
	if !deprecated || redirect == "" {
		return event, deprecated
	}
	return prefix + redirect, true
}

// Commands returns the merged tree. It must be treated as read only.
func (r *Registry) Commands() CommandMap {
	return r.commands
}

// PublicCommands returns the tree without entrypoint commands, with the
// aliases added next to the commands
func (r *Registry) PublicCommands() CommandMap {
	result := publicCommands(r.commands)
	r.addPublicAliases(result, r.aliases)
	return result
}

func (r *Registry) addPublicAliases(target CommandMap, node *aliasNode) {
	for _, name := range sortedAliasNames(node) {
		child := node.children[name]
		if child.target != "" {
			if c, ok := r.find(strings.Split(child.target, ":")); ok {
				n := *c
				n.Commands = publicCommands(c.Commands)
				target[name] = &n
			}
		}
		if target[name] == nil {
			target[name] = &Command{Type: CommandTypeContainer}
		}
		if target[name].Commands == nil {
			target[name].Commands = make(CommandMap)
		}
		r.addPublicAliases(target[name].Commands, child)
	}
}

func sortedAliasNames(node *aliasNode) []string {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func publicCommands(commands CommandMap) CommandMap {
	result := make(CommandMap)
	for name, c := range commands {
		if c.Type == CommandTypeEntrypoint {
			continue
		}
		n := *c
		n.Commands = publicCommands(c.Commands)
		result[name] = &n
	}
	return result
}

// Lookup resolves a command path or alias at any depth. Entrypoint commands
// are only found when allowEntryPoints is set.
func (r *Registry) Lookup(path []string, allowEntryPoints bool) (*Command, error) {
	if len(path) == 0 {
		return nil, &CommandNotFoundError{Path: path}
	}
	path = r.Resolve(path)
	current := r.commands
	var command *Command
	for i, name := range path {
		c, exists := current[name]
		if !exists || (c.Type == CommandTypeEntrypoint && !allowEntryPoints) {
			return nil, &CommandNotFoundError{Path: append([]string{}, path[:i+1]...)}
		}
		command = c
		current = c.Commands
	}
	return command, nil
}

// Validate checks that the command path exists and is visible to users
func Validate(path []string, r *Registry) error {
	_, err := r.Lookup(path, false)
	return err
}
