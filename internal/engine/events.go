package engine

import "strings"

// Expand turns a command path into its lifecycle event names. Every stem of
// the resolved command produces before:<key>:<stem>, <key>:<stem> and
// after:<key>:<stem>, in declaration order. Unknown paths expand to nothing.
func Expand(path []string, commands CommandMap) []string {
	return expand(path, commands, "")
}

func expand(path []string, commands CommandMap, prefix string) []string {
	events := []string{}
	if len(path) == 0 {
		return events
	}
	part := path[0]
	command, exists := commands[part]
	if !exists || command == nil {
		return events
	}
	if len(path) == 1 {
		for _, stem := range command.LifecycleEvents {
			name := prefix + part + ":" + stem
			events = append(events, "before:"+name, name, "after:"+name)
		}
		return events
	}
	if len(command.Commands) == 0 {
		return events
	}
	return expand(path[1:], command.Commands, prefix+part+":")
}

// Events fired by Run around every user command
const (
	EventInitialize = "initialize"
	EventFinalize   = "finalize"
	EventError      = "error"
)

// ValidEventName checks the shape [before:|after:]<command>[:<command>...]:<stem>.
// The global events are accepted as they are.
func ValidEventName(event string) bool {
	switch event {
	case EventInitialize, EventFinalize, EventError:
		return true
	}
	base := event
	if strings.HasPrefix(base, "before:") {
		base = strings.TrimPrefix(base, "before:")
	} else if strings.HasPrefix(base, "after:") {
		base = strings.TrimPrefix(base, "after:")
	}
	if strings.HasPrefix(base, "before:") || strings.HasPrefix(base, "after:") {
		return false
	}
	parts := strings.Split(base, ":")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return false
		}
	}
	return true
}
