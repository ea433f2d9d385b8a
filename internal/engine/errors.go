package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels to match the error kinds with errors.Is
var (
	ErrCommandNotFound        = errors.New("command not found")
	ErrMissingRequiredOption  = errors.New("missing required option")
	ErrCustomValidation       = errors.New("option validation failed")
	ErrNoMatchingHook         = errors.New("no hooks for command")
	ErrDuplicatePlugin        = errors.New("duplicate plugin definition")
	ErrMalformedEvent         = errors.New("malformed event name")
	ErrPluginNotFound         = errors.New("plugin not found")
	ErrInvalidAlias           = errors.New("invalid command alias")
	ErrNoService              = errors.New("This command can only be run in a Serverless service directory. Make sure to reference a valid config file in the current working directory if you're using a custom config file")
	errTerminateHookChainKind = errors.New("terminate hook chain")
)

type CommandNotFoundError struct {
	Path []string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("Serverless command \"%s\" not found. Run \"serverless help\" for a list of all available commands.", strings.Join(e.Path, " "))
}

func (e *CommandNotFoundError) Is(target error) bool {
	return target == ErrCommandNotFound
}

type MissingRequiredOptionError struct {
	Option   string
	Shortcut string
	Usage    string
}

func (e *MissingRequiredOptionError) Error() string {
	things := fmt.Sprintf("the --%s option", e.Option)
	if e.Shortcut != "" {
		things += fmt.Sprintf(" / -%s shortcut", e.Shortcut)
	}
	msg := fmt.Sprintf("This command requires %s.", things)
	if e.Usage != "" {
		msg += " Usage: " + e.Usage
	}
	return msg
}

func (e *MissingRequiredOptionError) Is(target error) bool {
	return target == ErrMissingRequiredOption
}

type CustomValidationError struct {
	Option  string
	Message string
}

func (e *CustomValidationError) Error() string {
	return e.Message
}

func (e *CustomValidationError) Is(target error) bool {
	return target == ErrCustomValidation
}

type NoMatchingHookError struct {
	Path   []string
	Events []string
}

func (e *NoMatchingHookError) Error() string {
	return fmt.Sprintf("The command \"%s\" did not catch on any hooks (%d lifecycle events)", strings.Join(e.Path, " "), len(e.Events))
}

func (e *NoMatchingHookError) Is(target error) bool {
	return target == ErrNoMatchingHook
}

type DuplicatePluginError struct {
	Name string
}

func (e *DuplicatePluginError) Error() string {
	return fmt.Sprintf("Encountered duplicate plugin definition '%s'. Please remove duplicate plugins from your configuration.", e.Name)
}

func (e *DuplicatePluginError) Is(target error) bool {
	return target == ErrDuplicatePlugin
}

type MalformedEventError struct {
	Plugin string
	Event  string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("Plugin '%s' registers a hook on malformed event '%s', expected [before:|after:]<command>:<event>", e.Plugin, e.Event)
}

func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}

type AliasError struct {
	Message string
}

func (e *AliasError) Error() string {
	return e.Message
}

func (e *AliasError) Is(target error) bool {
	return target == ErrInvalidAlias
}

// terminateHookChain stops the running chain without failing the command
type terminateHookChain struct {
	path []string
}

func (e *terminateHookChain) Error() string {
	return "Terminating " + strings.Join(e.path, ":")
}

func (e *terminateHookChain) Is(target error) bool {
	return target == errTerminateHookChainKind
}
