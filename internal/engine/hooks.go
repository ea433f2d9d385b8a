package engine

import "context"

// Hook is the work a plugin attaches to an event. It returns when the work
// has settled.
type Hook func(ctx context.Context) error

// HookMap maps a fully qualified event name to a hook
type HookMap map[string]Hook

// Async adapts a function that signals completion on a channel. The hook
// settles on the first value received, or when the channel is closed.
func Async(fn func(ctx context.Context) <-chan error) Hook {
	return func(ctx context.Context) error {
		done := fn(ctx)
		if done == nil {
			return nil
		}
		return <-done
	}
}

// boundHook is a hook together with its owner, ready to run
type boundHook struct {
	plugin string
	event  string
	hook   Hook
}

// collect builds the hook chain for the events: events in the given order
// and, within each event, hooks in plugin load order.
func collect(events []string, plugins []*LoadedPlugin) []boundHook {
	chain := []boundHook{}
	for _, event := range events {
		for _, p := range plugins {
			for _, h := range p.hooks[event] {
				chain = append(chain, boundHook{
					plugin: p.Name,
					event:  event,
					hook:   h,
				})
			}
		}
	}
	return chain
}
