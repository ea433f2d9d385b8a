package engine

import "context"

// runChain executes the hook chain one hook at a time. A hook starts only after
// the previous one returned successfully; the first error stops the chain
// and is returned as is.
func runChain(ctx context.Context, chain []boundHook) error {
	for _, h := range chain {
		if err := h.hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

type commandErrorKey struct{}

// CommandError returns the failure of the running command. It is only set for
// the hooks on the error event.
func CommandError(ctx context.Context) error {
	err, _ := ctx.Value(commandErrorKey{}).(error)
	return err
}

func withCommandError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, commandErrorKey{}, err)
}
