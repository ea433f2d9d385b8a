package engine

import (
	"io"
	"os"

	"serverless/internal/config"
	"serverless/internal/log"
)

// Framework is the shared state handed to every plugin. Hooks run one at a
// time, so plugins can change the configuration during their turn.
type Framework struct {
	Config  *config.Config
	Log     log.Logger
	Output  io.Writer
	Manager *Manager
}

// NewFramework creates the shared state and its plugin manager
func NewFramework(cfg *config.Config, l log.Logger, opts Options) *Framework {
	if l == nil {
		l = log.StandardLogger()
	}
	fw := &Framework{
		Config: cfg,
		Log:    l,
		Output: os.Stdout,
	}
	fw.Manager = NewManager(fw, opts)
	return fw
}

// ProviderName returns the provider configured for the service
func (fw *Framework) ProviderName() string {
	if fw.Config == nil {
		return ""
	}
	return fw.Config.Provider.Name
}
