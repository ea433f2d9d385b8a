// Package plugintest provides helpers to run plugins in tests
package plugintest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
	log "serverless/internal/log"
)

// Service returns a configuration for a service in a temporary folder
func Service(t *testing.T, provider string) *config.Config {
	cfg := config.Empty(t.TempDir())
	cfg.Service = "hello"
	cfg.Provider = config.Provider{
		Name:       provider,
		Runtime:    "provided",
		Stage:      "dev",
		Region:     "us-east-1",
		Dockerfile: "Dockerfile",
		Namespace:  "default",
	}
	cfg.Functions["hello"] = &config.Function{
		Handler: "echo hello",
	}
	return cfg
}

// WriteFile creates a file of the service
func WriteFile(t *testing.T, cfg *config.Config, name, content string) string {
	path := filepath.Join(cfg.ServicePath, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// Framework creates a framework with a null logger, capturing the output
func Framework(cfg *config.Config) (*engine.Framework, *test.Hook, *bytes.Buffer) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	fw := engine.NewFramework(cfg, log.FromLogrus(logger), nil)
	out := &bytes.Buffer{}
	fw.Output = out
	return fw, hook, out
}

// Load adds the plugins to the framework
func Load(t *testing.T, fw *engine.Framework, descriptors ...engine.Descriptor) {
	require.NoError(t, fw.Manager.LoadAll(context.Background(), descriptors...))
}

// Recorder registers a hook on each event and records the calls
type Recorder struct {
	Calls  []string
	events []string
}

func NewRecorder(events ...string) *Recorder {
	return &Recorder{events: events}
}

func (r *Recorder) Commands() engine.CommandMap { return nil }

func (r *Recorder) Hooks() engine.HookMap {
	hooks := engine.HookMap{}
	for _, e := range r.events {
		event := e
		hooks[event] = func(ctx context.Context) error {
			r.Calls = append(r.Calls, event)
			return nil
		}
	}
	return hooks
}

// Descriptor returns a descriptor creating the recorder
func (r *Recorder) Descriptor(name string) engine.Descriptor {
	return engine.Descriptor{
		Name: name,
		Factory: func(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
			return r, nil
		},
	}
}
