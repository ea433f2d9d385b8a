package invoke

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gocmd "github.com/go-cmd/cmd"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "invoke", Factory: New})
}

// Invoke runs functions. Deployed functions are invoked by the provider
// plugins, local ones run as a process of the handler command.
type Invoke struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
	env  map[string]string
	data string
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Invoke{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "invoke"),
		env:  make(map[string]string),
	}, nil
}

func (i *Invoke) Commands() engine.CommandMap {
	data := &engine.Option{
		Usage:    "Input data",
		Shortcut: "d",
	}
	path := &engine.Option{
		Usage:    "Path to JSON or YAML file holding input data",
		Shortcut: "p",
	}
	return engine.CommandMap{
		"invoke": {
			Usage:            "Invoke a deployed function",
			LifecycleEvents:  []string{"invoke"},
			ServiceDependent: true,
			Options: map[string]*engine.Option{
				"function": plugins.FunctionOption,
				"stage":    plugins.StageOption,
				"region":   plugins.RegionOption,
				"data":     data,
				"path":     path,
				"log": {
					Usage:    "Trigger logging data output",
					Shortcut: "l",
					Type:     engine.OptionTypeBoolean,
				},
			},
			Commands: engine.CommandMap{
				"local": {
					Usage:           "Invoke function locally",
					LifecycleEvents: []string{"loadEnvVars", "invoke"},
					Options: map[string]*engine.Option{
						"function": plugins.FunctionOption,
						"data":     data,
						"path":     path,
						"env": {
							Usage:    "Override environment variables, e.g. --env VAR1=val1,VAR2=val2",
							Shortcut: "e",
						},
					},
				},
			},
		},
	}
}

func (i *Invoke) Hooks() engine.HookMap {
	return engine.HookMap{
		"before:invoke:invoke":      i.prepare,
		"invoke:local:loadEnvVars":  i.loadEnvVars,
		"invoke:local:invoke":       engine.Async(i.invokeLocal),
		"after:invoke:local:invoke": i.finish,
	}
}

// Data returns the input of the invocation
func (i *Invoke) Data() string {
	return i.data
}

func (i *Invoke) prepare(ctx context.Context) error {
	plugins.ApplyProviderOptions(i.fw, i.opts)
	if _, _, err := plugins.Function(i.fw, i.opts); err != nil {
		i.log.Error(err)
		return err
	}
	i.data = i.opts.String("data")
	if path := i.opts.String("path"); path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(i.fw.Config.ServicePath, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			err = fmt.Errorf("Unable to read input data '%s': %s", path, err.Error())
			i.log.Error(err)
			return err
		}
		i.data = string(content)
	}
	return nil
}

func (i *Invoke) loadEnvVars(ctx context.Context) error {
	if err := i.prepare(ctx); err != nil {
		return err
	}
	cfg := i.fw.Config
	name, f, _ := plugins.Function(i.fw, i.opts)
	i.env["SLS_SERVICE"] = cfg.Service
	i.env["SLS_STAGE"] = cfg.Provider.Stage
	i.env["SLS_REGION"] = cfg.Provider.Region
	i.env["SLS_FUNCTION_NAME"] = name
	for k, v := range f.Environment {
		i.env[k] = v
	}
	if overrides := i.opts.String("env"); overrides != "" {
		for _, kv := range strings.Split(overrides, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				err := fmt.Errorf("Invalid environment variable '%s', expected KEY=VALUE", kv)
				i.log.Error(err)
				return err
			}
			i.env[parts[0]] = parts[1]
		}
	}
	return nil
}

// Env adds variables to the environment of a local invocation
func (i *Invoke) Env(vars map[string]string) {
	for k, v := range vars {
		i.env[k] = v
	}
}

func (i *Invoke) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(i.env))
	for k := range i.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+i.env[k])
	}
	return env
}

// invokeLocal runs the handler, streaming its output. The returned channel
// gets the result when the process exits.
func (i *Invoke) invokeLocal(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	name, f, err := plugins.Function(i.fw, i.opts)
	if err != nil {
		done <- err
		return done
	}
	args := strings.Fields(f.Handler)
	if len(args) == 0 {
		done <- fmt.Errorf("Function \"%s\" has no handler", name)
		return done
	}
	c := gocmd.NewCmdOptions(gocmd.Options{Buffered: false, Streaming: true}, args[0], args[1:]...)
	c.Dir = i.fw.Config.ServicePath
	c.Env = i.environ()
	i.log.Debugf("Running function %s: %s", name, f.Handler)
	output := make(chan struct{})
	stdout, stderr := c.Stdout, c.Stderr
	go func() {
		defer close(output)
		for stdout != nil || stderr != nil {
			select {
			case line, open := <-stdout:
				if !open {
					stdout = nil
					continue
				}
				fmt.Fprintln(i.fw.Output, line)
			case line, open := <-stderr:
				if !open {
					stderr = nil
					continue
				}
				i.log.Warn(line)
			}
		}
	}()
	status := c.StartWithStdin(strings.NewReader(i.data))
	go func() {
		select {
		case s := <-status:
			<-output
			switch {
			case s.Error != nil:
				done <- fmt.Errorf("Unable to run function \"%s\": %s", name, s.Error.Error())
			case s.Exit != 0:
				done <- fmt.Errorf("Function \"%s\" exited with code %d", name, s.Exit)
			default:
				done <- nil
			}
		case <-ctx.Done():
			c.Stop()
			done <- ctx.Err()
		}
	}()
	return done
}

func (i *Invoke) finish(ctx context.Context) error {
	i.log.Debugf("Local invocation of %s finished", i.opts.String("function"))
	return nil
}
