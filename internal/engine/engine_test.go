package engine

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverless/internal/config"
	"serverless/internal/log"
)

type fakePlugin struct {
	commands CommandMap
	hooks    HookMap
	provider ProviderRef
	inits    *int
}

func (p *fakePlugin) Commands() CommandMap { return p.commands }
func (p *fakePlugin) Hooks() HookMap       { return p.hooks }

type scopedPlugin struct {
	fakePlugin
}

func (p *scopedPlugin) Provider() ProviderRef { return p.provider }

type initPlugin struct {
	fakePlugin
}

func (p *initPlugin) Init(ctx context.Context) error {
	*p.inits++
	return nil
}

type awsProvider struct{}

func (awsProvider) ProviderName() string { return "aws" }

func newTestFramework(provider string) (*Framework, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := config.Empty("/tmp")
	cfg.Provider.Name = provider
	return NewFramework(cfg, log.FromLogrus(logger), nil), hook
}

func descriptor(name string, p Plugin) Descriptor {
	return Descriptor{
		Name: name,
		Factory: func(fw *Framework, opts Options) (Plugin, error) {
			return p, nil
		},
	}
}

func record(calls *[]string, name string) Hook {
	return func(ctx context.Context) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestRegistryMergeLifecycleUnion(t *testing.T) {
	r := NewRegistry()
	r.Register("first", CommandMap{"deploy": {LifecycleEvents: []string{"a", "b"}}})
	r.Register("second", CommandMap{"deploy": {LifecycleEvents: []string{"b", "c"}}})
	assert.Equal(t, []string{"a", "b", "c"}, r.Commands()["deploy"].LifecycleEvents)
	assert.Equal(t, "first", r.Commands()["deploy"].PluginName)
}

func TestRegistryMergeOptionsAndUsage(t *testing.T) {
	r := NewRegistry()
	r.Register("first", CommandMap{"deploy": {
		Usage: "Deploy",
		Options: map[string]*Option{
			"stage":  {Usage: "Stage", Shortcut: "s"},
			"region": {Usage: "Region"},
		},
	}})
	r.Register("second", CommandMap{"deploy": {
		Options: map[string]*Option{
			"region": {Usage: "AWS region", Shortcut: "r"},
		},
	}})
	deploy := r.Commands()["deploy"]
	assert.Equal(t, "Deploy", deploy.Usage)
	assert.Equal(t, "s", deploy.Options["stage"].Shortcut)
	assert.Equal(t, "AWS region", deploy.Options["region"].Usage)
	assert.Equal(t, "r", deploy.Options["region"].Shortcut)

	r.Register("third", CommandMap{"deploy": {Usage: "Deploy the service"}})
	assert.Equal(t, "Deploy the service", r.Commands()["deploy"].Usage)
}

func TestRegistryMergeNamespace(t *testing.T) {
	r := NewRegistry()
	r.Register("first", CommandMap{"plugin": {
		Type: CommandTypeContainer,
		Commands: CommandMap{
			"list": {LifecycleEvents: []string{"list"}},
		},
	}})
	r.Register("second", CommandMap{"plugin": {
		Commands: CommandMap{
			"list":    {LifecycleEvents: []string{"print"}},
			"install": {LifecycleEvents: []string{"install"}},
		},
	}})
	plugin := r.Commands()["plugin"]
	assert.Equal(t, CommandTypeContainer, plugin.Type)
	assert.Equal(t, []string{"list", "print"}, plugin.Commands["list"].LifecycleEvents)
	assert.Equal(t, "plugin:install", plugin.Commands["install"].Key)
	assert.Equal(t, "second", plugin.Commands["install"].PluginName)
}

func TestRegistryCopiesCommands(t *testing.T) {
	commands := CommandMap{"deploy": {LifecycleEvents: []string{"deploy"}}}
	r := NewRegistry()
	r.Register("first", commands)
	r.Register("second", CommandMap{"deploy": {LifecycleEvents: []string{"finalize"}}})
	assert.Equal(t, []string{"deploy"}, commands["deploy"].LifecycleEvents)
}

func TestExpand(t *testing.T) {
	commands := CommandMap{
		"deploy": {
			LifecycleEvents: []string{"resources", "functions"},
			Commands: CommandMap{
				"onpremises": {LifecycleEvents: []string{"resources"}},
			},
		},
		"plugin": {},
	}
	assert.Equal(t, []string{
		"before:deploy:resources", "deploy:resources", "after:deploy:resources",
		"before:deploy:functions", "deploy:functions", "after:deploy:functions",
	}, Expand([]string{"deploy"}, commands))
	assert.Equal(t, []string{
		"before:deploy:onpremises:resources", "deploy:onpremises:resources", "after:deploy:onpremises:resources",
	}, Expand([]string{"deploy", "onpremises"}, commands))
	assert.Empty(t, Expand([]string{"missing"}, commands))
	assert.Empty(t, Expand([]string{"deploy", "missing"}, commands))
	assert.Empty(t, Expand([]string{"plugin", "list"}, commands))
	assert.Empty(t, Expand(nil, commands))
}

func TestExpandDeep(t *testing.T) {
	commands := CommandMap{
		"deploy": {Commands: CommandMap{
			"list": {Commands: CommandMap{
				"functions": {LifecycleEvents: []string{"log"}},
			}},
		}},
	}
	assert.Equal(t, []string{
		"before:deploy:list:functions:log", "deploy:list:functions:log", "after:deploy:list:functions:log",
	}, Expand([]string{"deploy", "list", "functions"}, commands))
}

func TestValidEventName(t *testing.T) {
	for _, e := range []string{"deploy:deploy", "before:deploy:deploy", "after:deploy:function:deploy", "initialize", "finalize", "error"} {
		assert.True(t, ValidEventName(e), e)
	}
	for _, e := range []string{"deploy", "before:deploy", "deploy::deploy", "before:after:deploy:x", ":deploy", "deploy: x", "before:initialize", "after:error"} {
		assert.False(t, ValidEventName(e), e)
	}
}

func TestConvertShortcutsShortcutWins(t *testing.T) {
	command := &Command{Options: map[string]*Option{
		"region": {Shortcut: "r"},
		"stage":  {Shortcut: "s"},
	}}
	opts := ConvertShortcuts(command, Options{"r": "eu-central-1", "region": "us-east-1"})
	assert.Equal(t, "eu-central-1", opts.String("region"))
	assert.False(t, opts.Has("stage"))
}

func TestAssignDefaults(t *testing.T) {
	command := &Command{Options: map[string]*Option{
		"format": {Default: "yaml"},
		"stage":  {Default: "dev"},
		"region": {Default: "us-east-1"},
	}}
	opts := AssignDefaults(command, Options{"stage": true, "region": "eu-west-1"})
	assert.Equal(t, "yaml", opts.String("format"))
	assert.Equal(t, "dev", opts.String("stage"))
	assert.Equal(t, "eu-west-1", opts.String("region"))
}

func TestValidateOptionsRequired(t *testing.T) {
	command := &Command{Options: map[string]*Option{
		"function": {Required: true, Shortcut: "f"},
	}}
	err := ValidateOptions(command, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequiredOption))
	var missing *MissingRequiredOptionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "function", missing.Option)
	assert.Contains(t, err.Error(), "--function")
	assert.Contains(t, err.Error(), "-f")

	assert.True(t, errors.Is(ValidateOptions(command, Options{"function": true}), ErrMissingRequiredOption))
	assert.NoError(t, ValidateOptions(command, Options{"function": "hello"}))
}

func TestValidateOptionsRequiredBoolean(t *testing.T) {
	command := &Command{Options: map[string]*Option{
		"force": {Required: true, Type: OptionTypeBoolean},
	}}
	assert.Error(t, ValidateOptions(command, Options{}))
	assert.NoError(t, ValidateOptions(command, Options{"force": true}))
}

func TestValidateOptionsCustomValidation(t *testing.T) {
	command := &Command{Options: map[string]*Option{
		"format": {CustomValidation: &CustomValidation{
			RegularExpression: regexp.MustCompile(`^(yaml|json)$`),
			ErrorMessage:      "Format must be yaml or json",
		}},
	}}
	err := ValidateOptions(command, Options{"format": "xml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCustomValidation))
	assert.Equal(t, "Format must be yaml or json", err.Error())
	assert.NoError(t, ValidateOptions(command, Options{"format": "json"}))
	assert.NoError(t, ValidateOptions(command, Options{}))
}

func TestLookupAndValidate(t *testing.T) {
	r := NewRegistry()
	r.Register("core", CommandMap{
		"deploy": {
			LifecycleEvents: []string{"deploy"},
			Commands: CommandMap{
				"function": {LifecycleEvents: []string{"deploy"}},
				"list": {Commands: CommandMap{
					"functions": {LifecycleEvents: []string{"log"}},
				}},
			},
		},
		"package": {
			Type:            CommandTypeEntrypoint,
			LifecycleEvents: []string{"package"},
		},
	})
	err := Validate([]string{"doesNotExist"}, r)
	assert.True(t, errors.Is(err, ErrCommandNotFound))
	assert.Contains(t, err.Error(), "doesNotExist")

	err = Validate([]string{"deploy", "nope"}, r)
	var notFound *CommandNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, []string{"deploy", "nope"}, notFound.Path)

	assert.NoError(t, Validate([]string{"deploy", "function"}, r))
	assert.NoError(t, Validate([]string{"deploy", "list", "functions"}, r))
	assert.Error(t, Validate([]string{"package"}, r))

	c, err := r.Lookup([]string{"package"}, true)
	require.NoError(t, err)
	assert.Equal(t, "package", c.Key)
	assert.NotContains(t, r.PublicCommands(), "package")
}

func TestShouldLoad(t *testing.T) {
	plain := &fakePlugin{}
	assert.True(t, ShouldLoad(plain, "aws"))
	assert.True(t, ShouldLoad(&scopedPlugin{}, "aws"))
	assert.True(t, ShouldLoad(&scopedPlugin{fakePlugin{provider: ProviderName("aws")}}, "aws"))
	assert.False(t, ShouldLoad(&scopedPlugin{fakePlugin{provider: ProviderName("aws")}}, "kubernetes"))
	assert.True(t, ShouldLoad(&scopedPlugin{fakePlugin{provider: awsProvider{}}}, "aws"))
	assert.False(t, ShouldLoad(&scopedPlugin{fakePlugin{provider: awsProvider{}}}, "docker"))
}

func TestManagerProviderScoping(t *testing.T) {
	fw, _ := newTestFramework("provider1")
	calls := []string{}
	run := CommandMap{"run": {LifecycleEvents: []string{"x"}}}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("one", &scopedPlugin{fakePlugin{commands: run, provider: ProviderName("provider1"), hooks: HookMap{"run:x": record(&calls, "one")}}}),
		descriptor("two", &scopedPlugin{fakePlugin{commands: run, provider: ProviderName("provider2"), hooks: HookMap{"run:x": record(&calls, "two")}}}),
		descriptor("all", &fakePlugin{hooks: HookMap{"run:x": record(&calls, "all")}}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "all"}, fw.Manager.PluginNames())

	require.NoError(t, fw.Manager.Run(context.Background(), []string{"run"}))
	assert.Equal(t, []string{"one", "all"}, calls)
}

func TestManagerDescriptorProviderNotCreated(t *testing.T) {
	fw, _ := newTestFramework("aws")
	created := false
	err := fw.Manager.AddPlugin(Descriptor{
		Name:     "kubernetes",
		Provider: ProviderName("kubernetes"),
		Factory: func(fw *Framework, opts Options) (Plugin, error) {
			created = true
			return &fakePlugin{}, nil
		},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, fw.Manager.Plugins())
}

func TestManagerNoMatchingHook(t *testing.T) {
	fw, _ := newTestFramework("aws")
	require.NoError(t, fw.Manager.AddPlugin(descriptor("core", &fakePlugin{
		commands: CommandMap{"info": {LifecycleEvents: []string{"info"}}},
	})))
	err := fw.Manager.Run(context.Background(), []string{"info"})
	assert.True(t, errors.Is(err, ErrNoMatchingHook))
}

func TestManagerSequentialOrdering(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	async := func(name string, delay time.Duration) Hook {
		return Async(func(ctx context.Context) <-chan error {
			done := make(chan error, 1)
			go func() {
				time.Sleep(delay)
				calls = append(calls, name)
				done <- nil
			}()
			return done
		})
	}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("commands", &fakePlugin{commands: CommandMap{"run": {LifecycleEvents: []string{"x"}}}}),
		descriptor("after", &fakePlugin{hooks: HookMap{"after:run:x": record(&calls, "after")}}),
		descriptor("mid", &fakePlugin{hooks: HookMap{"run:x": async("mid", 20*time.Millisecond)}}),
		descriptor("before", &fakePlugin{hooks: HookMap{"before:run:x": async("before", 50*time.Millisecond)}}),
	)
	require.NoError(t, err)
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"run"}))
	assert.Equal(t, []string{"before", "mid", "after"}, calls)
}

func TestManagerHooksInPluginOrder(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	commands := CommandMap{"deploy": {LifecycleEvents: []string{"resources", "functions"}}}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("a", &fakePlugin{commands: commands, hooks: HookMap{
			"deploy:functions": record(&calls, "a:functions"),
			"deploy:resources": record(&calls, "a:resources"),
		}}),
		descriptor("b", &fakePlugin{hooks: HookMap{
			"deploy:resources":        record(&calls, "b:resources"),
			"before:deploy:functions": record(&calls, "b:before:functions"),
		}}),
	)
	require.NoError(t, err)
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"a:resources", "b:resources", "b:before:functions", "a:functions"}, calls)
}

func TestManagerHookErrorStopsChain(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	failure := errors.New("stack update failed")
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("core", &fakePlugin{
			commands: CommandMap{"deploy": {LifecycleEvents: []string{"deploy", "finalize"}}},
			hooks: HookMap{
				"deploy:deploy": func(ctx context.Context) error {
					calls = append(calls, "deploy")
					return failure
				},
				"deploy:finalize": record(&calls, "finalize"),
			},
		}),
	)
	require.NoError(t, err)
	err = fw.Manager.Run(context.Background(), []string{"deploy"})
	assert.Same(t, failure, err)
	assert.Equal(t, []string{"deploy"}, calls)
}

func TestManagerAsyncHookError(t *testing.T) {
	fw, _ := newTestFramework("aws")
	failure := errors.New("timeout")
	require.NoError(t, fw.Manager.AddPlugin(descriptor("core", &fakePlugin{
		commands: CommandMap{"remove": {LifecycleEvents: []string{"remove"}}},
		hooks: HookMap{"remove:remove": Async(func(ctx context.Context) <-chan error {
			done := make(chan error, 1)
			done <- failure
			return done
		})},
	})))
	assert.Same(t, failure, fw.Manager.Run(context.Background(), []string{"remove"}))
}

func TestManagerOptions(t *testing.T) {
	fw, _ := newTestFramework("aws")
	var seen Options
	factory := func(fw *Framework, opts Options) (Plugin, error) {
		seen = opts
		return &fakePlugin{
			commands: CommandMap{"deploy": {
				LifecycleEvents: []string{"deploy"},
				Options: map[string]*Option{
					"region":   {Shortcut: "r", Default: "us-east-1"},
					"function": {Shortcut: "f", Required: true},
				},
			}},
			hooks: HookMap{"deploy:deploy": func(ctx context.Context) error { return nil }},
		}, nil
	}
	require.NoError(t, fw.Manager.AddPlugin(Descriptor{Name: "deploy", Factory: factory}))

	fw.Manager.SetCliOptions(Options{"r": "eu-west-1"})
	err := fw.Manager.Run(context.Background(), []string{"deploy"})
	assert.True(t, errors.Is(err, ErrMissingRequiredOption))

	fw.Manager.SetCliOptions(Options{"f": "hello"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, "hello", seen.String("function"))
	assert.Equal(t, "us-east-1", seen.String("region"))
}

func TestManagerUnknownCommand(t *testing.T) {
	fw, _ := newTestFramework("aws")
	err := fw.Manager.Run(context.Background(), []string{"doesNotExist"})
	assert.True(t, errors.Is(err, ErrCommandNotFound))
}

func TestManagerDuplicatePlugin(t *testing.T) {
	fw, _ := newTestFramework("aws")
	require.NoError(t, fw.Manager.AddPlugin(descriptor("info", &fakePlugin{})))
	err := fw.Manager.AddPlugin(descriptor("info", &fakePlugin{}))
	assert.True(t, errors.Is(err, ErrDuplicatePlugin))
}

func TestManagerMalformedEvent(t *testing.T) {
	fw, _ := newTestFramework("aws")
	err := fw.Manager.AddPlugin(descriptor("typo", &fakePlugin{
		hooks: HookMap{"before:deploy": func(ctx context.Context) error { return nil }},
	}))
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestManagerInitializer(t *testing.T) {
	fw, _ := newTestFramework("aws")
	inits := 0
	require.NoError(t, fw.Manager.LoadAll(context.Background(),
		descriptor("init", &initPlugin{fakePlugin{inits: &inits}}),
	))
	assert.Equal(t, 1, inits)
}

func TestManagerDeprecatedEvents(t *testing.T) {
	fw, hook := newTestFramework("aws")
	calls := []string{}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("core", &fakePlugin{
			commands: CommandMap{"deploy": {LifecycleEvents: []string{
				"deprecated#compile->package:compileEvents",
				"deploy",
			}}},
		}),
		descriptor("package", &fakePlugin{
			commands: CommandMap{"package": {LifecycleEvents: []string{"compileEvents"}}},
			hooks:    HookMap{"package:compileEvents": record(&calls, "package")},
		}),
		descriptor("old", &fakePlugin{hooks: HookMap{
			"before:deploy:compile": record(&calls, "old:before"),
			"deploy:deploy":         record(&calls, "deploy"),
		}}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"compile", "deploy"}, fw.Manager.Registry().Commands()["deploy"].LifecycleEvents)

	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"deploy"}, calls)

	calls = calls[:0]
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"package"}))
	assert.Equal(t, []string{"old:before", "package"}, calls)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestManagerSpawn(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("package", &fakePlugin{
			commands: CommandMap{"package": {
				Type:            CommandTypeEntrypoint,
				LifecycleEvents: []string{"package"},
			}},
			hooks: HookMap{"package:package": record(&calls, "package")},
		}),
		descriptor("deploy", &fakePlugin{
			commands: CommandMap{"deploy": {LifecycleEvents: []string{"deploy", "finalize"}}},
			hooks: HookMap{
				"before:deploy:deploy": func(ctx context.Context) error {
					return fw.Manager.Spawn(ctx, "package", false)
				},
				"deploy:deploy":   record(&calls, "deploy"),
				"deploy:finalize": record(&calls, "finalize"),
			},
		}),
	)
	require.NoError(t, err)
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"package", "deploy", "finalize"}, calls)

	assert.True(t, errors.Is(fw.Manager.Run(context.Background(), []string{"package"}), ErrCommandNotFound))
	assert.Error(t, fw.Manager.Spawn(context.Background(), "missing", false))
}

func TestManagerSpawnTerminate(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("invoke", &fakePlugin{
			commands: CommandMap{"invoke": {
				LifecycleEvents: []string{"invoke"},
				Commands: CommandMap{
					"local": {LifecycleEvents: []string{"invoke"}},
				},
			}},
			hooks: HookMap{
				"invoke:invoke": func(ctx context.Context) error {
					return fw.Manager.Spawn(ctx, "invoke:local", true)
				},
				"invoke:local:invoke": record(&calls, "local"),
				"after:invoke:invoke": record(&calls, "after"),
			},
		}),
	)
	require.NoError(t, err)
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"invoke"}))
	assert.Equal(t, []string{"local"}, calls)
}

func TestManagerNestedSpawnTerminate(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("core", &fakePlugin{
			commands: CommandMap{
				"outer": {LifecycleEvents: []string{"a", "b"}},
				"mid":   {Type: CommandTypeEntrypoint, LifecycleEvents: []string{"x", "y"}},
				"leaf":  {Type: CommandTypeEntrypoint, LifecycleEvents: []string{"z"}},
			},
			hooks: HookMap{
				"outer:a": func(ctx context.Context) error {
					calls = append(calls, "outer:a")
					return fw.Manager.Spawn(ctx, "mid", false)
				},
				"mid:x": func(ctx context.Context) error {
					calls = append(calls, "mid:x")
					return fw.Manager.Spawn(ctx, "leaf", true)
				},
				"mid:y":   record(&calls, "mid:y"),
				"leaf:z":  record(&calls, "leaf:z"),
				"outer:b": record(&calls, "outer:b"),
			},
		}),
	)
	require.NoError(t, err)
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"outer"}))
	assert.Equal(t, []string{"outer:a", "mid:x", "leaf:z", "outer:b"}, calls)
}

func TestManagerSpawnOptions(t *testing.T) {
	fw, _ := newTestFramework("aws")
	var format, output string
	err := fw.Manager.LoadAll(context.Background(),
		descriptor("core", &fakePlugin{
			commands: CommandMap{
				"deploy": {LifecycleEvents: []string{"deploy"}},
				"package": {
					Type:             CommandTypeEntrypoint,
					LifecycleEvents:  []string{"package"},
					ServiceDependent: true,
					Options: map[string]*Option{
						"format": {Default: "zip"},
						"output": {Shortcut: "o"},
					},
				},
			},
			hooks: HookMap{
				"deploy:deploy": func(ctx context.Context) error {
					return fw.Manager.Spawn(ctx, "package", false)
				},
				"package:package": func(ctx context.Context) error {
					format = fw.Manager.Options().String("format")
					output = fw.Manager.Options().String("output")
					return nil
				},
			},
		}),
	)
	require.NoError(t, err)

	fw.Manager.SetCliOptions(Options{"o": "dist"})
	err = fw.Manager.Run(context.Background(), []string{"deploy"})
	assert.ErrorIs(t, err, ErrNoService)
	assert.Equal(t, "", format)

	fw.Config.Service = "hello"
	fw.Manager.SetCliOptions(Options{"o": "dist"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, "zip", format)
	assert.Equal(t, "dist", output)
}

func TestManagerServiceDependent(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	require.NoError(t, fw.Manager.AddPlugin(descriptor("core", &fakePlugin{
		commands: CommandMap{"invoke": {
			ServiceDependent: true,
			LifecycleEvents:  []string{"invoke"},
			Options: map[string]*Option{
				"function": {Required: true},
			},
			Commands: CommandMap{"local": {LifecycleEvents: []string{"invoke"}}},
		}},
		hooks: HookMap{
			"initialize":          record(&calls, "initialize"),
			"invoke:invoke":       record(&calls, "invoke"),
			"invoke:local:invoke": record(&calls, "local"),
		},
	})))

	assert.ErrorIs(t, fw.Manager.Run(context.Background(), []string{"invoke"}), ErrNoService)
	assert.ErrorIs(t, fw.Manager.Run(context.Background(), []string{"invoke", "local"}), ErrNoService)
	assert.Empty(t, calls)

	fw.Config.Service = "hello"
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"invoke", "local"}))
	assert.Equal(t, []string{"initialize", "local"}, calls)
}

func TestManagerGlobalHooks(t *testing.T) {
	fw, hook := newTestFramework("aws")
	calls := []string{}
	boom := errors.New("boom")
	var failure error
	failDeploy := false
	require.NoError(t, fw.Manager.AddPlugin(descriptor("core", &fakePlugin{
		commands: CommandMap{
			"deploy": {LifecycleEvents: []string{"deploy"}},
			"plugin": {
				Type:     CommandTypeContainer,
				Commands: CommandMap{"list": {LifecycleEvents: []string{"list"}}},
			},
		},
		hooks: HookMap{
			"initialize": record(&calls, "initialize"),
			"deploy:deploy": func(ctx context.Context) error {
				calls = append(calls, "deploy")
				if failDeploy {
					return boom
				}
				return nil
			},
			"plugin:list:list": record(&calls, "list"),
			"finalize":         record(&calls, "finalize"),
			"error": func(ctx context.Context) error {
				calls = append(calls, "error")
				failure = CommandError(ctx)
				return errors.New("error hook failed")
			},
		},
	})))

	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"initialize", "deploy", "finalize"}, calls)

	calls = calls[:0]
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"plugin", "list"}))
	assert.Equal(t, []string{"list", "finalize"}, calls)

	calls = calls[:0]
	failDeploy = true
	err := fw.Manager.Run(context.Background(), []string{"deploy"})
	assert.True(t, err == boom)
	assert.True(t, failure == boom)
	assert.Equal(t, []string{"initialize", "deploy", "error"}, calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "error hook failed")
}

func TestRegistryAliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("core", CommandMap{
		"deploy": {
			LifecycleEvents: []string{"deploy"},
			Commands: CommandMap{
				"onpremises": {
					LifecycleEvents: []string{"run"},
					Aliases:         []string{"on:premise", "premise"},
				},
			},
		},
		"package": {
			Type:            CommandTypeEntrypoint,
			LifecycleEvents: []string{"package"},
		},
	}))

	assert.Equal(t, "deploy:onpremises", r.AliasTarget([]string{"premise"}))
	assert.Equal(t, "", r.AliasTarget([]string{"on"}))
	assert.Equal(t, []string{"deploy", "onpremises"}, r.Resolve([]string{"on", "premise"}))

	c, err := r.Lookup([]string{"premise"}, false)
	require.NoError(t, err)
	assert.Equal(t, "deploy:onpremises", c.Key)
	assert.Equal(t, []string{
		"before:deploy:onpremises:run", "deploy:onpremises:run", "after:deploy:onpremises:run",
	}, Expand(r.Resolve([]string{"premise"}), r.Commands()))

	public := r.PublicCommands()
	require.Contains(t, public, "premise")
	assert.Equal(t, []string{"run"}, public["premise"].LifecycleEvents)
	require.Contains(t, public, "on")
	assert.Equal(t, CommandTypeContainer, public["on"].Type)
	assert.Contains(t, public["on"].Commands, "premise")

	err = r.Register("other", CommandMap{"premise": {LifecycleEvents: []string{"x"}}})
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Contains(t, err.Error(), "cannot override an existing alias")

	err = r.Register("other", CommandMap{"remote": {Aliases: []string{"premise"}}})
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Contains(t, err.Error(), "is already defined for command deploy:onpremises")

	err = r.Register("other", CommandMap{"remote": {Aliases: []string{"package"}}})
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Contains(t, err.Error(), "cannot be overriden by an alias")

	err = r.Register("other", CommandMap{"info": {Commands: CommandMap{
		"all": {Aliases: []string{"info"}},
	}}})
	assert.ErrorIs(t, err, ErrInvalidAlias)
}

func TestManagerRunAlias(t *testing.T) {
	fw, _ := newTestFramework("aws")
	calls := []string{}
	require.NoError(t, fw.Manager.AddPlugin(descriptor("core", &fakePlugin{
		commands: CommandMap{"deploy": {
			LifecycleEvents: []string{"deploy"},
			Commands: CommandMap{"function": {
				LifecycleEvents: []string{"deploy"},
				Aliases:         []string{"fn"},
			}},
		}},
		hooks: HookMap{"deploy:function:deploy": record(&calls, "function")},
	})))
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"fn"}))
	assert.Equal(t, []string{"function"}, calls)

	err := fw.Manager.AddPlugin(descriptor("clash", &fakePlugin{
		commands: CommandMap{"fn": {LifecycleEvents: []string{"x"}}},
	}))
	assert.ErrorIs(t, err, ErrInvalidAlias)
}
