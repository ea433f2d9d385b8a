package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

const (
	ConfigType      string = "yaml"
	ConfigFile      string = "serverless.yml"
	ConfigEnv       string = "SLS"
	ConfigUserAgent string = "serverless"
	// Folder (relative to the service path) where artifacts are generated
	ServiceStateDir string = ".serverless"
)

type Provider struct {
	Name             string `mapstructure:"name" valid:"provider,required"`
	Runtime          string `mapstructure:"runtime" default:"provided"`
	Stage            string `mapstructure:"stage" valid:"stage,required" default:"dev"`
	Region           string `mapstructure:"region" default:"us-east-1"`
	DeploymentBucket string `mapstructure:"deploymentBucket"`
	Profile          string `mapstructure:"profile"`
	// Container based providers (docker, kubernetes)
	Image      string `mapstructure:"image"`
	Registry   string `mapstructure:"registry"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Dockerfile string `mapstructure:"dockerfile" default:"Dockerfile"`
	KubeConfig string `mapstructure:"kubeconfig" default:"~/.kube/config"`
	Namespace  string `mapstructure:"namespace" default:"default"`
}

type Package struct {
	Artifact string   `mapstructure:"artifact"`
	Exclude  []string `mapstructure:"exclude"`
	Include  []string `mapstructure:"include"`
}

type Function struct {
	Handler     string            `mapstructure:"handler" valid:"required"`
	Description string            `mapstructure:"description"`
	Image       string            `mapstructure:"image"`
	MemorySize  int               `mapstructure:"memorySize"`
	Timeout     int               `mapstructure:"timeout"`
	Replicas    int               `mapstructure:"replicas"`
	Port        int               `mapstructure:"port"`
	Environment map[string]string `mapstructure:"environment"`
}

type Logging struct {
	Level  string `mapstructure:"level" valid:"in(debug|info|warn|error|panic|fatal),required" default:"info"`
	Output string `mapstructure:"output" valid:"required" default:"split"`
}

// Config is the service definition (serverless.yml)
type Config struct {
	Log              Logging                `mapstructure:"log"`
	Service          string                 `mapstructure:"service" valid:"required"`
	FrameworkVersion string                 `mapstructure:"frameworkVersion"`
	Provider         Provider               `mapstructure:"provider"`
	Plugins          []string               `mapstructure:"plugins"`
	Package          Package                `mapstructure:"package"`
	Functions        map[string]*Function   `mapstructure:"functions" valid:"-"`
	Custom           map[string]interface{} `mapstructure:"custom" valid:"-"`
	// Directory of the service, not part of the file
	ServicePath string `mapstructure:"-"`
}

// Empty returns the configuration used when there is no service file
func Empty(path string) *Config {
	return &Config{
		Log: Logging{
			Level:  "info",
			Output: "split",
		},
		Functions:   make(map[string]*Function),
		Custom:      make(map[string]interface{}),
		ServicePath: path,
	}
}

// HasService is true when the configuration comes from a service file
func (c *Config) HasService() bool {
	return c.Service != ""
}

// FunctionNames returns the defined function names, sorted
func (c *Config) FunctionNames() []string {
	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map renders the configuration as a generic map with the file keys
func (c *Config) Map() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if err := mapstructure.Decode(c, &result); err != nil {
		return nil, fmt.Errorf("Unable to render configuration: %w", err)
	}
	functions := make(map[string]interface{})
	for name, f := range c.Functions {
		fm := make(map[string]interface{})
		if err := mapstructure.Decode(f, &fm); err != nil {
			return nil, fmt.Errorf("Unable to render function '%s': %w", name, err)
		}
		functions[name] = fm
	}
	result["functions"] = functions
	return result, nil
}
