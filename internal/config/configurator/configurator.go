package configurator

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"

	"serverless/internal/config"
	"serverless/internal/config/validator"
	log "serverless/internal/log"
)

// ErrConfigNotFound is returned by LoadConfig when there is no service file
var ErrConfigNotFound = errors.New("service configuration file not found")

// Candidate file names when no file is given
var configFiles = []string{config.ConfigFile, "serverless.yaml"}

type Configurator interface {
	InitConfig() *config.Config
	LoadConfig(configArg string) (*config.Config, error)
	CheckConfig(c *config.Config) error
	GetConfigFile(abs bool) string
	Logger() log.Logger
}

type ViperConfigurator struct {
	viper     *viper.Viper
	version   string
	configArg string
	flags     *pflag.FlagSet
	file      string
	log       log.Logger
}

// New defines the persistent flags on the command and returns a configurator
// bound to them
func New(version, configArg string, command *cobra.Command) *ViperConfigurator {
	flags := command.PersistentFlags()
	flags.String(configArg, "", "Path to the service configuration file (default "+config.ConfigFile+")")
	flags.String("log-level", "", "Program log level (debug|info|warn|error)")
	return &ViperConfigurator{
		viper:     viper.New(),
		version:   version,
		configArg: configArg,
		flags:     flags,
		log:       log.StandardLogger(),
	}
}

// InitConfig sets the defaults (taken from the `default` struct tags), the
// environment binding and the flags. It returns the empty configuration.
func (vc *ViperConfigurator) InitConfig() *config.Config {
	v := vc.viper
	v.SetConfigType(config.ConfigType)
	v.SetEnvPrefix(config.ConfigEnv)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, reflect.TypeOf(config.Config{}), "")
	if f := vc.flags.Lookup(vc.configArg); f != nil {
		v.BindPFlag(vc.configArg, f)
	}
	if f := vc.flags.Lookup("log-level"); f != nil {
		v.BindPFlag("log.level", f)
	}
	if l, err := log.New(v.GetString("log.level"), v.GetString("log.output")); err == nil {
		vc.log = l
	} else {
		vc.log.Warn(err.Error())
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return config.Empty(cwd)
}

// LoadConfig reads the service file. When the file is not given by the flag
// the current folder is searched.
func (vc *ViperConfigurator) LoadConfig(configArg string) (*config.Config, error) {
	v := vc.viper
	file := v.GetString(configArg)
	if file == "" {
		for _, name := range configFiles {
			if _, err := os.Stat(name); err == nil {
				file = name
				break
			}
		}
		if file == "" {
			return nil, ErrConfigNotFound
		}
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("Unable to resolve configuration path '%s': %w", file, err)
	}
	v.SetConfigFile(abs)
	if err = v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("Unable to read configuration file '%s': %w", abs, err)
	}
	cfg := config.Empty(filepath.Dir(abs))
	if err = v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("Unable to decode configuration file '%s': %w", abs, err)
	}
	// viper lowercases every key, function names and environment variables
	// must keep their case
	if err = decodeCaseSensitive(abs, cfg); err != nil {
		return nil, err
	}
	cfg.ServicePath = filepath.Dir(abs)
	vc.file = abs
	if l, err := log.New(cfg.Log.Level, cfg.Log.Output); err == nil {
		vc.log = l
	} else {
		return nil, err
	}
	return cfg, nil
}

func (vc *ViperConfigurator) CheckConfig(c *config.Config) error {
	if err := validator.Validate(c); err != nil {
		vc.log.Error(err)
		return err
	}
	return nil
}

func (vc *ViperConfigurator) GetConfigFile(abs bool) string {
	if abs || vc.file == "" {
		return vc.file
	}
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, vc.file); err == nil {
			return rel
		}
	}
	return vc.file
}

func (vc *ViperConfigurator) Logger() log.Logger {
	return vc.log
}

func setDefaults(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			setDefaults(v, ft, key)
			continue
		}
		if value, ok := field.Tag.Lookup("default"); ok {
			v.SetDefault(key, value)
		}
	}
}

func decodeCaseSensitive(file string, cfg *config.Config) error {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return fmt.Errorf("Unable to read configuration file '%s': %w", file, err)
	}
	raw := make(map[string]interface{})
	if err = yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("Unable to parse configuration file '%s': %w", file, err)
	}
	functions := make(map[string]*config.Function)
	if err = weakDecode(raw["functions"], &functions); err != nil {
		return fmt.Errorf("Unable to decode functions in '%s': %w", file, err)
	}
	cfg.Functions = functions
	custom := make(map[string]interface{})
	if err = weakDecode(raw["custom"], &custom); err != nil {
		return fmt.Errorf("Unable to decode custom section in '%s': %w", file, err)
	}
	cfg.Custom = custom
	return nil
}

func weakDecode(input, output interface{}) error {
	if input == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
