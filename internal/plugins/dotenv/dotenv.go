package dotenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
)

// Optional plugin, the service enables it with `plugins: [dotenv]`
func init() {
	plugins.Register(engine.Descriptor{Name: "dotenv", Factory: New})
}

const defaultFile = ".env"

// envReceiver is implemented by the plugins running functions locally
type envReceiver interface {
	Env(vars map[string]string)
}

// DotEnv loads the variables of a .env file (custom.dotenv.path) into the
// environment of the functions
type DotEnv struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &DotEnv{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "dotenv"),
	}, nil
}

func (d *DotEnv) Commands() engine.CommandMap {
	return nil
}

func (d *DotEnv) Hooks() engine.HookMap {
	return engine.HookMap{
		"before:package:createDeploymentArtifacts": d.functions,
		"after:invoke:local:loadEnvVars":           d.local,
	}
}

func (d *DotEnv) file() string {
	file := defaultFile
	if custom, ok := d.fw.Config.Custom["dotenv"].(map[string]interface{}); ok {
		if p, ok := custom["path"].(string); ok && p != "" {
			file = p
		}
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(d.fw.Config.ServicePath, file)
	}
	return file
}

// Read returns the variables of the file, none when it does not exist
func (d *DotEnv) Read() (map[string]string, error) {
	file := d.file()
	if _, err := os.Stat(file); os.IsNotExist(err) {
		d.log.Debugf("No environment file %s", file)
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(file)
	if err != nil {
		err = fmt.Errorf("Unable to read environment file '%s': %s", file, err.Error())
		d.log.Error(err)
		return nil, err
	}
	d.log.Debugf("Loaded %d variables from %s", len(vars), file)
	return vars, nil
}

// functions adds the variables to every function, without overriding the
// ones defined in the service
func (d *DotEnv) functions(ctx context.Context) error {
	vars, err := d.Read()
	if err != nil {
		return err
	}
	for _, f := range d.fw.Config.Functions {
		if f.Environment == nil {
			f.Environment = make(map[string]string)
		}
		for k, v := range vars {
			if _, exists := f.Environment[k]; !exists {
				f.Environment[k] = v
			}
		}
	}
	return nil
}

func (d *DotEnv) local(ctx context.Context) error {
	vars, err := d.Read()
	if err != nil {
		return err
	}
	p, err := d.fw.Manager.Plugin("invoke")
	if err != nil {
		return err
	}
	if receiver, ok := p.(envReceiver); ok {
		receiver.Env(vars)
	}
	return nil
}
