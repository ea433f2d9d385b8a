package create

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	yaml "gopkg.in/yaml.v3"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"
	git "serverless/pkg/git"
)

func init() {
	plugins.Register(engine.Descriptor{Name: "create", Factory: New})
}

// Create makes a new service from a template repository
type Create struct {
	fw   *engine.Framework
	opts engine.Options
	log  log.Logger
}

func New(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
	return &Create{
		fw:   fw,
		opts: opts,
		log:  fw.Log.WithField("plugin", "create"),
	}, nil
}

func (c *Create) Commands() engine.CommandMap {
	return engine.CommandMap{
		"create": {
			Usage:           "Create new Serverless service",
			LifecycleEvents: []string{"create"},
			Options: map[string]*engine.Option{
				"template-url": {
					Usage:    "Template URL for the service (git repository)",
					Shortcut: "u",
					Required: true,
				},
				"template-ref": {
					Usage: "Branch or tag of the template repository",
				},
				"path": {
					Usage:    "The path where the service should be created",
					Shortcut: "p",
				},
				"name": {
					Usage:    "Name for the service. Overwrites the default name of the created service",
					Shortcut: "n",
				},
			},
		},
	}
}

func (c *Create) Hooks() engine.HookMap {
	return engine.HookMap{
		"create:create": c.create,
	}
}

func (c *Create) target() string {
	target := c.opts.String("path")
	if target == "" {
		target = c.opts.String("name")
	}
	if target == "" {
		url := strings.TrimSuffix(strings.TrimRight(c.opts.String("template-url"), "/"), ".git")
		target = path.Base(url)
	}
	if !filepath.IsAbs(target) && c.fw.Config != nil && c.fw.Config.ServicePath != "" {
		target = filepath.Join(c.fw.Config.ServicePath, target)
	}
	return target
}

func (c *Create) create(ctx context.Context) error {
	url := c.opts.String("template-url")
	target := c.target()
	repo, err := git.NewGitRepo(target, true)
	if err != nil {
		err = fmt.Errorf("Unable to create service in '%s': %s", target, err.Error())
		c.log.Error(err)
		return err
	}
	c.log.Infof("Downloading template %s", url)
	if err = repo.Clone(ctx, url, c.opts.String("template-ref"), false); err != nil {
		err = fmt.Errorf("Unable to download template '%s': %s", url, err.Error())
		c.log.Error(err)
		repo.Delete()
		return err
	}
	name := c.opts.String("name")
	if name == "" {
		name = filepath.Base(target)
	}
	if err = Rename(osfs.New(target), name); err != nil {
		c.log.Error(err)
		return err
	}
	c.log.Infof("Successfully installed service %s in %s", name, target)
	return nil
}

// Rename changes the service name of the service file in fs, keeping the
// rest of the document
func Rename(fs billy.Filesystem, name string) error {
	file := config.ConfigFile
	if _, err := fs.Stat(file); os.IsNotExist(err) {
		file = "serverless.yaml"
	}
	f, err := fs.Open(file)
	if err != nil {
		return fmt.Errorf("Unable to open service file: %s", err.Error())
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("Unable to read service file: %s", err.Error())
	}
	doc := yaml.Node{}
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("Unable to parse service file: %s", err.Error())
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("Unable to parse service file: not a mapping")
	}
	if !setService(doc.Content[0], name) {
		doc.Content[0].Content = append([]*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "service"},
			{Kind: yaml.ScalarNode, Value: name},
		}, doc.Content[0].Content...)
	}
	out, err := fs.Create(file)
	if err != nil {
		return fmt.Errorf("Unable to write service file: %s", err.Error())
	}
	defer out.Close()
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err = encoder.Encode(&doc); err != nil {
		return fmt.Errorf("Unable to write service file: %s", err.Error())
	}
	return encoder.Close()
}

func setService(mapping *yaml.Node, name string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != "service" {
			continue
		}
		value := mapping.Content[i+1]
		// service: {name: x}
		if value.Kind == yaml.MappingNode {
			return setService(value, name) || setName(value, name)
		}
		value.Kind = yaml.ScalarNode
		value.Tag = ""
		value.Value = name
		return true
	}
	return false
}

func setName(mapping *yaml.Node, name string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "name" {
			mapping.Content[i+1].Value = name
			return true
		}
	}
	return false
}
