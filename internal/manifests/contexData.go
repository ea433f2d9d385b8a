package manifests

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	config "serverless/internal/config"
	log "serverless/internal/log"

	gitrepo "github.com/go-git/go-git/v5"
)

type FunctionData struct {
	Name        string
	FullName    string
	Service     string
	Stage       string
	Namespace   string
	Image       string
	Version     string
	Handler     string
	Description string
	Env         map[string]string
	Replicas    int
	Port        int
	MemorySize  int
}

// EnvNames returns the environment variable names, sorted
func (f *FunctionData) EnvNames() []string {
	names := make([]string, 0, len(f.Env))
	for k := range f.Env {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type ContextData struct {
	Dir       string
	Git       string
	Service   string
	Stage     string
	Namespace string
	Date      time.Time
	DateHuman string
	Registry  string
	Image     string
	Ref       string
	Functions []*FunctionData
	log       log.Logger
}

// NewContextData collects what the manifests of a service need. When the
// service folder is a git repository, the reference is the commit.
func NewContextData(cfg *config.Config, l log.Logger) *ContextData {
	t := time.Now().UTC()
	ref := t.Format("20060102150405")
	opts := gitrepo.PlainOpenOptions{
		DetectDotGit: true,
	}
	git := ""
	if repo, err := gitrepo.PlainOpenWithOptions(cfg.ServicePath, &opts); err == nil {
		if head, err := repo.Head(); err == nil {
			ref = head.Hash().String()[:12]
		}
		if remotes, err := repo.Remotes(); err == nil && len(remotes) > 0 {
			if urls := remotes[0].Config().URLs; len(urls) > 0 {
				git = urls[0]
			}
		}
	} else {
		l.Debugf("Service folder is not a git repository: %s", err.Error())
	}
	name := cfg.Service
	if name == "" {
		name = filepath.Base(cfg.ServicePath)
	}
	d := &ContextData{
		Dir:       cfg.ServicePath,
		Git:       git,
		Service:   name,
		Stage:     cfg.Provider.Stage,
		Namespace: cfg.Provider.Namespace,
		Date:      t,
		DateHuman: t.String(),
		Registry:  strings.TrimSuffix(cfg.Provider.Registry, "/"),
		Image:     cfg.Provider.Image,
		Ref:       ref,
		log:       l,
	}
	if d.Image == "" {
		d.Image = strings.ToLower(d.Service) + ":" + d.Ref
		if d.Registry != "" {
			d.Image = d.Registry + "/" + d.Image
		}
	}
	for _, name := range cfg.FunctionNames() {
		d.Functions = append(d.Functions, d.function(name, cfg.Functions[name]))
	}
	return d
}

func (d *ContextData) function(name string, f *config.Function) *FunctionData {
	image := f.Image
	if image == "" {
		image = d.Image
	}
	replicas := f.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	env := make(map[string]string, len(f.Environment))
	for k, v := range f.Environment {
		env[k] = v
	}
	return &FunctionData{
		Name:        name,
		FullName:    FullName(d.Service, d.Stage, name),
		Service:     d.Service,
		Stage:       d.Stage,
		Namespace:   d.Namespace,
		Image:       image,
		Version:     d.Ref,
		Handler:     f.Handler,
		Description: f.Description,
		Env:         env,
		Replicas:    replicas,
		Port:        f.Port,
		MemorySize:  f.MemorySize,
	}
}

// Function returns the data of one function
func (d *ContextData) Function(name string) (*FunctionData, error) {
	for _, f := range d.Functions {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("Unknown function '%s'", name)
}

// FullName is the deployed name of a function: service-stage-function, in
// lower case
func FullName(service, stage, function string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", service, stage, function))
}
