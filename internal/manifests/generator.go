package manifests

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// EmbedK8sTemplates holds static files
//go:embed templates/*.tmpl
var EmbedK8sTemplates embed.FS

// Filename of the manifest written by the package step
const Filename = "kubernetes.yml"

type ManifestType int

const (
	Unknown ManifestType = iota // 0
	Deployment
	Service
)

func Types() []ManifestType {
	return []ManifestType{Deployment, Service}
}

func Type(text string) (m ManifestType) {
	switch strings.ToLower(text) {
	case "deployment":
		return Deployment
	case "service":
		return Service
	default:
		return Unknown
	}
}

func (m ManifestType) Filename() string {
	switch m {
	case Deployment:
		return "deployment.yml"
	case Service:
		return "service.yml"
	default:
		return ""
	}
}

func (m ManifestType) String() string {
	kinds := [...]string{"Unknown", "Deployment", "Service"}
	return kinds[int(m)]
}

type Generator struct {
	output    io.Writer
	templates *template.Template
}

func NewGenerator(output io.Writer) (*Generator, error) {
	templates, err := template.ParseFS(EmbedK8sTemplates, "templates/*")
	if err != nil {
		return nil, fmt.Errorf("Unable to parse manifest templates: %s", err.Error())
	}
	m := &Generator{
		templates: templates,
		output:    output,
	}
	return m, nil
}

// Generate renders one manifest of a function
func (m *Generator) Generate(kind ManifestType, data *FunctionData) (err error) {
	if filename := kind.Filename(); filename != "" {
		err = m.templates.ExecuteTemplate(m.output, filename+".tmpl", data)
	} else {
		err = fmt.Errorf("Unknown manifest type")
	}
	return
}

// GenerateAll renders every manifest of every function as a multi document
// stream. Services are only generated for functions listening on a port.
func (m *Generator) GenerateAll(data *ContextData) error {
	for _, f := range data.Functions {
		for _, kind := range Types() {
			if kind == Service && f.Port == 0 {
				continue
			}
			if _, err := io.WriteString(m.output, "---\n"); err != nil {
				return err
			}
			if err := m.Generate(kind, f); err != nil {
				return fmt.Errorf("Unable to generate %s of function '%s': %s", kind, f.Name, err.Error())
			}
		}
	}
	return nil
}

// New writes the manifests of all the functions to a file
func New(data *ContextData, fullpath string, truncate bool) error {
	flags := os.O_RDWR | os.O_CREATE
	if truncate {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
		return fmt.Errorf("Unable to create manifest folder: %s", err.Error())
	}
	target, err := os.OpenFile(fullpath, flags, 0644)
	if err != nil {
		err = fmt.Errorf("Unable to create manifest: %s", err.Error())
		return err
	}
	defer target.Close()
	m, err := NewGenerator(target)
	if err != nil {
		return err
	}
	return m.GenerateAll(data)
}
