package docindex

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes an index to build: the documents with their text and
// the API objects they document. It is read from YAML:
//
//	envversion:
//	  sphinx: 56
//	documents:
//	  - docname: intro
//	    filename: intro.rst
//	    title: Introduction
//	    bodyFile: intro.txt
//	objects:
//	  - namespace: cryptomite
//	    name: Circulant
//	    docname: intro
//	    kind: py:class
//	    priority: 1
type Manifest struct {
	EnvVersion map[string]int     `yaml:"envversion"`
	Documents  []ManifestDocument `yaml:"documents"`
	Objects    []ManifestObject   `yaml:"objects"`
}

// ManifestDocument is one page. Body holds the text inline; BodyFile names
// a file, relative to the manifest, to read it from.
type ManifestDocument struct {
	DocName  string `yaml:"docname"`
	FileName string `yaml:"filename"`
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	BodyFile string `yaml:"bodyFile"`
}

// ManifestObject is one documented API object.
type ManifestObject struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	DocName   string `yaml:"docname"`
	Kind      string `yaml:"kind"`
	Anchor    string `yaml:"anchor"`
	Priority  int    `yaml:"priority"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and builds the manifest at path.
func LoadManifest(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return m.Build(filepath.Dir(path))
}

// Build feeds the manifest through a Builder. BodyFile paths are resolved
// against baseDir.
func (m *Manifest) Build(baseDir string) (*Index, error) {
	b := NewBuilder()
	for name, v := range m.EnvVersion {
		b.SetEnvVersion(name, v)
	}
	for _, d := range m.Documents {
		body := d.Body
		if d.BodyFile != "" {
			data, err := os.ReadFile(filepath.Join(baseDir, d.BodyFile))
			if err != nil {
				return nil, fmt.Errorf("document %q: %w", d.DocName, err)
			}
			body += string(data)
		}
		if err := b.AddDocument(d.DocName, d.FileName, d.Title, body); err != nil {
			return nil, err
		}
	}
	for _, o := range m.Objects {
		if err := b.AddObject(o.Namespace, o.Name, o.DocName, o.Kind, o.Anchor, o.Priority); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
