package registry

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/graphogm/internal/errors"
)

// File is the on-disk shape of a model declarations file:
//
//	models:
//	  - name: Developer
//	    labels: [Developer]
//	    properties: [name, age]
//	    relationships:
//	      - {name: coffees, direction: OUTGOING, type: DRINKS, target: Coffee}
type File struct {
	Models []Descriptor `yaml:"models"`
}

// Load decodes a declarations file from r and builds a registry from it.
// Unknown keys are rejected.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to parse model declarations")
	}
	return New(f.Models...)
}

// LoadFile reads the declarations file at path
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigErrorf("failed to read model declarations %s: %v", path, err)
	}
	reg, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Marshal encodes the registered models back into the declarations format
func (r *Registry) Marshal() ([]byte, error) {
	var f File
	for _, name := range r.Names() {
		d, _ := r.Get(name)
		f.Models = append(f.Models, *d)
	}
	return yaml.Marshal(f)
}
