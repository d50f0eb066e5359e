package topics

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk form of a set of topic definitions.
//
//	topics:
//	  - name: book
//	    description: A single book resource
//	    pattern: https://example.com/books/{id}
//	    example: https://example.com/books/1
type Catalog struct {
	Topics []Definition `yaml:"topics"`
}

// LoadCatalog reads a YAML catalog from fs and registers every definition in
// a fresh registry. The first invalid or duplicate definition aborts the load.
func LoadCatalog(fs afero.Fs, path string) (*Registry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &Error{Type: ErrorValidationFailed, Message: "failed to read topic catalog " + path, Cause: err}
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, &Error{Type: ErrorValidationFailed, Message: "failed to parse topic catalog " + path, Cause: err}
	}

	registry := NewRegistry()
	for _, def := range catalog.Topics {
		topic, err := Define(def)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(topic); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
