package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a YAML rule file:
//
//	rules:
//	  - name: greeting
//	    pattern: "hi|hello"
//	    response: "Hello! How can I help?"
//	  - name: catch-all
//	    response: "I don't know."
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML rule definitions and validates them.
func Parse(data []byte) (*Set, error) {
	var f fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return NewSet(f.Rules)
}
