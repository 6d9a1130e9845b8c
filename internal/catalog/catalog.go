// Package catalog loads the USP chapter and requirement catalog that the
// compliance engine is seeded with.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"uspguard.org/internal/compliance"
)

//go:embed usp.yaml
var defaultYAML []byte

// Catalog is a set of USP chapters with their requirements.
type Catalog struct {
	Chapters []Chapter `yaml:"chapters"`
}

type Chapter struct {
	Number       string        `yaml:"number"`
	Title        string        `yaml:"title"`
	Description  string        `yaml:"description,omitempty"`
	Requirements []Requirement `yaml:"requirements"`
}

type Requirement struct {
	Section     string                 `yaml:"section"`
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description,omitempty"`
	Criticality compliance.Criticality `yaml:"criticality"`
}

// Parse decodes a YAML catalog and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: invalid YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile parses a catalog from a file path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in USP 795/797/800 catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Validate checks that chapter numbers are present and unique and that every
// requirement carries a known criticality.
func (c *Catalog) Validate() error {
	if len(c.Chapters) == 0 {
		return fmt.Errorf("catalog: at least one chapter is required")
	}
	seen := make(map[string]bool, len(c.Chapters))
	for i, ch := range c.Chapters {
		if ch.Number == "" {
			return fmt.Errorf("catalog: chapters[%d].number is required", i)
		}
		if seen[ch.Number] {
			return fmt.Errorf("catalog: duplicate chapter %q", ch.Number)
		}
		seen[ch.Number] = true
		if ch.Title == "" {
			return fmt.Errorf("catalog: chapter %s: title is required", ch.Number)
		}
		for j, req := range ch.Requirements {
			if req.Title == "" {
				return fmt.Errorf("catalog: chapter %s: requirements[%d].title is required", ch.Number, j)
			}
			if !req.Criticality.Valid() {
				return fmt.Errorf("catalog: chapter %s: requirements[%d]: unknown criticality %q", ch.Number, j, req.Criticality)
			}
		}
	}
	return nil
}

// RequirementCount returns the number of requirements across all chapters.
func (c *Catalog) RequirementCount() int {
	n := 0
	for _, ch := range c.Chapters {
		n += len(ch.Requirements)
	}
	return n
}
