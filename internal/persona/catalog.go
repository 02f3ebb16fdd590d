// Package persona holds the conversation catalog and turns a learner's choices
// into the voice and system instruction of a session
package persona

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Language is a BCP-47 locale the tutor can speak.
type Language struct {
	Code   string `yaml:"code" json:"code"`
	Name   string `yaml:"name" json:"name"`
	Region string `yaml:"region" json:"region"`
}

// Voice is a prebuilt model voice.
type Voice struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
}

// Level is a proficiency tier.
type Level struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

// Catalog lists every choice offered to the learner.
type Catalog struct {
	Languages []Language `yaml:"languages" json:"languages"`
	Voices    []Voice    `yaml:"voices" json:"voices"`
	Levels    []Level    `yaml:"levels" json:"levels"`
	Topics    []string   `yaml:"topics" json:"topics"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("persona: embedded catalog: " + err.Error())
	}
	return c
}

// Parse reads a catalog from YAML. Every list must be non-empty.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse catalog")
	}
	switch {
	case len(c.Languages) == 0:
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "catalog has no languages")
	case len(c.Voices) == 0:
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "catalog has no voices")
	case len(c.Levels) == 0:
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "catalog has no levels")
	case len(c.Topics) == 0:
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "catalog has no topics")
	}
	return &c, nil
}

// Language looks a locale up by code, case-insensitively.
func (c *Catalog) Language(code string) (Language, bool) {
	for _, l := range c.Languages {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return Language{}, false
}

// Voice looks a voice up by name, case-insensitively.
func (c *Catalog) Voice(name string) (Voice, bool) {
	for _, v := range c.Voices {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Voice{}, false
}

// Level looks a proficiency tier up by id or label.
func (c *Catalog) Level(id string) (Level, bool) {
	for _, l := range c.Levels {
		if strings.EqualFold(l.ID, id) || strings.EqualFold(l.Label, id) {
			return l, true
		}
	}
	return Level{}, false
}
