// Package staticdata loads the immutable lookup tables used by the listing pipeline:
// condition vocabulary, per-category valid conditions, static aspect defaults,
// provider field mapping and the fallback category. Tables are loaded once at
// startup and shared read-only.
package staticdata

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"listing-service/internal/domain"
)

//go:embed defaults.yaml
var defaultTables []byte

// AnyCategory keys aspect defaults that apply to every category.
const AnyCategory = "*"

// Tables is the parsed static data. Treat it as read-only after Load.
type Tables struct {
	FallbackCategory   domain.Category                `yaml:"fallback_category"`
	Conditions         []string                       `yaml:"conditions"`
	DefaultConditions  []string                       `yaml:"default_conditions"`
	CategoryConditions map[string][]string            `yaml:"category_conditions"`
	AspectDefaults     map[string]map[string][]string `yaml:"aspect_defaults"`
	FieldMapping       map[string]string              `yaml:"field_mapping"` // provider field -> aspect name
}

// Load parses the embedded defaults, or the file at path when path is non-empty.
func Load(path string) (*Tables, error) {
	data := defaultTables
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("staticdata: read %s: %w", path, err)
		}
		data = raw
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("staticdata: parse: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	if strings.TrimSpace(t.FallbackCategory.ID) == "" {
		return errors.New("staticdata: fallback_category.id is required")
	}
	// The fallback is only ever configured to a leaf.
	t.FallbackCategory.Leaf = true
	if len(t.Conditions) == 0 {
		return errors.New("staticdata: conditions vocabulary is empty")
	}
	if len(t.DefaultConditions) == 0 {
		t.DefaultConditions = append([]string(nil), t.Conditions...)
	}
	for _, c := range t.DefaultConditions {
		if !t.IsKnownCondition(c) {
			return fmt.Errorf("staticdata: default condition %q is not in the vocabulary", c)
		}
	}
	for categoryID, conds := range t.CategoryConditions {
		for _, c := range conds {
			if !t.IsKnownCondition(c) {
				return fmt.Errorf("staticdata: category %s lists unknown condition %q", categoryID, c)
			}
		}
	}
	return nil
}

// IsKnownCondition reports whether c belongs to the controlled vocabulary.
func (t *Tables) IsKnownCondition(c string) bool {
	for _, known := range t.Conditions {
		if known == c {
			return true
		}
	}
	return false
}

// ValidConditions returns the conditions accepted for a category, falling back
// to the permissive default set when the category is unmapped.
func (t *Tables) ValidConditions(categoryID string) []string {
	if conds, ok := t.CategoryConditions[categoryID]; ok {
		return conds
	}
	return t.DefaultConditions
}

// AllowsCondition reports whether c is valid for the category.
func (t *Tables) AllowsCondition(categoryID, c string) bool {
	for _, valid := range t.ValidConditions(categoryID) {
		if valid == c {
			return true
		}
	}
	return false
}

// AspectDefault returns the static default for an aspect, preferring the
// category's own entry over the AnyCategory entry.
func (t *Tables) AspectDefault(categoryID, aspect string) ([]string, bool) {
	if values, ok := t.AspectDefaults[categoryID][aspect]; ok && len(values) > 0 {
		return values, true
	}
	if values, ok := t.AspectDefaults[AnyCategory][aspect]; ok && len(values) > 0 {
		return values, true
	}
	return nil, false
}

// ProviderField returns the provider field mapped onto an aspect name.
func (t *Tables) ProviderField(aspect string) (string, bool) {
	for field, name := range t.FieldMapping {
		if strings.EqualFold(name, aspect) {
			return field, true
		}
	}
	return "", false
}
