// Package category holds the incident root-cause taxonomy used for AI
// classification, validation and statistics.
package category

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FallbackGroup is reported for codes outside the taxonomy.
const FallbackGroup = "その他"

//go:embed categories.yaml
var embeddedTaxonomy []byte

type Category struct {
	Code        string `yaml:"code" json:"code"`
	DisplayName string `yaml:"displayName" json:"displayName"`
	Description string `yaml:"description" json:"description"`
	Group       string `yaml:"group" json:"group"`
}

type Taxonomy struct {
	categories []Category
	byCode     map[string]Category
	groups     []string
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// Parse decodes a taxonomy document. Codes must be unique and non-empty.
func Parse(data []byte) (*Taxonomy, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}

	taxonomy := &Taxonomy{
		categories: make([]Category, 0, len(file.Categories)),
		byCode:     make(map[string]Category, len(file.Categories)),
	}
	seenGroups := make(map[string]struct{})
	for _, entry := range file.Categories {
		entry.Code = strings.TrimSpace(entry.Code)
		if entry.Code == "" {
			return nil, fmt.Errorf("taxonomy entry without code: %+v", entry)
		}
		if _, exists := taxonomy.byCode[entry.Code]; exists {
			return nil, fmt.Errorf("duplicate category code %s", entry.Code)
		}
		taxonomy.categories = append(taxonomy.categories, entry)
		taxonomy.byCode[entry.Code] = entry
		if _, seen := seenGroups[entry.Group]; !seen {
			seenGroups[entry.Group] = struct{}{}
			taxonomy.groups = append(taxonomy.groups, entry.Group)
		}
	}
	return taxonomy, nil
}

var (
	defaultOnce     sync.Once
	defaultTaxonomy *Taxonomy
)

// Default returns the embedded taxonomy.
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		taxonomy, err := Parse(embeddedTaxonomy)
		if err != nil {
			panic(fmt.Sprintf("embedded category taxonomy: %v", err))
		}
		defaultTaxonomy = taxonomy
	})
	return defaultTaxonomy
}

func (t *Taxonomy) All() []Category {
	return append([]Category(nil), t.categories...)
}

func (t *Taxonomy) Lookup(code string) (Category, bool) {
	entry, ok := t.byCode[code]
	return entry, ok
}

func (t *Taxonomy) Valid(code string) bool {
	_, ok := t.byCode[code]
	return ok
}

// DisplayName falls back to the code itself.
func (t *Taxonomy) DisplayName(code string) string {
	if entry, ok := t.byCode[code]; ok {
		return entry.DisplayName
	}
	return code
}

func (t *Taxonomy) Group(code string) string {
	if entry, ok := t.byCode[code]; ok {
		return entry.Group
	}
	return FallbackGroup
}

// Groups lists group names in first-seen order.
func (t *Taxonomy) Groups() []string {
	return append([]string(nil), t.groups...)
}

// PromptList renders the taxonomy grouped for inclusion in a model prompt.
func (t *Taxonomy) PromptList() string {
	sections := make([]string, 0, len(t.groups))
	for _, group := range t.groups {
		lines := make([]string, 0, 3)
		for _, entry := range t.categories {
			if entry.Group != group {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s - %s", entry.Code, entry.DisplayName, entry.Description))
		}
		sections = append(sections, fmt.Sprintf("**%s:**\n  %s", group, strings.Join(lines, "\n  ")))
	}
	return strings.Join(sections, "\n\n")
}
