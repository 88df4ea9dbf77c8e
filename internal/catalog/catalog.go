// Package catalog holds the static interview material: the generic round
// template, per-company question sets, aptitude drills and pronunciation
// practice texts. It is loaded from YAML.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"prepdeck/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

const (
	DefaultRole  = "Software Engineer"
	DefaultLevel = "Mid-Level"

	generalEntity = "general"
)

// Catalog is the full set of interview material.
type Catalog struct {
	Levels    []string           `yaml:"levels"`
	Roles     []string           `yaml:"roles"`
	Template  []TemplateRound    `yaml:"template"`
	Companies map[string]Company `yaml:"companies"`
	Practice  Practice           `yaml:"practice"`
}

// TemplateRound is one entry of the generic round template.
type TemplateRound struct {
	Name            string            `yaml:"name"`
	Kind            domain.RoundKind  `yaml:"kind"`
	DurationSeconds int               `yaml:"duration_seconds"`
	Questions       []domain.Question `yaml:"questions"`
}

// Company is a company-specific data set.
type Company struct {
	Name      string            `yaml:"name" json:"name"`
	Aptitude  []AptitudeItem    `yaml:"aptitude" json:"aptitude"`
	Coding    []domain.Question `yaml:"coding" json:"coding"`
	Technical []string          `yaml:"technical" json:"technical"`
	HR        []string          `yaml:"hr" json:"hr"`
}

// AptitudeItem is a multiple-choice drill question.
type AptitudeItem struct {
	Question string   `yaml:"question" json:"question"`
	Options  []string `yaml:"options" json:"options"`
	Correct  int      `yaml:"correct" json:"-"`
}

// Practice holds pronunciation practice material.
type Practice struct {
	Words      []PracticeWord      `yaml:"words"`
	Paragraphs []PracticeParagraph `yaml:"paragraphs"`
}

type PracticeWord struct {
	Word       string `yaml:"word" json:"word"`
	Phonetic   string `yaml:"phonetic" json:"phonetic"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
}

type PracticeParagraph struct {
	Title      string `yaml:"title" json:"title"`
	Text       string `yaml:"text" json:"text"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the embedded catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %q: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Template) == 0 {
		return errors.New("template must define at least one round")
	}
	for i, round := range c.Template {
		if round.Name == "" {
			return fmt.Errorf("template round %d must have a name", i+1)
		}
		switch round.Kind {
		case domain.RoundKindTechnical, domain.RoundKindCoding, domain.RoundKindBehavioral:
		default:
			return fmt.Errorf("template round %q has unknown kind %q", round.Name, round.Kind)
		}
		if round.DurationSeconds <= 0 {
			return fmt.Errorf("template round %q must have a positive duration", round.Name)
		}
		if len(round.Questions) == 0 {
			return fmt.Errorf("template round %q must have questions", round.Name)
		}
	}
	for id, company := range c.Companies {
		if company.Name == "" {
			return fmt.Errorf("company %q must have a name", id)
		}
		for i, item := range company.Aptitude {
			if item.Correct < 0 || item.Correct >= len(item.Options) {
				return fmt.Errorf("company %q aptitude %d has correct index out of range", id, i+1)
			}
		}
	}
	return nil
}

// CompanyIDs returns the company identifiers in stable order.
func (c *Catalog) CompanyIDs() []string {
	ids := make([]string, 0, len(c.Companies))
	for id := range c.Companies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Company looks up a company data set by identifier.
func (c *Catalog) Company(id string) (Company, bool) {
	company, ok := c.Companies[strings.ToLower(strings.TrimSpace(id))]
	return company, ok
}

// CheckAptitude reports whether choice is the correct option of a drill.
func (c *Catalog) CheckAptitude(companyID string, index int, choice int) (bool, error) {
	company, ok := c.Company(companyID)
	if !ok {
		return false, fmt.Errorf("%w: unknown company %q", domain.ErrValidation, companyID)
	}
	if index < 0 || index >= len(company.Aptitude) {
		return false, fmt.Errorf("%w: aptitude question %d does not exist", domain.ErrValidation, index)
	}
	item := company.Aptitude[index]
	if choice < 0 || choice >= len(item.Options) {
		return false, fmt.Errorf("%w: option %d does not exist", domain.ErrValidation, choice)
	}
	return choice == item.Correct, nil
}

// WordItem returns a practice word as a practice item.
func (c *Catalog) WordItem(index int) (domain.PracticeItem, error) {
	if index < 0 || index >= len(c.Practice.Words) {
		return domain.PracticeItem{}, fmt.Errorf("%w: practice word %d does not exist", domain.ErrValidation, index)
	}
	w := c.Practice.Words[index]
	return domain.PracticeItem{Mode: domain.PracticeModeWord, Title: w.Word, Text: w.Word, Phonetic: w.Phonetic}, nil
}

// ParagraphItem returns a practice paragraph as a practice item.
func (c *Catalog) ParagraphItem(index int) (domain.PracticeItem, error) {
	if index < 0 || index >= len(c.Practice.Paragraphs) {
		return domain.PracticeItem{}, fmt.Errorf("%w: practice paragraph %d does not exist", domain.ErrValidation, index)
	}
	p := c.Practice.Paragraphs[index]
	return domain.PracticeItem{Mode: domain.PracticeModeParagraph, Title: p.Title, Text: p.Text}, nil
}
