package catalog

import (
	"fmt"
	"strings"

	"prepdeck/internal/domain"
)

// BuildRounds constructs the ordered rounds for a session. Company mode swaps
// each template round's questions for the company's own set of that kind.
func (c *Catalog) BuildRounds(setup domain.InterviewSetup) ([]domain.Round, error) {
	var company *Company
	switch setup.Mode {
	case domain.InterviewModeCompany:
		if strings.TrimSpace(setup.Company) == "" {
			return nil, fmt.Errorf("%w: select a company", domain.ErrConfiguration)
		}
		found, ok := c.Company(setup.Company)
		if !ok {
			return nil, fmt.Errorf("%w: unknown company %q", domain.ErrConfiguration, setup.Company)
		}
		company = &found
	case domain.InterviewModeRole:
		if strings.TrimSpace(setup.Role) == "" {
			return nil, fmt.Errorf("%w: select a role", domain.ErrConfiguration)
		}
	case domain.InterviewModeGeneral, "":
	default:
		return nil, fmt.Errorf("%w: unknown interview mode %q", domain.ErrConfiguration, setup.Mode)
	}

	rounds := make([]domain.Round, 0, len(c.Template))
	for _, tpl := range c.Template {
		questions := tpl.Questions
		if company != nil {
			if own := company.questionsFor(tpl.Kind); len(own) > 0 {
				questions = own
			}
		}
		rounds = append(rounds, domain.Round{
			Name:            tpl.Name,
			Kind:            tpl.Kind,
			DurationSeconds: tpl.DurationSeconds,
			Questions:       append([]domain.Question(nil), questions...),
		})
	}
	return rounds, nil
}

func (c Company) questionsFor(kind domain.RoundKind) []domain.Question {
	switch kind {
	case domain.RoundKindCoding:
		return c.Coding
	case domain.RoundKindTechnical:
		return textQuestions(c.Technical)
	case domain.RoundKindBehavioral:
		return textQuestions(c.HR)
	default:
		return nil
	}
}

func textQuestions(texts []string) []domain.Question {
	out := make([]domain.Question, 0, len(texts))
	for _, text := range texts {
		out = append(out, domain.Question{Text: text})
	}
	return out
}

// EntityID is the answer-record owner for a setup: the company identifier, a
// role slug, or "general".
func EntityID(setup domain.InterviewSetup) string {
	switch setup.Mode {
	case domain.InterviewModeCompany:
		return strings.ToLower(strings.TrimSpace(setup.Company))
	case domain.InterviewModeRole:
		return slug(setup.Role)
	default:
		return generalEntity
	}
}

// EntityID is the method form of the package EntityID function.
func (c *Catalog) EntityID(setup domain.InterviewSetup) string {
	return EntityID(setup)
}

// Focus describes the interview target in prompts, e.g. "Software Engineer
// role at Google".
func (c *Catalog) Focus(setup domain.InterviewSetup) string {
	role := strings.TrimSpace(setup.Role)
	if role == "" {
		role = DefaultRole
	}
	switch setup.Mode {
	case domain.InterviewModeCompany:
		name := setup.Company
		if company, ok := c.Company(setup.Company); ok {
			name = company.Name
		}
		return role + " role at " + name
	case domain.InterviewModeRole:
		return role
	default:
		return "General " + role
	}
}

// slug lowercases value and joins its words with "-". Colons count as
// separators so the result never contains the record key delimiter.
func slug(value string) string {
	fields := strings.Fields(strings.ToLower(strings.ReplaceAll(value, ":", " ")))
	return strings.Join(fields, "-")
}

// Normalize is the method form of the package Normalize function.
func (c *Catalog) Normalize(setup domain.InterviewSetup) domain.InterviewSetup {
	return Normalize(setup)
}

// Normalize fills the role and level defaults of a setup.
func Normalize(setup domain.InterviewSetup) domain.InterviewSetup {
	if setup.Mode == "" {
		setup.Mode = domain.InterviewModeGeneral
	}
	setup.Role = strings.TrimSpace(setup.Role)
	if setup.Role == "" {
		setup.Role = DefaultRole
	}
	setup.Level = strings.TrimSpace(setup.Level)
	if setup.Level == "" {
		setup.Level = DefaultLevel
	}
	setup.Company = strings.ToLower(strings.TrimSpace(setup.Company))
	return setup
}
