// pkg/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"

	"course-notify/internal/models"
	"course-notify/internal/notify/template"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Validate reports every problem in the registry at once. Milestone types
// key the fired records, so a type may appear only once across all tables.
func (r *Registry) Validate() error {
	var problems []error

	bad := template.AliasTable(r.Aliases).Invalid()
	sort.Strings(bad)
	for _, name := range bad {
		problems = append(problems, fmt.Errorf("alias %q -> %q: names must be bare and targets dotted", name, r.Aliases[name]))
	}

	tables := make(map[string]bool, len(r.MilestoneTables))
	types := make(map[string]string)
	for _, t := range r.MilestoneTables {
		if t.Name == "" {
			problems = append(problems, stderrors.New("milestone table with empty name"))
		} else if tables[t.Name] {
			problems = append(problems, fmt.Errorf("milestone table %q declared twice", t.Name))
		}
		tables[t.Name] = true

		for i, rule := range t.Rules {
			where := fmt.Sprintf("table %q rule %d", t.Name, i)
			if err := validateRule(rule); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", where, err))
			}
			if other, dup := types[rule.Type]; dup && rule.Type != "" {
				problems = append(problems, fmt.Errorf("%s: type %q already used in table %q", where, rule.Type, other))
			} else {
				types[rule.Type] = t.Name
			}
		}
	}

	return stderrors.Join(problems...)
}

func validateRule(rule models.MilestoneRule) error {
	return validation.ValidateStruct(&rule,
		validation.Field(&rule.Type, validation.Required, validation.Length(1, 64)),
		validation.Field(&rule.Channel, validation.Required, validation.In(models.ChannelEmail, models.ChannelSMS)),
		validation.Field(&rule.TemplateID, validation.Required),
		validation.Field(&rule.OffsetDays, validation.Min(-3650), validation.Max(3650)),
	)
}

// Rules returns the rules of the named table, or nil.
func (r *Registry) Rules(table string) []models.MilestoneRule {
	for _, t := range r.MilestoneTables {
		if t.Name == table {
			return t.Rules
		}
	}
	return nil
}

// AliasTable layers the registry aliases over the built-in ones.
func (r *Registry) AliasTable() template.AliasTable {
	return template.DefaultAliases().Merge(r.Aliases)
}

// TemplateLookup is satisfied by the template store.
type TemplateLookup interface {
	Get(ctx context.Context, id string) (*models.Template, error)
}

// CheckTemplates verifies that every rule names an active template on the
// rule's channel.
func (r *Registry) CheckTemplates(ctx context.Context, templates TemplateLookup) error {
	var problems []error
	for _, t := range r.MilestoneTables {
		for _, rule := range t.Rules {
			tmpl, err := templates.Get(ctx, rule.TemplateID)
			switch {
			case err != nil:
				problems = append(problems, fmt.Errorf("rule %q: %w", rule.Type, err))
			case !tmpl.Active:
				problems = append(problems, fmt.Errorf("rule %q: template %q is inactive", rule.Type, rule.TemplateID))
			case tmpl.Channel != rule.Channel:
				problems = append(problems, fmt.Errorf("rule %q: template %q is %s, rule sends %s", rule.Type, rule.TemplateID, tmpl.Channel, rule.Channel))
			}
		}
	}
	return stderrors.Join(problems...)
}
