package main

import (
	"fmt"

	"course-notify/internal/notify/milestone"
	"course-notify/pkg/registry"
)

type milestoneSources struct {
	renewal    milestone.EntitySource
	refresher  milestone.EntitySource
	suppressor milestone.Suppressor
}

// loadRegistry reads and validates the registry. Without a path the engine
// runs with the built-in aliases and no milestone rules.
func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return &registry.Registry{}, nil
	}
	reg, err := registry.Load(path)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ruleTables binds the registry's renewal and refresher rules to their
// entity sources. Only renewals are suppressed by an upcoming enrollment.
func ruleTables(reg *registry.Registry, src milestoneSources) []milestone.RuleTable {
	return []milestone.RuleTable{
		{
			Name:       registry.TableRenewal,
			Rules:      reg.Rules(registry.TableRenewal),
			Source:     src.renewal,
			Suppressor: src.suppressor,
		},
		{
			Name:   registry.TableRefresher,
			Rules:  reg.Rules(registry.TableRefresher),
			Source: src.refresher,
		},
	}
}
