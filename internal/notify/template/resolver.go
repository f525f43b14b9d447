// Package template resolves {{name}} and {name} placeholders against a
// VariableContext.
package template

import (
	"regexp"
	"strings"
)

// Double-brace is the first alternative so it wins at any position where
// both could match.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([^{}]+)\}`)

type Resolver struct {
	aliases AliasTable
}

func NewResolver(aliases AliasTable) *Resolver {
	if aliases == nil {
		aliases = AliasTable{}
	}
	return &Resolver{aliases: aliases}
}

var defaultResolver = NewResolver(DefaultAliases())

// Resolve uses the default alias table.
func Resolve(body string, ctx VariableContext) string {
	return defaultResolver.Resolve(body, ctx)
}

// Resolve substitutes every placeholder in body with its value from ctx.
// Placeholders without a value are left exactly as written. Substituted
// values are never scanned again.
func (r *Resolver) Resolve(body string, ctx VariableContext) string {
	if !strings.Contains(body, "{") {
		return body
	}
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		if value, ok := r.value(placeholderName(match), ctx); ok {
			return value
		}
		return match
	})
}

func (r *Resolver) value(name string, ctx VariableContext) (string, bool) {
	if name == "" {
		return "", false
	}
	if strings.Contains(name, ".") {
		return ctx.Lookup(name)
	}
	if path, ok := r.aliases[name]; ok {
		return ctx.Lookup(path)
	}
	return stringify(ctx[name])
}

// Placeholders lists the distinct names referenced in body, in order of
// first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllString(body, -1) {
		name := placeholderName(match)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func placeholderName(match string) string {
	if strings.HasPrefix(match, "{{") {
		return strings.TrimSpace(match[2 : len(match)-2])
	}
	return strings.TrimSpace(match[1 : len(match)-1])
}
