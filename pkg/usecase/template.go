package usecase

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// ResolveTemplate substitutes {name} placeholders from vars, expanding
// recursively when a value itself contains placeholders. Unknown
// placeholders are left intact for the surrounding application to
// resolve. A visited set guards against self-referential placeholders.
func ResolveTemplate(template string, vars map[string]string) string {
	return resolve(template, vars, map[string]bool{})
}

func resolve(text string, vars map[string]string, visited map[string]bool) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.Trim(match, "{}")
		value, ok := vars[name]
		if !ok || visited[name] {
			return match
		}
		visited[name] = true
		expanded := resolve(value, vars, visited)
		delete(visited, name)
		return expanded
	})
}
