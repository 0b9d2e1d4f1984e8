package tsemitter

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

// DefaultTag groups endpoints that declare no tags of their own.
const DefaultTag = "General"

// GroupByTag groups endpoints by their first declared tag and returns the
// groups plus the sorted list of tag names. Endpoint order within a group
// follows document order.
func GroupByTag(endpoints []genspec.Endpoint) (map[string][]genspec.Endpoint, []string) {
	groups := map[string][]genspec.Endpoint{}
	for _, ep := range endpoints {
		tag := DefaultTag
		if len(ep.Tags) > 0 {
			tag = ep.Tags[0]
		}
		groups[tag] = append(groups[tag], ep)
	}
	tags := make([]string, 0, len(groups))
	for t := range groups {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return groups, tags
}

// OperationID returns the endpoint's declared operationId, or synthesizes a
// deterministic one from method and path: separators and parameter braces
// become underscores, so "GET /users/{id}" yields "get_users_id".
func OperationID(ep genspec.Endpoint) string {
	if ep.OperationID != "" {
		return sanitizeIdent(ep.OperationID)
	}
	normalized := strings.NewReplacer("/", "_", "{", "_", "}", "_", "-", "_", ".", "_").Replace(ep.Path)
	return sanitizeIdent(string(ep.Method) + "_" + normalized)
}

// BindingName derives the emitted callable name from an operation id. For
// owner_action identifiers like "userController_getUser" only the trailing
// action segment is used, dropping the owner stutter. Collisions this can
// introduce within a group are repaired by UniqueBindingNames.
func BindingName(opID string) string {
	if i := strings.LastIndex(opID, "_"); i >= 0 && i+1 < len(opID) {
		opID = opID[i+1:]
	}
	return lowerFirst(sanitizeIdent(opID))
}

// UniqueBindingNames assigns one binding name per endpoint, appending a
// deterministic numeric suffix when the trailing-segment heuristic collides
// within the group.
func UniqueBindingNames(endpoints []genspec.Endpoint) []string {
	names := make([]string, 0, len(endpoints))
	taken := map[string]bool{}
	for _, ep := range endpoints {
		base := BindingName(OperationID(ep))
		name := base
		for i := 2; taken[name]; i++ {
			name = base + strconv.Itoa(i)
		}
		taken[name] = true
		names = append(names, name)
	}
	return names
}

var titler = cases.Title(language.English, cases.NoLower)

// pascal converts an identifier-ish string into PascalCase, preserving
// existing camel humps ("getUser" -> "GetUser", "pet_store" -> "PetStore").
func pascal(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for i, p := range parts {
		parts[i] = titler.String(p)
	}
	return strings.Join(parts, "")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'A' && s[0] <= 'Z' {
		return string(s[0]+'a'-'A') + s[1:]
	}
	return s
}

// sanitizeIdent reduces a raw identifier to TypeScript-safe characters,
// collapsing runs of underscores and trimming them from the ends.
func sanitizeIdent(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '$':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "op"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// dirName converts a tag into the generated per-tag directory name.
func dirName(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.NewReplacer(" ", "-", "/", "-", "_", "-", ".", "-").Replace(t)
	var b strings.Builder
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "general"
	}
	return out
}
