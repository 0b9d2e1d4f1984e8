package tsemitter

import (
	"fmt"
	"strconv"
	"strings"

	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

const unknownType = "unknown"

// Diag is a non-fatal diagnostic raised while resolving or emitting. One
// schema's failure never aborts generation for the rest of its tag group.
type Diag struct {
	Context string // schema name or endpoint id the problem belongs to
	Message string
}

func (d Diag) String() string {
	if d.Context == "" {
		return d.Message
	}
	return d.Context + ": " + d.Message
}

// Resolution is the outcome of resolving one schema node: the TypeScript
// type expression plus the schema names it references by name.
type Resolution struct {
	Expr  string
	Refs  []string // first-seen order, deduplicated
	Diags []Diag
}

// ResolveType translates a schema node into a TypeScript type expression.
// References are never inlined; they resolve to the target's type name and
// are recorded in Refs, so simple $ref cycles terminate naturally. The
// visiting set guards inline-composition recursion: re-entering a node that
// is still being resolved yields the unknown type and a diagnostic instead
// of unbounded recursion.
func ResolveType(n *genspec.Node, reg genspec.Registry, visiting map[*genspec.Node]struct{}) Resolution {
	r := &resolver{reg: reg, seen: map[string]struct{}{}}
	expr := r.resolve(n, visiting, "")
	return Resolution{Expr: expr, Refs: r.refs, Diags: r.diags}
}

type resolver struct {
	reg   genspec.Registry
	refs  []string
	seen  map[string]struct{}
	diags []Diag
}

func (r *resolver) recordRef(name string) {
	if _, ok := r.seen[name]; ok {
		return
	}
	r.seen[name] = struct{}{}
	r.refs = append(r.refs, name)
}

func (r *resolver) diag(ctx, format string, args ...any) {
	r.diags = append(r.diags, Diag{Context: ctx, Message: fmt.Sprintf(format, args...)})
}

func (r *resolver) resolve(n *genspec.Node, visiting map[*genspec.Node]struct{}, ctx string) string {
	if n == nil {
		return unknownType
	}

	var base string
	switch n.Kind {
	case genspec.KindRef:
		if _, ok := r.reg[n.Ref]; !ok {
			r.diag(ctx, "unresolved $ref %q", n.Ref)
			base = unknownType
			break
		}
		r.recordRef(n.Ref)
		base = typeName(n.Ref)

	case genspec.KindEnum:
		base = enumUnion(n.Enum)

	case genspec.KindOneOf, genspec.KindAnyOf:
		base = r.union(n, visiting, ctx)

	case genspec.KindAllOf:
		base = r.intersection(n, visiting, ctx)

	case genspec.KindArray:
		item := unknownType
		if n.Items != nil {
			item = r.resolve(n.Items, visiting, ctx)
		}
		if strings.ContainsAny(item, "|&") || strings.HasPrefix(item, "{") {
			item = "(" + item + ")"
		}
		base = item + "[]"

	case genspec.KindObject:
		if len(n.Properties) == 0 {
			base = "Record<string, unknown>"
			break
		}
		base = r.object(n, visiting, ctx)

	case genspec.KindPrimitive:
		// string formats like date and date-time stay plain string on
		// purpose; no temporal type is introduced.
		base = scalarType(n.Prim)

	default:
		base = unknownType
	}

	if n.Nullable && base != unknownType {
		base += " | null"
	}
	return base
}

// enter marks a node as being resolved. Returning false means the node is
// already on the current inline-composition path, i.e. a cycle that $ref
// indirection cannot break.
func (r *resolver) enter(n *genspec.Node, visiting map[*genspec.Node]struct{}, ctx string) bool {
	if _, ok := visiting[n]; ok {
		r.diag(ctx, "inline composition cycle detected (%s)", n.Kind)
		return false
	}
	visiting[n] = struct{}{}
	return true
}

func (r *resolver) union(n *genspec.Node, visiting map[*genspec.Node]struct{}, ctx string) string {
	if len(n.Members) == 0 {
		return unknownType
	}
	if !r.enter(n, visiting, ctx) {
		return unknownType
	}
	defer delete(visiting, n)

	var parts []string
	seen := map[string]struct{}{}
	for _, m := range n.Members {
		expr := r.resolve(m, visiting, ctx)
		if _, dup := seen[expr]; dup {
			continue
		}
		seen[expr] = struct{}{}
		parts = append(parts, expr)
	}
	return strings.Join(parts, " | ")
}

// intersection renders allOf as RefA & RefB & {mergedInlineProps}. Inline
// object members are merged property-wise; a later member's property
// overwrites an earlier one with the same name (inherited source behavior,
// left as is).
func (r *resolver) intersection(n *genspec.Node, visiting map[*genspec.Node]struct{}, ctx string) string {
	if len(n.Members) == 0 {
		return unknownType
	}
	if !r.enter(n, visiting, ctx) {
		return unknownType
	}
	defer delete(visiting, n)

	var parts []string
	merged := &genspec.Node{Kind: genspec.KindObject}
	mergedIdx := map[string]int{}
	for _, m := range n.Members {
		if m == nil {
			continue
		}
		switch m.Kind {
		case genspec.KindRef:
			parts = append(parts, r.resolve(m, visiting, ctx))
		case genspec.KindObject:
			for _, p := range m.Properties {
				if i, ok := mergedIdx[p.Name]; ok {
					merged.Properties[i] = p
					continue
				}
				mergedIdx[p.Name] = len(merged.Properties)
				merged.Properties = append(merged.Properties, p)
			}
			for _, req := range m.Required {
				if !merged.RequiredProp(req) {
					merged.Required = append(merged.Required, req)
				}
			}
		default:
			parts = append(parts, r.resolve(m, visiting, ctx))
		}
	}
	if len(merged.Properties) > 0 {
		parts = append(parts, r.object(merged, visiting, ctx))
	}
	if len(parts) == 0 {
		return unknownType
	}
	return strings.Join(parts, " & ")
}

func (r *resolver) object(n *genspec.Node, visiting map[*genspec.Node]struct{}, ctx string) string {
	if !r.enter(n, visiting, ctx) {
		return unknownType
	}
	defer delete(visiting, n)

	var b strings.Builder
	if doc := docText(n); doc != "" {
		b.WriteString("/** " + doc + " */ ")
	}
	b.WriteString("{ ")
	for i, p := range n.Properties {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(propKey(p.Name))
		if !n.RequiredProp(p.Name) {
			b.WriteString("?")
		}
		b.WriteString(": ")
		b.WriteString(r.resolve(p.Node, visiting, ctx))
	}
	b.WriteString(" }")
	return b.String()
}

func enumUnion(values []any) string {
	if len(values) == 0 {
		return unknownType
	}
	parts := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, v := range values {
		lit := literal(v)
		if _, dup := seen[lit]; dup {
			continue
		}
		seen[lit] = struct{}{}
		parts = append(parts, lit)
	}
	return strings.Join(parts, " | ")
}

func literal(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func scalarType(prim string) string {
	switch prim {
	case "string":
		return "string"
	case "integer", "number":
		return "number"
	case "boolean":
		return "boolean"
	default:
		return unknownType
	}
}

// docText flattens title/description into a single-line doc comment body.
func docText(n *genspec.Node) string {
	doc := n.Title
	if doc == "" {
		doc = n.Description
	}
	doc = strings.Join(strings.Fields(doc), " ")
	return strings.ReplaceAll(doc, "*/", "*\\/")
}

// typeName sanitizes a schema name into a TypeScript identifier.
func typeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '$' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return unknownType
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$' || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// propKey quotes property names that are not valid identifiers.
func propKey(name string) string {
	if isIdent(name) {
		return name
	}
	return strconv.Quote(name)
}
