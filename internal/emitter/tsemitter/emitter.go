package tsemitter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

// Options controls artifact generation.
type Options struct {
	// TemplatePath points at an optional pongo2 template used to render each
	// bindings file instead of the built-in renderer.
	TemplatePath string
	// StrictTemplates makes template compile/render failures fatal. When
	// unset a failing template falls back to the built-in renderer and the
	// failure is reported as a diagnostic only.
	StrictTemplates bool
}

// Artifact is the generated output for one tag group: the type definitions
// block, the bindings file, and the import manifest that was actually used.
type Artifact struct {
	Tag       string
	Types     string
	Bindings  string
	Imports   []string // external symbols invoked (useSWR, mutate, http)
	UsedTypes []string // schema type names the bindings reference
	Diags     []Diag
}

// statusPreference is the fixed order in which response status codes are
// scanned for a JSON-content schema.
var statusPreference = []string{"200", "201", "204", "202", "203", "205"}

// EmitArtifacts generates one artifact per tag group. Groups are independent
// of each other, so they are rendered in parallel; the result map and every
// artifact in it are deterministic regardless of scheduling.
func EmitArtifacts(doc *genspec.Document, opts Options) (map[string]*Artifact, error) {
	groups, tags := GroupByTag(doc.Endpoints)

	artifacts := make(map[string]*Artifact, len(groups))
	var mu sync.Mutex
	var g errgroup.Group
	for _, tag := range tags {
		tag := tag
		eps := groups[tag]
		g.Go(func() error {
			art, err := emitGroup(tag, eps, doc.Registry, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			artifacts[tag] = art
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func emitGroup(tag string, eps []genspec.Endpoint, reg genspec.Registry, opts Options) (*Artifact, error) {
	art := &Artifact{Tag: tag}

	// Type definitions for every schema the group needs, in closure
	// discovery order.
	names := Closure(DirectlyUsed(eps), reg)
	var tb strings.Builder
	for i, name := range names {
		if i > 0 {
			tb.WriteString("\n")
		}
		tb.WriteString(typeDef(name, reg[name], reg, art))
	}
	art.Types = tb.String()

	// Bindings: one per endpoint, plus one parameter interface per distinct
	// parameter shape.
	syms := newSymbolTracker()
	bindNames := UniqueBindingNames(eps)
	shapes := map[string]string{} // rendered shape body -> interface name

	var bb strings.Builder
	for i, ep := range eps {
		block := emitBinding(ep, bindNames[i], reg, syms, shapes, art)
		if bb.Len() > 0 {
			bb.WriteString("\n")
		}
		bb.WriteString(block)
	}

	body := bb.String()
	builtin := renderBindingsFile(syms, body)
	art.Bindings = builtin
	if opts.TemplatePath != "" {
		out, err := renderWithTemplate(opts.TemplatePath, art, syms, body)
		if err != nil {
			if opts.StrictTemplates {
				return nil, fmt.Errorf("render template %s for tag %q: %w", opts.TemplatePath, tag, err)
			}
			art.Diags = append(art.Diags, Diag{Context: tag, Message: fmt.Sprintf("template %s failed (%v), using built-in renderer", opts.TemplatePath, err)})
		} else {
			art.Bindings = out
		}
	}

	art.Imports = syms.externals()
	art.UsedTypes = syms.types()
	return art, nil
}

// typeDef renders one named type definition: an interface for object shapes
// with properties, a type alias for everything else.
func typeDef(name string, n *genspec.Node, reg genspec.Registry, art *Artifact) string {
	var b strings.Builder
	if doc := docText(n); doc != "" {
		b.WriteString("/** " + doc + " */\n")
	}

	if n.Kind == genspec.KindObject && len(n.Properties) > 0 {
		b.WriteString("export interface " + typeName(name) + " {\n")
		for _, p := range n.Properties {
			res := ResolveType(p.Node, reg, map[*genspec.Node]struct{}{})
			art.Diags = append(art.Diags, contextualize(res.Diags, name)...)
			if p.Node != nil {
				if doc := docText(p.Node); doc != "" {
					b.WriteString("  /** " + doc + " */\n")
				}
			}
			b.WriteString("  " + propKey(p.Name))
			if !n.RequiredProp(p.Name) {
				b.WriteString("?")
			}
			b.WriteString(": " + res.Expr + ";\n")
		}
		b.WriteString("}\n")
		return b.String()
	}

	res := ResolveType(n, reg, map[*genspec.Node]struct{}{})
	art.Diags = append(art.Diags, contextualize(res.Diags, name)...)
	b.WriteString("export type " + typeName(name) + " = " + res.Expr + ";\n")
	return b.String()
}

// emitBinding renders the parameter interface (reused across endpoints with
// an identical shape) and the callable for one endpoint. GET and HEAD render
// as SWR hooks keyed by operation id and parameters; every other method
// renders as an async function that invalidates the matching cache key after
// success.
func emitBinding(ep genspec.Endpoint, bindName string, reg genspec.Registry, syms *symbolTracker, shapes map[string]string, art *Artifact) string {
	opID := OperationID(ep)
	epCtx := string(ep.Method) + " " + ep.Path
	read := ep.Method == genspec.GET || ep.Method == genspec.HEAD

	var b strings.Builder

	// Parameter interface.
	paramsType := ""
	if len(ep.Parameters) > 0 {
		shape := paramShape(ep.Parameters, reg, syms, art, epCtx)
		if existing, ok := shapes[shape]; ok {
			paramsType = existing
		} else {
			paramsType = pascal(bindName) + "Params"
			shapes[shape] = paramsType
			b.WriteString("export interface " + paramsType + " {\n" + shape + "}\n\n")
		}
	}

	// Response type: first preferred status that carries a JSON schema.
	respType := unknownType
	for _, code := range statusPreference {
		var schema *genspec.Node
		for _, resp := range ep.Responses {
			if resp.Status == code {
				schema = genspec.JSONSchema(resp.Content)
				break
			}
		}
		if schema != nil {
			res := ResolveType(schema, reg, map[*genspec.Node]struct{}{})
			art.Diags = append(art.Diags, contextualize(res.Diags, epCtx)...)
			syms.useTypes(res.Refs)
			respType = res.Expr
			break
		}
	}

	// Request body type for mutating methods.
	bodyType := ""
	if !read && ep.Method != genspec.DELETE {
		if schema := genspec.JSONSchema(ep.RequestBody); schema != nil {
			res := ResolveType(schema, reg, map[*genspec.Node]struct{}{})
			art.Diags = append(art.Diags, contextualize(res.Diags, epCtx)...)
			syms.useTypes(res.Refs)
			bodyType = res.Expr
		}
	}

	if doc := strings.TrimSpace(ep.Summary); doc != "" {
		b.WriteString("/** " + strings.Join(strings.Fields(doc), " ") + " */\n")
	}

	target := pathTemplate(ep.Path)
	query := queryObject(ep.Parameters)

	if read {
		syms.useExt("useSWR")
		syms.useExt("http")
		key := `["` + opID + `"]`
		arg := ""
		if paramsType != "" {
			key = `["` + opID + `", params]`
			arg = "params: " + paramsType
		}
		call := "http." + string(ep.Method) + "<" + respType + ">(" + target
		if query != "" {
			call += ", " + query
		}
		call += ")"
		b.WriteString("export function use" + pascal(bindName) + "(" + arg + ") {\n")
		b.WriteString("  return useSWR<" + respType + ">(" + key + ", () => " + call + ");\n")
		b.WriteString("}\n")
		return b.String()
	}

	syms.useExt("http")
	syms.useExt("mutate")
	var args []string
	if paramsType != "" {
		args = append(args, "params: "+paramsType)
	}
	if bodyType != "" {
		args = append(args, "body: "+bodyType)
	}
	call := "http." + string(ep.Method) + "<" + respType + ">(" + target
	if bodyType != "" {
		call += ", body"
	} else if ep.Method != genspec.DELETE {
		call += ", undefined"
	}
	if query != "" {
		call += ", " + query
	}
	call += ")"

	b.WriteString("export async function " + bindName + "(" + strings.Join(args, ", ") + "): Promise<" + respType + "> {\n")
	b.WriteString("  const data = await " + call + ";\n")
	b.WriteString(`  await mutate((key) => Array.isArray(key) && key[0] === "` + opID + `");` + "\n")
	b.WriteString("  return data;\n")
	b.WriteString("}\n")
	return b.String()
}

// paramShape renders the body of a parameter interface. Identical bodies are
// shared between endpoints, so the rendering must be canonical: parameters
// are already sorted by location then name at parse time.
func paramShape(params []genspec.Parameter, reg genspec.Registry, syms *symbolTracker, art *Artifact, ctx string) string {
	var b strings.Builder
	for _, p := range params {
		res := ResolveType(p.Schema, reg, map[*genspec.Node]struct{}{})
		art.Diags = append(art.Diags, contextualize(res.Diags, ctx)...)
		syms.useTypes(res.Refs)
		b.WriteString("  " + propKey(p.Name))
		if !p.Required {
			b.WriteString("?")
		}
		b.WriteString(": " + res.Expr + ";\n")
	}
	return b.String()
}

var pathParamRe = regexp.MustCompile(`\{([^{}]+)\}`)

// pathTemplate turns "/users/{id}" into a template literal interpolating
// params: `/users/${params.id}`.
func pathTemplate(path string) string {
	interpolated := pathParamRe.ReplaceAllString(path, "${params.$1}")
	return "`" + interpolated + "`"
}

// queryObject renders the query-parameter pass-through object, or empty when
// the endpoint has no query parameters.
func queryObject(params []genspec.Parameter) string {
	var fields []string
	for _, p := range params {
		if p.In != "query" {
			continue
		}
		fields = append(fields, propKey(p.Name)+": params."+p.Name)
	}
	if len(fields) == 0 {
		return ""
	}
	return "{ " + strings.Join(fields, ", ") + " }"
}

func renderBindingsFile(syms *symbolTracker, body string) string {
	header := syms.importLines()
	if header == "" {
		return body
	}
	return header + "\n" + body
}

func contextualize(diags []Diag, ctx string) []Diag {
	out := make([]Diag, 0, len(diags))
	for _, d := range diags {
		if d.Context == "" {
			d.Context = ctx
		}
		out = append(out, d)
	}
	return out
}

// symbolTracker records, at the point each symbol is written into the
// bindings text, which external entry points and schema type names are in
// use. The import manifest is derived from it directly instead of re-scanning
// the rendered text.
type symbolTracker struct {
	ext      map[string]struct{}
	extOrder []string
	typ      map[string]struct{}
	typOrder []string
}

func newSymbolTracker() *symbolTracker {
	return &symbolTracker{ext: map[string]struct{}{}, typ: map[string]struct{}{}}
}

func (t *symbolTracker) useExt(name string) {
	if _, ok := t.ext[name]; ok {
		return
	}
	t.ext[name] = struct{}{}
	t.extOrder = append(t.extOrder, name)
}

func (t *symbolTracker) useTypes(names []string) {
	for _, name := range names {
		if _, ok := t.typ[name]; ok {
			continue
		}
		t.typ[name] = struct{}{}
		t.typOrder = append(t.typOrder, name)
	}
}

func (t *symbolTracker) has(name string) bool {
	_, ok := t.ext[name]
	return ok
}

func (t *symbolTracker) externals() []string {
	return append([]string(nil), t.extOrder...)
}

func (t *symbolTracker) types() []string {
	return append([]string(nil), t.typOrder...)
}

// importLines renders the import header for the bindings file from the
// tracked symbol usage.
func (t *symbolTracker) importLines() string {
	var lines []string
	switch {
	case t.has("useSWR") && t.has("mutate"):
		lines = append(lines, `import useSWR, { mutate } from "swr";`)
	case t.has("useSWR"):
		lines = append(lines, `import useSWR from "swr";`)
	case t.has("mutate"):
		lines = append(lines, `import { mutate } from "swr";`)
	}
	if t.has("http") {
		lines = append(lines, `import { http } from "../core/http";`)
	}
	if len(t.typOrder) > 0 {
		names := make([]string, 0, len(t.typOrder))
		for _, n := range t.typOrder {
			names = append(names, typeName(n))
		}
		lines = append(lines, `import type { `+strings.Join(names, ", ")+` } from "./types";`)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
