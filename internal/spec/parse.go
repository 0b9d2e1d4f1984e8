package spec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseOption configures how a Document is built from raw OpenAPI bytes.
type ParseOption func(*parseConfig)

type parseConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
}

// WithIncludeTags keeps only endpoints that carry at least one of the given tags.
func WithIncludeTags(tags []string) ParseOption {
	return func(c *parseConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				if c.includeTags == nil {
					c.includeTags = make(map[string]struct{})
				}
				c.includeTags[t] = struct{}{}
			}
		}
	}
}

// WithExcludeTags drops endpoints that carry any of the given tags.
func WithExcludeTags(tags []string) ParseOption {
	return func(c *parseConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				if c.excludeTags == nil {
					c.excludeTags = make(map[string]struct{})
				}
				c.excludeTags[t] = struct{}{}
			}
		}
	}
}

// WithMethods keeps only endpoints using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) ParseOption {
	return func(c *parseConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{})
			}
			c.methods[m] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only endpoints whose path matches at least one of
// the provided regular expressions. Invalid patterns never match.
func WithPathPatterns(patterns []string) ParseOption {
	return func(c *parseConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// Parse builds the internal Document from raw OpenAPI v3 YAML or JSON bytes.
// A missing paths or components.schemas section is treated as empty, not as
// an error. Everything the Document holds is derived once here; later stages
// only read it.
func Parse(raw []byte, opts ...ParseOption) (*Document, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("spec: parse document: %v", err), Cause: err}
	}
	if root == nil {
		root = map[string]any{}
	}

	cfg := &parseConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	doc := &Document{Registry: Registry{}}
	if info, ok := root["info"].(map[string]any); ok {
		doc.Title = str(info["title"])
		doc.Version = str(info["version"])
		doc.Description = str(info["description"])
	}

	if comps, ok := root["components"].(map[string]any); ok {
		if schemas, ok := comps["schemas"].(map[string]any); ok {
			names := sortedKeys(schemas)
			for _, name := range names {
				doc.Registry[name] = parseNode(schemas[name])
			}
		}
	}

	if paths, ok := root["paths"].(map[string]any); ok {
		for _, p := range sortedKeys(paths) {
			item, ok := paths[p].(map[string]any)
			if !ok {
				continue
			}
			baseParams := parseParameterList(item["parameters"])
			for _, m := range methodOrder {
				op, ok := item[string(m)].(map[string]any)
				if !ok {
					continue
				}
				if len(cfg.methods) > 0 {
					if _, keep := cfg.methods[m]; !keep {
						continue
					}
				}
				if !matchAnyPath(cfg.pathRes, p) {
					continue
				}
				ep := parseEndpoint(m, p, op, baseParams)
				if !allowByTags(ep.Tags, cfg) {
					continue
				}
				doc.Endpoints = append(doc.Endpoints, ep)
			}
		}
	}

	return doc, nil
}

// methodOrder fixes the per-path emission order so two runs over the same
// document never disagree.
var methodOrder = []HttpMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE}

func parseEndpoint(method HttpMethod, path string, op map[string]any, base []Parameter) Endpoint {
	ep := Endpoint{
		Method:      method,
		Path:        path,
		OperationID: str(op["operationId"]),
		Summary:     str(op["summary"]),
		Description: str(op["description"]),
	}

	if tags, ok := op["tags"].([]any); ok {
		for _, t := range tags {
			if s := str(t); s != "" {
				ep.Tags = append(ep.Tags, s)
			}
		}
	}

	// Path-level parameters first, overridden by operation-level ones that
	// share the same location and name.
	merged := map[string]Parameter{}
	for _, pm := range base {
		merged[pm.In+":"+pm.Name] = pm
	}
	for _, pm := range parseParameterList(op["parameters"]) {
		merged[pm.In+":"+pm.Name] = pm
	}
	for _, pm := range merged {
		ep.Parameters = append(ep.Parameters, pm)
	}
	sort.Slice(ep.Parameters, func(i, j int) bool {
		if ep.Parameters[i].In == ep.Parameters[j].In {
			return ep.Parameters[i].Name < ep.Parameters[j].Name
		}
		return ep.Parameters[i].In < ep.Parameters[j].In
	})

	if rb, ok := op["requestBody"].(map[string]any); ok {
		ep.RequestBody = parseContent(rb["content"])
	}

	if resp, ok := op["responses"].(map[string]any); ok {
		for _, code := range sortedKeys(resp) {
			rm, ok := resp[code].(map[string]any)
			if !ok {
				continue
			}
			ep.Responses = append(ep.Responses, Response{
				Status:  code,
				Content: parseContent(rm["content"]),
			})
		}
	}

	return ep
}

func parseParameterList(v any) []Parameter {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Parameter, 0, len(list))
	for _, e := range list {
		pm, ok := e.(map[string]any)
		if !ok {
			continue
		}
		in := str(pm["in"])
		if in != "path" && in != "query" {
			continue
		}
		required, _ := pm["required"].(bool)
		p := Parameter{Name: str(pm["name"]), In: in, Required: required}
		if s, ok := pm["schema"]; ok {
			p.Schema = parseNode(s)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseContent(v any) []Media {
	content, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make([]Media, 0, len(content))
	for _, mime := range sortedKeys(content) {
		mt, ok := content[mime].(map[string]any)
		if !ok {
			continue
		}
		media := Media{Mime: mime}
		if s, ok := mt["schema"]; ok {
			media.Schema = parseNode(s)
		}
		out = append(out, media)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseNode converts one duck-typed schema map into a tagged Node. The
// dispatch mirrors the resolver's priority order: $ref wins, then enum, then
// the composition keywords, then the declared type.
func parseNode(v any) *Node {
	m, ok := v.(map[string]any)
	if !ok {
		return &Node{Kind: KindUnknown}
	}

	if ref := str(m["$ref"]); ref != "" {
		return &Node{Kind: KindRef, Ref: refName(ref)}
	}

	n := &Node{
		Title:       str(m["title"]),
		Description: str(m["description"]),
		Format:      str(m["format"]),
	}
	if nullable, _ := m["nullable"].(bool); nullable {
		n.Nullable = true
	}

	if enum, ok := m["enum"].([]any); ok && len(enum) > 0 {
		n.Kind = KindEnum
		n.Enum = append([]any(nil), enum...)
		return n
	}

	for _, comp := range []struct {
		key  string
		kind NodeKind
	}{{"oneOf", KindOneOf}, {"anyOf", KindAnyOf}, {"allOf", KindAllOf}} {
		if members, ok := m[comp.key].([]any); ok {
			n.Kind = comp.kind
			for _, mem := range members {
				n.Members = append(n.Members, parseNode(mem))
			}
			return n
		}
	}

	switch t := m["type"].(type) {
	case string:
		return parseTyped(n, m, t)
	case []any:
		// 3.1 style type arrays; "null" folds into the Nullable flag.
		var kinds []string
		for _, e := range t {
			if s := str(e); s == "null" {
				n.Nullable = true
			} else if s != "" {
				kinds = append(kinds, s)
			}
		}
		switch len(kinds) {
		case 0:
			n.Kind = KindUnknown
			return n
		case 1:
			return parseTyped(n, m, kinds[0])
		default:
			n.Kind = KindOneOf
			for _, k := range kinds {
				n.Members = append(n.Members, parseTyped(&Node{}, m, k))
			}
			return n
		}
	}

	// No type declared: property bags still count as objects.
	if _, ok := m["properties"]; ok {
		return parseTyped(n, m, "object")
	}
	n.Kind = KindUnknown
	return n
}

func parseTyped(n *Node, m map[string]any, typ string) *Node {
	switch typ {
	case "array":
		n.Kind = KindArray
		if items, ok := m["items"]; ok {
			n.Items = parseNode(items)
		}
	case "object":
		n.Kind = KindObject
		if props, ok := m["properties"].(map[string]any); ok {
			for _, name := range sortedKeys(props) {
				n.Properties = append(n.Properties, Property{Name: name, Node: parseNode(props[name])})
			}
		}
		if req, ok := m["required"].([]any); ok {
			for _, r := range req {
				if s := str(r); s != "" {
					n.Required = append(n.Required, s)
				}
			}
		}
	case "string", "integer", "number", "boolean":
		n.Kind = KindPrimitive
		n.Prim = typ
	default:
		n.Kind = KindUnknown
	}
	return n
}

// refName strips the components/definitions prefix from a $ref, leaving the
// bare schema name used as the Registry key.
func refName(ref string) string {
	for _, prefix := range []string{"#/components/schemas/", "#/definitions/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func allowByTags(tags []string, cfg *parseConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func matchAnyPath(res []*regexp.Regexp, path string) bool {
	if len(res) == 0 {
		return true
	}
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
