package tsemitter

import (
	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

// collectRefs walks a node and reports every schema name it references,
// transitively through properties, array items, and composition members but
// never through the reference itself: ref targets are expanded by Closure
// against the registry, not here. The seen set guards inline cycles.
func collectRefs(n *genspec.Node, seen map[*genspec.Node]struct{}, visit func(name string)) {
	if n == nil {
		return
	}
	if _, ok := seen[n]; ok {
		return
	}
	seen[n] = struct{}{}

	if n.Kind == genspec.KindRef {
		visit(n.Ref)
		return
	}
	collectRefs(n.Items, seen, visit)
	for _, p := range n.Properties {
		collectRefs(p.Node, seen, visit)
	}
	for _, m := range n.Members {
		collectRefs(m, seen, visit)
	}
}

// Closure expands root schema names into the full transitively-referenced
// set, in deterministic discovery order: roots first in their given order,
// then references in the order they are encountered. Names without a
// registry entry are skipped; growth is bounded by the registry size, so
// this always terminates even on cyclic reference graphs.
func Closure(roots []string, reg genspec.Registry) []string {
	var order []string
	visited := map[string]struct{}{}
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, done := visited[name]; done {
			continue
		}
		node, ok := reg[name]
		if !ok {
			continue
		}
		visited[name] = struct{}{}
		order = append(order, name)
		collectRefs(node, map[*genspec.Node]struct{}{}, func(ref string) {
			if _, done := visited[ref]; !done {
				queue = append(queue, ref)
			}
		})
	}
	return order
}

// DirectlyUsed returns the schema names referenced by any endpoint in the
// group, through parameter schemas, request-body schemas, and response
// content schemas, including references nested inside inline structure.
// Order follows endpoint order, then parameter/body/response order.
func DirectlyUsed(endpoints []genspec.Endpoint) []string {
	var out []string
	dedup := map[string]struct{}{}
	add := func(name string) {
		if _, ok := dedup[name]; ok {
			return
		}
		dedup[name] = struct{}{}
		out = append(out, name)
	}
	for _, ep := range endpoints {
		for _, p := range ep.Parameters {
			collectRefs(p.Schema, map[*genspec.Node]struct{}{}, add)
		}
		for _, m := range ep.RequestBody {
			collectRefs(m.Schema, map[*genspec.Node]struct{}{}, add)
		}
		for _, resp := range ep.Responses {
			for _, m := range resp.Content {
				collectRefs(m.Schema, map[*genspec.Node]struct{}{}, add)
			}
		}
	}
	return out
}
