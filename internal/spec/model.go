package spec

// Internal model shared by the parser and the TypeScript emitter. Schema
// shapes are an explicit tagged union so the resolver can dispatch
// exhaustively on Kind instead of probing duck-typed maps.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// NodeKind discriminates the schema node union.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindRef
	KindPrimitive
	KindEnum
	KindArray
	KindObject
	KindOneOf
	KindAnyOf
	KindAllOf
)

func (k NodeKind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindOneOf:
		return "oneOf"
	case KindAnyOf:
		return "anyOf"
	case KindAllOf:
		return "allOf"
	default:
		return "unknown"
	}
}

// Node is one unit of the schema type language. Exactly the fields relevant
// to its Kind are populated; everything else stays zero.
//
// A KindRef node never inlines its target. It carries only the bare schema
// name (the "#/components/schemas/" prefix is stripped at parse time) and is
// resolved by lookup against the Registry.
type Node struct {
	Kind NodeKind

	Ref  string // KindRef: target schema name
	Prim string // KindPrimitive: string|integer|number|boolean

	Format string // optional on primitives (date, date-time, int64, ...)
	Enum   []any  // KindEnum

	Items *Node // KindArray; nil means array-of-unknown

	// KindObject. Properties is sorted by name at parse time so resolution
	// order never depends on map iteration.
	Properties []Property
	Required   []string

	Members []*Node // KindOneOf / KindAnyOf / KindAllOf

	// Nullable is set when the source declared nullable: true or a type
	// array containing "null". The resolver appends "| null" exactly once.
	Nullable bool

	Title       string
	Description string
}

// Property is a named member of an object node.
type Property struct {
	Name string
	Node *Node
}

// RequiredProp reports whether name appears in the node's required list.
func (n *Node) RequiredProp(name string) bool {
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Registry maps schema name to its node. It is built once per generation
// pass and treated as immutable afterwards.
type Registry map[string]*Node

// Document is the normalized form of one OpenAPI document: the endpoint
// descriptors plus the schema registry. Both are read-only once built.
type Document struct {
	Title       string
	Version     string
	Description string
	Endpoints   []Endpoint
	Registry    Registry
}

// Endpoint describes one path+method operation.
type Endpoint struct {
	Method      HttpMethod
	Path        string
	OperationID string // explicit operationId; empty when absent
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	RequestBody []Media    // per content type; nil when no body declared
	Responses   []Response // sorted by status code
}

// Parameter is a path or query parameter. Header and cookie parameters are
// dropped at parse time; they never influence generated bindings.
type Parameter struct {
	Name     string
	In       string // path|query
	Required bool
	Schema   *Node
}

// Media pairs a MIME type with its schema.
type Media struct {
	Mime   string
	Schema *Node
}

// Response is one status-code entry of an operation's response map.
type Response struct {
	Status  string
	Content []Media
}

// JSONSchema returns the schema attached to the application/json content of
// the media list, or nil when none is declared.
func JSONSchema(content []Media) *Node {
	for _, m := range content {
		if m.Mime == "application/json" || m.Mime == "application/json; charset=utf-8" {
			return m.Schema
		}
	}
	return nil
}
