package spec

import (
	"errors"
	"testing"
)

const petStoreYAML = `
openapi: 3.0.3
info:
  title: Pet Store
  version: "2.0"
  description: Demo document
components:
  schemas:
    User:
      type: object
      required: [id]
      properties:
        name: {type: string}
        id: {type: integer, format: int64}
        email:
          type: string
          nullable: true
    Status:
      type: string
      enum: [active, disabled]
    Tag:
      type: ["string", "null"]
    Pet:
      allOf:
        - $ref: "#/components/schemas/User"
        - type: object
          properties:
            kind: {type: string}
paths:
  /users/{id}:
    parameters:
      - name: id
        in: path
        required: true
        schema: {type: integer}
      - name: trace
        in: header
        schema: {type: string}
    get:
      operationId: userController_getUser
      tags: [User]
      summary: Fetch one user
      parameters:
        - name: id
          in: path
          required: true
          schema: {type: string}
        - name: verbose
          in: query
          schema: {type: boolean}
      responses:
        "404": {description: missing}
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: "#/components/schemas/User"}
    delete:
      operationId: userController_deleteUser
      tags: [Admin]
      responses:
        "204": {description: gone}
  /users:
    post:
      operationId: userController_createUser
      tags: [User]
      requestBody:
        content:
          application/json:
            schema: {$ref: "#/components/schemas/User"}
      responses:
        "201":
          description: created
          content:
            application/json:
              schema: {$ref: "#/components/schemas/User"}
`

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Endpoints) != 0 || len(doc.Registry) != 0 {
		t.Fatalf("empty input must yield an empty document: %+v", doc)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("{"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	var se *SpecError
	if !errors.As(err, &se) || se.Code != ParseError {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParse_Registry(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(petStoreYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "Pet Store" || doc.Version != "2.0" {
		t.Fatalf("info: %q %q", doc.Title, doc.Version)
	}

	user := doc.Registry["User"]
	if user == nil || user.Kind != KindObject {
		t.Fatalf("User: %+v", user)
	}
	// properties sorted by name at parse time
	names := make([]string, 0, len(user.Properties))
	for _, p := range user.Properties {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "email" || names[1] != "id" || names[2] != "name" {
		t.Fatalf("property order: %v", names)
	}
	if !user.RequiredProp("id") || user.RequiredProp("name") {
		t.Fatalf("required: %v", user.Required)
	}
	if !user.Properties[0].Node.Nullable {
		t.Fatal("email must be nullable")
	}
	if id := user.Properties[1].Node; id.Kind != KindPrimitive || id.Prim != "integer" || id.Format != "int64" {
		t.Fatalf("id: %+v", id)
	}

	if st := doc.Registry["Status"]; st.Kind != KindEnum || len(st.Enum) != 2 {
		t.Fatalf("Status: %+v", st)
	}

	// 3.1 type array with null collapses to a nullable primitive
	if tag := doc.Registry["Tag"]; tag.Kind != KindPrimitive || tag.Prim != "string" || !tag.Nullable {
		t.Fatalf("Tag: %+v", tag)
	}

	pet := doc.Registry["Pet"]
	if pet.Kind != KindAllOf || len(pet.Members) != 2 {
		t.Fatalf("Pet: %+v", pet)
	}
	if pet.Members[0].Kind != KindRef || pet.Members[0].Ref != "User" {
		t.Fatalf("Pet ref member must carry the bare schema name: %+v", pet.Members[0])
	}
}

func TestParse_Endpoints(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(petStoreYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Endpoints) != 3 {
		t.Fatalf("endpoints: got %d", len(doc.Endpoints))
	}

	// paths sorted, then the fixed method order within each path
	if doc.Endpoints[0].Method != POST || doc.Endpoints[0].Path != "/users" {
		t.Fatalf("first endpoint: %+v", doc.Endpoints[0])
	}
	get := doc.Endpoints[1]
	if get.Method != GET || get.Path != "/users/{id}" || get.OperationID != "userController_getUser" {
		t.Fatalf("get endpoint: %+v", get)
	}
	if doc.Endpoints[2].Method != DELETE {
		t.Fatalf("third endpoint: %+v", doc.Endpoints[2])
	}

	// path-level params merged, op-level override wins, header param dropped
	if len(get.Parameters) != 2 {
		t.Fatalf("params: %+v", get.Parameters)
	}
	if p := get.Parameters[0]; p.Name != "id" || p.In != "path" || !p.Required || p.Schema.Prim != "string" {
		t.Fatalf("id param (op-level override must win): %+v", p)
	}
	if p := get.Parameters[1]; p.Name != "verbose" || p.In != "query" || p.Required {
		t.Fatalf("verbose param: %+v", p)
	}

	// path-level-only params propagate to ops that declare none
	del := doc.Endpoints[2]
	if len(del.Parameters) != 1 || del.Parameters[0].Schema.Prim != "integer" {
		t.Fatalf("delete params: %+v", del.Parameters)
	}

	// responses sorted by status
	if get.Responses[0].Status != "200" || get.Responses[1].Status != "404" {
		t.Fatalf("responses: %+v", get.Responses)
	}
	if s := JSONSchema(get.Responses[0].Content); s == nil || s.Kind != KindRef || s.Ref != "User" {
		t.Fatalf("200 schema: %+v", s)
	}

	post := doc.Endpoints[0]
	if s := JSONSchema(post.RequestBody); s == nil || s.Ref != "User" {
		t.Fatalf("request body: %+v", post.RequestBody)
	}
}

func TestParse_TagFilters(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(petStoreYAML), WithIncludeTags([]string{"User"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Endpoints) != 2 {
		t.Fatalf("include filter: got %d endpoints", len(doc.Endpoints))
	}
	for _, ep := range doc.Endpoints {
		if ep.Tags[0] != "User" {
			t.Fatalf("leaked endpoint: %+v", ep)
		}
	}

	doc, err = Parse([]byte(petStoreYAML), WithExcludeTags([]string{"Admin"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, ep := range doc.Endpoints {
		if ep.Method == DELETE {
			t.Fatalf("excluded endpoint leaked: %+v", ep)
		}
	}
}

func TestParse_MethodAndPathFilters(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(petStoreYAML), WithMethods([]HttpMethod{GET}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Endpoints) != 1 || doc.Endpoints[0].Method != GET {
		t.Fatalf("method filter: %+v", doc.Endpoints)
	}

	doc, err = Parse([]byte(petStoreYAML), WithPathPatterns([]string{`\{id\}`}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Endpoints) != 2 {
		t.Fatalf("path filter: %+v", doc.Endpoints)
	}
}

func TestParse_NodeShapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
		want NodeKind
	}{
		{"ref", `{$ref: "#/components/schemas/X"}`, KindRef},
		{"enum", `{type: string, enum: [a]}`, KindEnum},
		{"oneOf", `{oneOf: [{type: string}]}`, KindOneOf},
		{"anyOf", `{anyOf: [{type: string}]}`, KindAnyOf},
		{"allOf", `{allOf: [{type: object}]}`, KindAllOf},
		{"array", `{type: array, items: {type: string}}`, KindArray},
		{"object", `{type: object}`, KindObject},
		{"implicit object", `{properties: {a: {type: string}}}`, KindObject},
		{"primitive", `{type: boolean}`, KindPrimitive},
		{"unknown type", `{type: widget}`, KindUnknown},
		{"typeless", `{description: nothing here}`, KindUnknown},
		{"multi-type", `{type: [string, integer]}`, KindOneOf},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc, err := Parse([]byte("components:\n  schemas:\n    S: " + tc.yaml + "\n"))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := doc.Registry["S"].Kind; got != tc.want {
				t.Fatalf("kind: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestRefName(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"#/components/schemas/User", "User"},
		{"#/definitions/User", "User"},
		{"#/components/responses/NotFound", "NotFound"},
		{"User", "User"},
	}
	for _, tc := range cases {
		if got := refName(tc.in); got != tc.want {
			t.Errorf("refName(%q): got %q want %q", tc.in, got, tc.want)
		}
	}
}
