package tsemitter

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

func jsonMedia(n *genspec.Node) []genspec.Media {
	return []genspec.Media{{Mime: "application/json", Schema: n}}
}

// userDoc models a small user service: one read endpoint and one write
// endpoint under the same tag, both exchanging the User schema.
func userDoc() *genspec.Document {
	user := obj([]string{"id", "name"},
		genspec.Property{Name: "email", Node: func() *genspec.Node {
			n := prim("string")
			n.Nullable = true
			return n
		}()},
		genspec.Property{Name: "id", Node: prim("integer")},
		genspec.Property{Name: "name", Node: prim("string")},
	)
	return &genspec.Document{
		Title:    "User Service",
		Version:  "1.2.3",
		Registry: genspec.Registry{"User": user},
		Endpoints: []genspec.Endpoint{
			{
				Method:      genspec.GET,
				Path:        "/users/{id}",
				OperationID: "userController_getUser",
				Tags:        []string{"User"},
				Parameters: []genspec.Parameter{
					{Name: "id", In: "path", Required: true, Schema: prim("integer")},
				},
				Responses: []genspec.Response{{Status: "200", Content: jsonMedia(ref("User"))}},
			},
			{
				Method:      genspec.POST,
				Path:        "/users",
				OperationID: "userController_createUser",
				Tags:        []string{"User"},
				RequestBody: jsonMedia(ref("User")),
				Responses:   []genspec.Response{{Status: "201", Content: jsonMedia(ref("User"))}},
			},
		},
	}
}

func TestEmitArtifacts_UserGroup(t *testing.T) {
	t.Parallel()
	arts, err := EmitArtifacts(userDoc(), Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art, ok := arts["User"]
	if !ok {
		t.Fatalf("missing User artifact, got tags %v", artifactTags(arts))
	}
	if len(art.Diags) != 0 {
		t.Fatalf("unexpected diags: %v", art.Diags)
	}

	for _, want := range []string{
		"export interface User {",
		"id: number;",
		"name: string;",
		"email?: string | null;",
	} {
		if !strings.Contains(art.Types, want) {
			t.Errorf("types missing %q:\n%s", want, art.Types)
		}
	}

	for _, want := range []string{
		`import useSWR, { mutate } from "swr";`,
		`import { http } from "../core/http";`,
		`import type { User } from "./types";`,
		"export interface GetUserParams {\n  id: number;\n}",
		"export function useGetUser(params: GetUserParams) {",
		`useSWR<User>(["userController_getUser", params], () => http.get<User>(` + "`/users/${params.id}`" + `))`,
		"export async function createUser(body: User): Promise<User> {",
		"const data = await http.post<User>(`/users`, body);",
		`await mutate((key) => Array.isArray(key) && key[0] === "userController_createUser");`,
		"return data;",
	} {
		if !strings.Contains(art.Bindings, want) {
			t.Errorf("bindings missing %q:\n%s", want, art.Bindings)
		}
	}

	if !reflect.DeepEqual(art.Imports, []string{"useSWR", "http", "mutate"}) {
		t.Fatalf("imports: got %v", art.Imports)
	}
	if !reflect.DeepEqual(art.UsedTypes, []string{"User"}) {
		t.Fatalf("used types: got %v", art.UsedTypes)
	}
}

func artifactTags(arts map[string]*Artifact) []string {
	var tags []string
	for t := range arts {
		tags = append(tags, t)
	}
	return tags
}

func TestEmitArtifacts_ReadOnlyGroupOmitsMutate(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	doc.Endpoints = doc.Endpoints[:1] // GET only
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art := arts["User"]
	if strings.Contains(art.Bindings, "mutate") {
		t.Fatalf("read-only bindings must not import mutate:\n%s", art.Bindings)
	}
	if !strings.Contains(art.Bindings, `import useSWR from "swr";`) {
		t.Fatalf("expected bare useSWR import:\n%s", art.Bindings)
	}
	for _, sym := range art.Imports {
		if sym == "mutate" {
			t.Fatalf("import manifest lists unused mutate: %v", art.Imports)
		}
	}
}

func TestEmitArtifacts_Idempotent(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	first, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("emission is not deterministic:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestEmitArtifacts_SharedParamShape(t *testing.T) {
	t.Parallel()
	param := []genspec.Parameter{{Name: "id", In: "path", Required: true, Schema: prim("integer")}}
	doc := &genspec.Document{
		Registry: genspec.Registry{},
		Endpoints: []genspec.Endpoint{
			{Method: genspec.GET, Path: "/pets/{id}", OperationID: "pets_fetch", Tags: []string{"Pets"}, Parameters: param},
			{Method: genspec.DELETE, Path: "/pets/{id}", OperationID: "pets_remove", Tags: []string{"Pets"}, Parameters: param},
		},
	}
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art := arts["Pets"]
	if n := strings.Count(art.Bindings, "export interface "); n != 1 {
		t.Fatalf("identical parameter shapes must share one interface, got %d:\n%s", n, art.Bindings)
	}
	if !strings.Contains(art.Bindings, "export async function remove(params: FetchParams)") {
		t.Fatalf("second endpoint must reuse the shared shape:\n%s", art.Bindings)
	}
	// DELETE sends no body argument
	if !strings.Contains(art.Bindings, "http.delete<unknown>(`/pets/${params.id}`)") {
		t.Fatalf("delete call:\n%s", art.Bindings)
	}
}

func TestEmitArtifacts_QueryParams(t *testing.T) {
	t.Parallel()
	doc := &genspec.Document{
		Registry: genspec.Registry{},
		Endpoints: []genspec.Endpoint{{
			Method:      genspec.GET,
			Path:        "/pets",
			OperationID: "pets_list",
			Tags:        []string{"Pets"},
			Parameters: []genspec.Parameter{
				{Name: "limit", In: "query", Schema: prim("integer")},
				{Name: "offset", In: "query", Schema: prim("integer")},
			},
		}},
	}
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art := arts["Pets"]
	if !strings.Contains(art.Bindings, "limit?: number;") {
		t.Fatalf("optional query param:\n%s", art.Bindings)
	}
	if !strings.Contains(art.Bindings, "{ limit: params.limit, offset: params.offset }") {
		t.Fatalf("query object:\n%s", art.Bindings)
	}
}

func TestEmitArtifacts_StatusPreference(t *testing.T) {
	t.Parallel()
	doc := &genspec.Document{
		Registry: genspec.Registry{"User": obj(nil, genspec.Property{Name: "id", Node: prim("integer")})},
		Endpoints: []genspec.Endpoint{{
			Method:      genspec.POST,
			Path:        "/users",
			OperationID: "users_create",
			Tags:        []string{"User"},
			Responses: []genspec.Response{
				{Status: "201", Content: jsonMedia(ref("User"))},
				{Status: "400", Content: jsonMedia(prim("string"))},
			},
		}},
	}
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !strings.Contains(arts["User"].Bindings, "Promise<User>") {
		t.Fatalf("201 schema must win over 400:\n%s", arts["User"].Bindings)
	}
}

func TestEmitArtifacts_UnresolvedRefDiag(t *testing.T) {
	t.Parallel()
	doc := &genspec.Document{
		Registry: genspec.Registry{},
		Endpoints: []genspec.Endpoint{{
			Method:      genspec.GET,
			Path:        "/things",
			OperationID: "things_list",
			Tags:        []string{"Things"},
			Responses:   []genspec.Response{{Status: "200", Content: jsonMedia(ref("Ghost"))}},
		}},
	}
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art := arts["Things"]
	if !strings.Contains(art.Bindings, "useSWR<unknown>") {
		t.Fatalf("unresolved schema must degrade to unknown:\n%s", art.Bindings)
	}
	if len(art.Diags) == 0 || !strings.Contains(art.Diags[0].Message, "Ghost") {
		t.Fatalf("expected unresolved-ref diag, got %v", art.Diags)
	}
}

func TestEmitArtifacts_TemplateRendering(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tpl := filepath.Join(dir, "bindings.ts.tpl")
	content := "// rendered for {{ tag }}\n{{ imports }}\n\n{{ body }}"
	if err := os.WriteFile(tpl, []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	arts, err := EmitArtifacts(userDoc(), Options{TemplatePath: tpl})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	art := arts["User"]
	if !strings.Contains(art.Bindings, "// rendered for User") {
		t.Fatalf("template output missing header:\n%s", art.Bindings)
	}
	if !strings.Contains(art.Bindings, "export function useGetUser") {
		t.Fatalf("template output missing body:\n%s", art.Bindings)
	}
}

func TestEmitArtifacts_TemplateFallback(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope.tpl")
	arts, err := EmitArtifacts(userDoc(), Options{TemplatePath: missing})
	if err != nil {
		t.Fatalf("emit must fall back, got error: %v", err)
	}
	art := arts["User"]
	if !strings.Contains(art.Bindings, "export function useGetUser") {
		t.Fatalf("fallback must use built-in renderer:\n%s", art.Bindings)
	}
	found := false
	for _, d := range art.Diags {
		if strings.Contains(d.Message, "built-in renderer") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fallback diag, got %v", art.Diags)
	}
}

func TestEmitArtifacts_TemplateStrict(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope.tpl")
	_, err := EmitArtifacts(userDoc(), Options{TemplatePath: missing, StrictTemplates: true})
	if err == nil {
		t.Fatal("strict template failures must be fatal")
	}
}

func TestWriteProject_DryRun(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := filepath.Join(t.TempDir(), "client")
	res, err := WriteProject(context.Background(), doc, arts, ProjectOptions{OutDir: out, DryRun: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.PackageName != "user-service" {
		t.Fatalf("package name: got %q", res.PackageName)
	}
	var rels []string
	for _, p := range res.Planned {
		rels = append(rels, p.RelPath)
	}
	want := []string{
		"package.json",
		"src/user/index.ts",
		"src/user/types.ts",
		"tsconfig.json",
	}
	wantCore := "src/core/http.ts"
	found := false
	for _, r := range rels {
		if r == wantCore {
			found = true
		}
	}
	if !found {
		t.Fatalf("plan missing %s: %v", wantCore, rels)
	}
	for _, w := range want {
		ok := false
		for _, r := range rels {
			if r == w {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("plan missing %s: %v", w, rels)
		}
	}
	if !sortedStrings(rels) {
		t.Fatalf("plan must be sorted: %v", rels)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create the output directory")
	}
}

func sortedStrings(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}

func TestWriteProject_WritesFiles(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := filepath.Join(t.TempDir(), "client")
	if _, err := WriteProject(context.Background(), doc, arts, ProjectOptions{OutDir: out, PackageName: "my-client"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	pkg, err := os.ReadFile(filepath.Join(out, "package.json"))
	if err != nil {
		t.Fatalf("read package.json: %v", err)
	}
	if !strings.Contains(string(pkg), `"name": "my-client"`) {
		t.Fatalf("package.json name:\n%s", pkg)
	}
	if !strings.Contains(string(pkg), `"version": "1.2.3"`) {
		t.Fatalf("package.json must carry the spec version:\n%s", pkg)
	}
	if !strings.Contains(string(pkg), `"swr"`) {
		t.Fatalf("package.json must depend on swr:\n%s", pkg)
	}

	types, err := os.ReadFile(filepath.Join(out, "src", "user", "types.ts"))
	if err != nil {
		t.Fatalf("read types.ts: %v", err)
	}
	if !strings.Contains(string(types), "export interface User") {
		t.Fatalf("types.ts:\n%s", types)
	}
	if !strings.HasSuffix(string(types), "\n") {
		t.Fatal("generated files must end with a newline")
	}

	if _, err := os.Stat(filepath.Join(out, "src", "core", "http.ts")); err != nil {
		t.Fatalf("http core: %v", err)
	}
}

func TestWriteProject_RefusesNonEmptyDir(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := WriteProject(context.Background(), doc, arts, ProjectOptions{OutDir: out}); err == nil {
		t.Fatal("expected refusal on non-empty output directory")
	}
	if _, err := WriteProject(context.Background(), doc, arts, ProjectOptions{OutDir: out, Force: true}); err != nil {
		t.Fatalf("force write: %v", err)
	}
}

func TestWriteProject_Formatter(t *testing.T) {
	t.Parallel()
	doc := userDoc()
	arts, err := EmitArtifacts(doc, Options{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := filepath.Join(t.TempDir(), "client")
	marker := "/* formatted */\n"
	fmtr := func(text, ext string) (string, error) {
		if ext != ".ts" {
			return text, nil
		}
		return marker + text, nil
	}
	if _, err := WriteProject(context.Background(), doc, arts, ProjectOptions{OutDir: out, Formatter: fmtr}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "src", "user", "index.ts"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(got), marker) {
		t.Fatalf("formatter not applied:\n%s", got)
	}
}
