package tsemitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

// Formatter post-processes a rendered file. It receives the text and the
// file extension as a hint and must be safe to skip: when it fails the
// unformatted text is written as is.
type Formatter func(text, ext string) (string, error)

// ProjectOptions controls how the generated client project is written.
type ProjectOptions struct {
	OutDir      string // required; target directory
	PackageName string // npm package name; derived from the document title when empty
	Force       bool   // overwrite existing files
	DryRun      bool   // plan only, write nothing
	Verbose     bool
	Formatter   Formatter // optional cosmetic formatting hook
}

// PlannedFile describes a file the writer intends to produce.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result reports the resolved package name, the planned files, and every
// diagnostic collected across the tag groups.
type Result struct {
	PackageName string
	Planned     []PlannedFile
	Diags       []Diag
}

// WriteProject renders the artifacts into a TypeScript client project:
// package.json, tsconfig.json, a shared fetch wrapper under src/core, and
// per-tag directories with types.ts and index.ts.
func WriteProject(ctx context.Context, doc *genspec.Document, artifacts map[string]*Artifact, opts ProjectOptions) (*Result, error) {
	_ = ctx
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("tsemitter: OutDir is required")
	}
	pkgName := sanitizePackageName(opts.PackageName)
	if pkgName == "" {
		pkgName = sanitizePackageName(doc.Title)
		if pkgName == "" {
			pkgName = "api-client"
		}
	}

	res := &Result{PackageName: pkgName}

	files := map[string][]byte{
		"package.json":     []byte(renderPackageJSON(pkgName, doc.Version)),
		"tsconfig.json":    []byte(renderTSConfig()),
		"src/core/http.ts": []byte(renderHTTPCore()),
	}
	for tag, art := range artifacts {
		dir := dirName(tag)
		files[filepath.Join("src", dir, "types.ts")] = []byte(ensureTrailingNewline(art.Types))
		files[filepath.Join("src", dir, "index.ts")] = []byte(ensureTrailingNewline(art.Bindings))
		res.Diags = append(res.Diags, art.Diags...)
	}

	if opts.Formatter != nil {
		for rel, content := range files {
			formatted, err := opts.Formatter(string(content), filepath.Ext(rel))
			if err != nil {
				// Formatting is cosmetic; keep the unformatted text.
				continue
			}
			files[rel] = []byte(formatted)
		}
	}

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, filepath.ToSlash(p))
	}
	sort.Strings(rels)
	for _, rel := range rels {
		res.Planned = append(res.Planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("tsemitter: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

func sanitizePackageName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	b := strings.Builder{}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-.")
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func renderPackageJSON(name, version string) string {
	if strings.TrimSpace(version) == "" {
		version = "0.1.0"
	}
	return `{
  "name": "` + name + `",
  "version": "` + version + `",
  "type": "module",
  "main": "src/index.ts",
  "dependencies": {
    "swr": "^2.2.5"
  },
  "devDependencies": {
    "typescript": "^5.4.0"
  }
}
`
}

func renderTSConfig() string {
	return `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "ESNext",
    "moduleResolution": "bundler",
    "strict": true,
    "jsx": "react-jsx",
    "skipLibCheck": true
  },
  "include": ["src"]
}
`
}

// renderHTTPCore emits the shared fetch wrapper the bindings call into.
func renderHTTPCore() string {
	return `export interface HttpConfig {
  baseUrl?: string;
  headers?: Record<string, string>;
}

const config: HttpConfig = {};

export function configure(next: HttpConfig): void {
  Object.assign(config, next);
}

async function request<T>(
  method: string,
  path: string,
  query?: Record<string, unknown>,
  body?: unknown,
): Promise<T> {
  const base = config.baseUrl ?? "";
  const url = new URL(base + path, base ? undefined : "http://localhost");
  if (query) {
    for (const [key, value] of Object.entries(query)) {
      if (value !== undefined && value !== null) {
        url.searchParams.set(key, String(value));
      }
    }
  }
  const res = await fetch(url.toString(), {
    method,
    headers: { "Content-Type": "application/json", ...config.headers },
    body: body === undefined ? undefined : JSON.stringify(body),
  });
  if (!res.ok) {
    throw new Error(method + " " + path + " failed: " + res.status);
  }
  if (res.status === 204) {
    return undefined as T;
  }
  return (await res.json()) as T;
}

export const http = {
  get: <T>(path: string, query?: Record<string, unknown>) => request<T>("GET", path, query),
  head: <T>(path: string, query?: Record<string, unknown>) => request<T>("HEAD", path, query),
  delete: <T>(path: string, query?: Record<string, unknown>) => request<T>("DELETE", path, query),
  post: <T>(path: string, body?: unknown, query?: Record<string, unknown>) => request<T>("POST", path, query, body),
  put: <T>(path: string, body?: unknown, query?: Record<string, unknown>) => request<T>("PUT", path, query, body),
  patch: <T>(path: string, body?: unknown, query?: Record<string, unknown>) => request<T>("PATCH", path, query, body),
  options: <T>(path: string, body?: unknown, query?: Record<string, unknown>) => request<T>("OPTIONS", path, query, body),
  trace: <T>(path: string, body?: unknown, query?: Record<string, unknown>) => request<T>("TRACE", path, query, body),
};
`
}
