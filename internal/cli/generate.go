package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/openapi-tools/swagger2swr/internal/emitter/tsemitter"
	genspec "github.com/openapi-tools/swagger2swr/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command
// after merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input           string
	Out             string
	IncludeTags     []string
	ExcludeTags     []string
	PackageName     string
	Template        string
	StrictTemplates bool
	ConfigPath      string
	DryRun          bool
	Force           bool
	Verbose         bool
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a TypeScript SWR client from an OpenAPI/Swagger document",
		Long: "Generate per-tag TypeScript type definitions and SWR hook bindings from " +
			"an OpenAPI/Swagger document. Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  swagger2swr generate --input spec.yaml --out ./client
  swagger2swr --config config.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.String("out", "", "Output directory (derived from spec title when omitted)")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.String("package-name", "", "Override the generated npm package name")
	flags.String("template", "", "Optional pongo2 template used to render bindings files")
	flags.Bool("strict-templates", false, "Fail instead of falling back when the template errors")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := GenerateConfig{}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("out") {
		value, err := flags.GetString("out")
		if err != nil {
			return err
		}
		cfg.Out = strings.TrimSpace(value)
	}
	if flags.Changed("include-tags") {
		value, err := flags.GetStringSlice("include-tags")
		if err != nil {
			return err
		}
		cfg.IncludeTags = sanitizeTags(value)
	}
	if flags.Changed("exclude-tags") {
		value, err := flags.GetStringSlice("exclude-tags")
		if err != nil {
			return err
		}
		cfg.ExcludeTags = sanitizeTags(value)
	}
	if flags.Changed("package-name") {
		value, err := flags.GetString("package-name")
		if err != nil {
			return err
		}
		cfg.PackageName = strings.TrimSpace(value)
	}
	if flags.Changed("template") {
		value, err := flags.GetString("template")
		if err != nil {
			return err
		}
		cfg.Template = strings.TrimSpace(value)
	}
	if flags.Changed("strict-templates") {
		value, err := flags.GetBool("strict-templates")
		if err != nil {
			return err
		}
		cfg.StrictTemplates = value
	}
	if flags.Changed("dry-run") {
		value, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.DryRun = value
	}
	if flags.Changed("force") {
		value, err := flags.GetBool("force")
		if err != nil {
			return err
		}
		cfg.Force = value
	}
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.PackageName = strings.TrimSpace(c.PackageName)
	c.Template = strings.TrimSpace(c.Template)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if c.StrictTemplates && c.Template == "" {
		return newUsageError("generate: --strict-templates requires --template")
	}
	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	// 1) Load the spec (file or http/https URL) with validation and conversion.
	raw, err := genspec.Load(ctx, cfg.Input)
	if err != nil {
		var se *genspec.SpecError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("spec: %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return newUsageError(msg)
		}
		return err
	}

	// 2) Build the internal document with tag filters applied.
	doc, err := genspec.Parse(raw,
		genspec.WithIncludeTags(cfg.IncludeTags),
		genspec.WithExcludeTags(cfg.ExcludeTags),
	)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	// 3) Generate per-tag artifacts.
	artifacts, err := tsemitter.EmitArtifacts(doc, tsemitter.Options{
		TemplatePath:    cfg.Template,
		StrictTemplates: cfg.StrictTemplates,
	})
	if err != nil {
		return err
	}

	// 4) Resolve the output directory and write the project.
	outDir := cfg.Out
	if outDir == "" {
		outDir = deriveOutDir(doc.Title)
	}
	absOut := outDir
	if ap, err := filepath.Abs(outDir); err == nil {
		absOut = ap
	}

	res, err := tsemitter.WriteProject(ctx, doc, artifacts, tsemitter.ProjectOptions{
		OutDir:      outDir,
		PackageName: cfg.PackageName,
		Force:       cfg.Force,
		DryRun:      cfg.DryRun,
		Verbose:     cfg.Verbose,
	})
	if err != nil {
		return wrapOutputError(err, absOut)
	}

	for _, d := range res.Diags {
		fmt.Fprintf(os.Stderr, "[WARN] %s\n", d)
	}
	if cfg.DryRun {
		paths := make([]string, 0, len(res.Planned))
		for _, p := range res.Planned {
			paths = append(paths, p.RelPath)
		}
		printPlan(absOut, len(res.Planned), paths)
	} else if cfg.Verbose {
		fmt.Fprintf(os.Stdout, "Wrote %d files to %s\n", len(res.Planned), absOut)
	}

	return nil
}

func printPlan(outDir string, count int, relPaths []string) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, count)
	for _, p := range relPaths {
		fmt.Fprintf(os.Stdout, "- %s\n", p)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
	}
	return err
}

func deriveOutDir(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return "client"
	}
	repl := strings.NewReplacer("/", " ", "_", " ", ".", " ", ",", " ", ":", " ")
	parts := strings.Fields(repl.Replace(t))
	if len(parts) == 0 {
		return "client"
	}
	return strings.Join(parts, "-") + "-client"
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		var ferr error
		switch normalizeKey(key) {
		case "input":
			cfg.Input, ferr = valueAsString(value)
		case "out":
			cfg.Out, ferr = valueAsString(value)
		case "includetags":
			var list []string
			list, ferr = valueAsStringSlice(value)
			cfg.IncludeTags = sanitizeTags(list)
		case "excludetags":
			var list []string
			list, ferr = valueAsStringSlice(value)
			cfg.ExcludeTags = sanitizeTags(list)
		case "packagename":
			cfg.PackageName, ferr = valueAsString(value)
		case "template":
			cfg.Template, ferr = valueAsString(value)
		case "stricttemplates":
			cfg.StrictTemplates, ferr = valueAsBool(value)
		case "dryrun":
			cfg.DryRun, ferr = valueAsBool(value)
		case "force":
			cfg.Force, ferr = valueAsBool(value)
		case "verbose":
			cfg.Verbose, ferr = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if ferr != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, ferr))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
