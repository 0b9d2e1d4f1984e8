package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"gopkg.in/yaml.v3"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1users/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures.
	MaxRetries int
	// BackoffBase is the minimum delay between retries.
	BackoffBase time.Duration
	// Validate runs a permissive kin-openapi validation pass on the loaded
	// document. Hard failures abort; unresolved-ref noise does not.
	Validate bool
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Validate:    true,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithValidation(validate bool) Option     { return func(s *Settings) { s.Validate = validate } }

// Load reads an OpenAPI document from a filesystem path or http/https URL and
// returns raw OpenAPI v3 bytes ready for Parse. Swagger v2.0 inputs are
// converted to v3 via kin-openapi. file:// URLs are rejected.
//
// Retrieval failures are fatal and carry operation + target context; nothing
// here is retried beyond the HTTP client's own transient-error policy.
func Load(ctx context.Context, input string, opts ...Option) ([]byte, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	raw, location, err := readDocument(ctx, input, settings)
	if err != nil {
		return nil, err
	}

	version, derr := detectSpecVersion(raw)
	if derr != nil {
		return nil, &SpecError{Code: ParseError, Message: derr.Error(), Location: location, Cause: derr}
	}

	switch version {
	case 3:
		if settings.Validate {
			if err := validateV3(ctx, raw); err != nil {
				return nil, mapValidateOrParseErr(err, location)
			}
		}
		return raw, nil
	case 2:
		if fixed, changed := mergeV2BodyParameters(raw); changed {
			raw = fixed
		}
		v3doc, err := convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3 %s: %v", location, err), Location: location, Cause: err}
		}
		out, err := json.Marshal(v3doc)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("encode converted document: %v", err), Location: location, Cause: err}
		}
		if settings.Validate {
			if err := validateV3(ctx, out); err != nil {
				return nil, mapValidateOrParseErr(err, location)
			}
		}
		return out, nil
	default:
		return nil, &SpecError{Code: ParseError, Message: "spec: unknown or unsupported OpenAPI/Swagger version", Location: location}
	}
}

// readDocument fetches raw bytes from a URL or reads them from disk, and
// reports the resolved location for error context.
func readDocument(ctx context.Context, input string, settings Settings) ([]byte, string, error) {
	u, uerr := url.Parse(input)
	if uerr == nil && u.Scheme != "" && u.Host != "" {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, "", &SpecError{Code: InputError, Message: "spec: file:// URLs are not allowed", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, err := fetch(ctx, input, settings)
		if err != nil {
			return nil, "", &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		return raw, input, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path %s: %v", input, err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return raw, abs, nil
}

func fetch(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = settings.MaxRetries
	client.RetryWaitMin = settings.BackoffBase
	client.HTTPClient.Timeout = settings.HTTPTimeout
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, nil
		}
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, nil
		}
	}
	return 0, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	var v2 openapi2.T
	if err := yaml.Unmarshal(data, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

func validateV3(ctx context.Context, raw []byte) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil && !canProceedDespiteValidation(err) {
		return err
	}
	return nil
}

// mergeV2BodyParameters rewrites Swagger v2 operations that declare more than
// one body parameter into a single body parameter whose schema is an object
// with one property per original parameter. kin-openapi rejects multi-body
// operations outright during conversion.
func mergeV2BodyParameters(data []byte) ([]byte, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, false
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return data, false
	}
	modified := false
	for _, pim := range paths {
		pi, ok := pim.(map[string]any)
		if !ok {
			continue
		}
		for method, opm := range pi {
			switch strings.ToLower(method) {
			case "get", "post", "put", "delete", "patch", "options", "head":
			default:
				continue
			}
			op, ok := opm.(map[string]any)
			if !ok {
				continue
			}
			params, ok := op["parameters"].([]any)
			if !ok {
				continue
			}
			var bodies []map[string]any
			var rest []any
			for _, p := range params {
				pm, _ := p.(map[string]any)
				if pm != nil && strings.EqualFold(str(pm["in"]), "body") {
					bodies = append(bodies, pm)
				} else {
					rest = append(rest, p)
				}
			}
			if len(bodies) < 2 {
				continue
			}
			props := map[string]any{}
			var required []any
			for _, b := range bodies {
				name := str(b["name"])
				if name == "" {
					continue
				}
				if s, ok := b["schema"]; ok {
					props[name] = s
				} else {
					props[name] = map[string]any{"type": "object"}
				}
				if req, _ := b["required"].(bool); req {
					required = append(required, name)
				}
			}
			schema := map[string]any{"type": "object", "properties": props}
			if len(required) > 0 {
				schema["required"] = required
			}
			op["parameters"] = append(rest, map[string]any{
				"name":     "body",
				"in":       "body",
				"required": len(required) > 0,
				"schema":   schema,
			})
			modified = true
		}
	}
	if !modified {
		return data, false
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, false
	}
	return out, true
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "parse") || strings.Contains(msg, "invalid character") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	if me, ok := err.(openapi3.MultiError); ok && len(me) > 0 {
		return extractJSONPointer(me[0])
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// canProceedDespiteValidation returns true for validation errors where a
// best-effort generation pass can still continue (unresolved $ref entries;
// the emitter substitutes unknown placeholders for those).
func canProceedDespiteValidation(err error) bool {
	if err == nil {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unresolved ref") || strings.Contains(s, "found unresolved ref")
}
