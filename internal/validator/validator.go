package validator

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
)

var (
	namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	namePattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_]+$`)
)

// ForbiddenKeys may not appear as object keys anywhere in caller-supplied
// arguments. Backends written in languages with inheritable attribute lookup
// treat them specially.
var ForbiddenKeys = []string{"__proto__", "constructor", "prototype"}

// BlockedSchemes are rejected for resource reads regardless of the rest of
// the URI.
var BlockedSchemes = []string{"file", "javascript", "data", "vbscript", "about"}

const legacyDelimiter = "__"

// Result is the outcome of validating one request. Validation never panics
// or returns an error directly; callers decide what to do with Errors.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err converts an invalid result into *apperr.ValidationError.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}

	var merr *multierror.Error
	for _, e := range r.Errors {
		merr = multierror.Append(merr, errors.New(e))
	}

	return &apperr.ValidationError{
		Problems: slices.Clone(r.Errors),
		Cause:    merr.ErrorOrNil(),
	}
}

type collector struct {
	errors []string
}

func (c *collector) add(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *collector) result() Result {
	return Result{Valid: len(c.errors) == 0, Errors: c.errors}
}

// NormalizeName rewrites the legacy "namespace__name" form to
// "namespace.name". Names that already contain a dot are left alone.
func NormalizeName(name string) string {
	if strings.Contains(name, ".") || !strings.Contains(name, legacyDelimiter) {
		return name
	}
	return strings.Replace(name, legacyDelimiter, ".", 1)
}

// ValidateToolCall checks the params of a tools/call request.
func ValidateToolCall(params map[string]any) Result {
	var c collector
	checkName(&c, params)
	checkArguments(&c, params)
	return c.result()
}

// ValidatePromptGet checks the params of a prompts/get request.
func ValidatePromptGet(params map[string]any) Result {
	var c collector
	checkName(&c, params)
	checkArguments(&c, params)
	return c.result()
}

// ValidateResourceRead checks the params of a resources/read request.
func ValidateResourceRead(params map[string]any) Result {
	var c collector

	raw, present := params["uri"]
	if !present || raw == nil {
		c.add("uri is required")
		return c.result()
	}

	uri, ok := raw.(string)
	if !ok {
		c.add("uri must be a string")
		return c.result()
	}

	scheme, _, found := strings.Cut(uri, "://")
	if !found {
		c.add("uri must include a scheme (scheme://...)")
		return c.result()
	}

	if err := validation.Validate(scheme, validation.Required, validation.Match(namespacePattern)); err != nil {
		c.add("uri scheme %q is invalid", scheme)
		return c.result()
	}

	if slices.Contains(BlockedSchemes, strings.ToLower(scheme)) {
		c.add("uri scheme %q is not allowed", scheme)
	}

	return c.result()
}

func checkName(c *collector, params map[string]any) {
	raw, present := params["name"]
	if !present || raw == nil {
		c.add("name is required")
		return
	}

	name, ok := raw.(string)
	if !ok {
		c.add("name must be a string")
		return
	}

	name = NormalizeName(name)
	if err := validation.Validate(name, validation.Required, validation.Match(namePattern)); err != nil {
		c.add("name %q must match namespace.name (namespace: letters, digits, '-', '_'; name: letters, digits, '_')", name)
	}
}

func checkArguments(c *collector, params map[string]any) {
	raw, present := params["arguments"]
	if !present || raw == nil {
		return
	}

	args, ok := raw.(map[string]any)
	if !ok {
		c.add("arguments must be an object")
		return
	}

	if found := forbiddenKeysIn(args); len(found) > 0 {
		c.add("arguments contain forbidden keys: %s", strings.Join(found, ", "))
	}
}

// HasForbiddenKeys reports whether any object inside value uses a forbidden key.
func HasForbiddenKeys(value any) bool {
	return len(forbiddenKeysIn(value)) > 0
}

func forbiddenKeysIn(value any) []string {
	seen := make(map[string]struct{})
	scanForbidden(value, seen)

	found := make([]string, 0, len(seen))
	for _, k := range ForbiddenKeys {
		if _, ok := seen[k]; ok {
			found = append(found, k)
		}
	}
	return found
}

func scanForbidden(value any, seen map[string]struct{}) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if isForbiddenKey(k) {
				seen[k] = struct{}{}
			}
			scanForbidden(child, seen)
		}
	case []any:
		for _, child := range v {
			scanForbidden(child, seen)
		}
	}
}

func isForbiddenKey(key string) bool {
	return slices.Contains(ForbiddenKeys, key)
}
