// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema, safe for concurrent use.
type Schema struct {
	name   string
	raw    json.RawMessage
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document once so it can be reused across requests.
func Compile(name string, schemaJSON []byte) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, raw: json.RawMessage(schemaJSON), schema: s}, nil
}

// MustCompile is Compile for package-level schema literals.
func MustCompile(name string, schemaJSON []byte) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Raw returns the schema document as it was compiled.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// ValidateJSON checks a raw JSON document against the schema. Malformed JSON is reported as a
// single document-level error rather than a Go error.
func (s *Schema) ValidateJSON(document []byte) *ValidationResult {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: fmt.Sprintf("document is not valid JSON: %v", err),
				Code:    "INVALID_JSON",
			}},
		}
	}
	return fromSchemaResult(result)
}

func fromSchemaResult(result *gojsonschema.Result) *ValidationResult {
	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    schemaErrorCode(desc.Type()),
		})
	}
	return &ValidationResult{Valid: result.Valid(), Errors: errs}
}

func schemaErrorCode(kind string) string {
	switch kind {
	case "required":
		return "REQUIRED_FIELD_MISSING"
	case "invalid_type":
		return "INVALID_TYPE"
	case "string_gte":
		return "MIN_LENGTH_VIOLATION"
	case "string_lte":
		return "MAX_LENGTH_VIOLATION"
	case "number_gt", "number_gte":
		return "MINIMUM_VIOLATION"
	case "number_lt", "number_lte":
		return "MAXIMUM_VIOLATION"
	case "array_min_items":
		return "MIN_ITEMS_VIOLATION"
	case "additional_property_not_allowed":
		return "EXTRA_FIELD"
	case "pattern":
		return "PATTERN_MISMATCH"
	default:
		return strings.ToUpper(kind)
	}
}

// Checker accumulates field errors for hand-written invariant checks. Not safe for concurrent use.
type Checker struct {
	errors []ValidationError
}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) add(field, message, code string) {
	c.errors = append(c.errors, ValidationError{Field: field, Message: message, Code: code})
}

// Length enforces a [min, max] bound counted in characters, not bytes.
func (c *Checker) Length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	if n < min {
		c.add(field, fmt.Sprintf("value must be at least %d characters", min), "MIN_LENGTH_VIOLATION")
	}
	if max > 0 && n > max {
		c.add(field, fmt.Sprintf("value must be at most %d characters", max), "MAX_LENGTH_VIOLATION")
	}
}

func (c *Checker) NotBlank(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.add(field, "value must not be empty", "REQUIRED_FIELD_MISSING")
	}
}

func (c *Checker) Positive(field string, value float64) {
	if !(value > 0) {
		c.add(field, "value must be > 0", "MINIMUM_VIOLATION")
	}
}

func (c *Checker) MinItems(field string, n, min int) {
	if n < min {
		c.add(field, fmt.Sprintf("must contain at least %d item(s)", min), "MIN_ITEMS_VIOLATION")
	}
}

func (c *Checker) Result() *ValidationResult {
	errs := make([]ValidationError, len(c.errors))
	copy(errs, c.errors)
	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Err returns nil when no checks failed.
func (c *Checker) Err() error {
	return c.Result().Err()
}

// Err converts an invalid result into an error listing every failure.
func (vr *ValidationResult) Err() error {
	if vr == nil || vr.Valid {
		return nil
	}
	return &ResultError{Result: vr}
}

type ResultError struct {
	Result *ValidationResult
}

func (e *ResultError) Error() string {
	return "validation failed: " + strings.Join(e.Result.GetErrorMessages(), "; ")
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}
