// Package schema validates JSON request bodies against a typed subset of
// JSON Schema.
package schema

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// FormatEmail requires a string to be a bare e-mail address.
const FormatEmail = "email"

// Schema describes one JSON value. Zero-valued constraints are not checked.
//
// Supported keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required, additionalProperties
//   - items, minItems, maxItems
//   - minLength, maxLength (counted in runes)
//   - minimum, maximum
//   - enum
//   - format (email)
type Schema struct {
	Type                 string
	Properties           map[string]*Schema
	Required             []string
	AdditionalProperties *bool
	Items                *Schema
	MinItems             *int
	MaxItems             *int
	MinLength            *int
	MaxLength            *int
	Minimum              *float64
	Maximum              *float64
	Enum                 []any
	Format               string
}

// Int returns a pointer to n, for the length and item bounds.
func Int(n int) *int { return &n }

// Float returns a pointer to f, for Minimum and Maximum.
func Float(f float64) *float64 { return &f }

// Bool returns a pointer to b, for AdditionalProperties.
func Bool(b bool) *bool { return &b }

// FieldError is one failed constraint. Path is "$" for the document itself
// and "$.a.b[0]" below it.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"msg"`
}

func (e FieldError) Error() string {
	return e.Path + ": " + e.Message
}

// Errors is every FieldError found in a document.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks value, as decoded by encoding/json, against s. It returns
// nil or an Errors value. A nil schema accepts everything.
func Validate(s *Schema, value any) error {
	if s == nil {
		return nil
	}
	var errs Errors
	validateValue(s, value, "$", &errs)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateJSON decodes data and validates it against s.
func ValidateJSON(s *Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Errors{{Path: "$", Message: "invalid JSON: " + err.Error()}}
	}
	return Validate(s, v)
}

func validateValue(s *Schema, value any, path string, errs *Errors) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if s.Type != "" {
		if err := checkType(s.Type, value); err != "" {
			fail("%s", err)
			return
		}
	}
	if len(s.Enum) > 0 && !inEnum(s.Enum, value) {
		fail("value not in enum %v", s.Enum)
	}

	switch v := value.(type) {
	case map[string]any:
		validateObject(s, v, path, errs)
	case []any:
		if s.MinItems != nil && len(v) < *s.MinItems {
			fail("array length %d is less than minItems %d", len(v), *s.MinItems)
		}
		if s.MaxItems != nil && len(v) > *s.MaxItems {
			fail("array length %d is greater than maxItems %d", len(v), *s.MaxItems)
		}
		if s.Items != nil {
			for i, elem := range v {
				validateValue(s.Items, elem, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	case string:
		n := utf8.RuneCountInString(v)
		if s.MinLength != nil && n < *s.MinLength {
			fail("string length %d is less than minLength %d", n, *s.MinLength)
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			fail("string length %d is greater than maxLength %d", n, *s.MaxLength)
		}
		if s.Format == FormatEmail && !isEmail(v) {
			fail("%q is not a valid e-mail address", v)
		}
	case float64:
		if s.Minimum != nil && v < *s.Minimum {
			fail("%v is less than minimum %v", v, *s.Minimum)
		}
		if s.Maximum != nil && v > *s.Maximum {
			fail("%v is greater than maximum %v", v, *s.Maximum)
		}
	}
}

func validateObject(s *Schema, obj map[string]any, path string, errs *Errors) {
	for _, field := range s.Required {
		if _, ok := obj[field]; !ok {
			*errs = append(*errs, FieldError{Path: path + "." + field, Message: "is required"})
		}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	var extra []string
	for _, name := range names {
		ps, ok := s.Properties[name]
		if !ok {
			extra = append(extra, name)
			continue
		}
		validateValue(ps, obj[name], path+"."+name, errs)
	}
	if s.AdditionalProperties != nil && !*s.AdditionalProperties && len(extra) > 0 {
		*errs = append(*errs, FieldError{
			Path:    path,
			Message: "additional properties not allowed: " + strings.Join(extra, ", "),
		})
	}
}

func checkType(expected string, value any) string {
	actual := jsonType(value)
	switch {
	case actual == expected:
		return ""
	case expected == "integer" && actual == "number":
		if f := value.(float64); f == float64(int64(f)) {
			return ""
		}
	case expected == "number" && actual == "integer":
		return ""
	}
	return fmt.Sprintf("expected type %q, got %q", expected, actual)
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case int, int64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func inEnum(allowed []any, value any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return true
		}
	}
	return false
}

// isEmail accepts addresses like "a@b.c" and rejects display names and
// domains without a dot.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}
