package schema_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stevemurr/grocery-chat-server/schema"
)

var login = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"email":    {Type: "string", Format: schema.FormatEmail},
		"password": {Type: "string", MinLength: schema.Int(6)},
	},
	Required: []string{"email", "password"},
}

func TestValidateNilSchema(t *testing.T) {
	if err := schema.Validate(nil, map[string]any{"anything": "goes"}); err != nil {
		t.Fatalf("nil schema should pass: %v", err)
	}
}

func TestValidateType(t *testing.T) {
	if err := schema.Validate(login, []any{"not", "an", "object"}); err == nil {
		t.Fatal("expected error for array body")
	}
	if err := schema.Validate(&schema.Schema{Type: "object"}, map[string]any{}); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateRequired(t *testing.T) {
	err := schema.Validate(login, map[string]any{})
	var errs schema.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected schema.Errors, got %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Path != "$.email" || errs[1].Path != "$.password" {
		t.Fatalf("unexpected paths: %v", errs)
	}
}

func TestValidateEmailFormat(t *testing.T) {
	good := []string{"user@test.com", "a.b+c@sub.example.org"}
	bad := []string{"", "user", "user@", "@test.com", "user@localhost", "Bob <bob@test.com>", "user@test."}

	for _, email := range good {
		if err := schema.Validate(login, map[string]any{"email": email, "password": "secret1"}); err != nil {
			t.Errorf("%q: expected pass: %v", email, err)
		}
	}
	for _, email := range bad {
		if err := schema.Validate(login, map[string]any{"email": email, "password": "secret1"}); err == nil {
			t.Errorf("%q: expected error", email)
		}
	}
}

func TestValidateStringConstraints(t *testing.T) {
	s := &schema.Schema{Type: "string", MinLength: schema.Int(2), MaxLength: schema.Int(5)}

	if err := schema.Validate(s, "A"); err == nil {
		t.Fatal("expected error for too-short string")
	}
	if err := schema.Validate(s, "ABCDEF"); err == nil {
		t.Fatal("expected error for too-long string")
	}
	// Lengths count runes, not bytes.
	if err := schema.Validate(s, "äöü"); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateAdditionalProperties(t *testing.T) {
	s := &schema.Schema{
		Type:                 "object",
		Properties:           map[string]*schema.Schema{"name": {Type: "string"}},
		AdditionalProperties: schema.Bool(false),
	}

	err := schema.Validate(s, map[string]any{"name": "ok", "zeta": 1.0, "extra": "bad"})
	if err == nil || !strings.Contains(err.Error(), "extra, zeta") {
		t.Fatalf("expected additional properties error, got %v", err)
	}
	if err := schema.Validate(s, map[string]any{"name": "ok"}); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	// Unknown fields are allowed unless forbidden.
	if err := schema.Validate(login, map[string]any{"email": "a@b.co", "password": "secret1", "path": "/"}); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateNumberConstraints(t *testing.T) {
	s := &schema.Schema{Type: "integer", Minimum: schema.Float(0), Maximum: schema.Float(100)}

	if err := schema.Validate(s, float64(-1)); err == nil {
		t.Fatal("expected error for below minimum")
	}
	if err := schema.Validate(s, float64(101)); err == nil {
		t.Fatal("expected error for above maximum")
	}
	if err := schema.Validate(s, float64(5.5)); err == nil {
		t.Fatal("expected error for fractional number as integer")
	}
	if err := schema.Validate(s, float64(50)); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateEnum(t *testing.T) {
	s := &schema.Schema{Type: "string", Enum: []any{"user", "assistant", "system"}}

	if err := schema.Validate(s, "assistant"); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	if err := schema.Validate(s, "admin"); err == nil {
		t.Fatal("expected error for invalid enum value")
	}
}

func TestValidateArray(t *testing.T) {
	s := &schema.Schema{
		Type: "object",
		Properties: map[string]*schema.Schema{
			"messages": {
				Type:     "array",
				MinItems: schema.Int(1),
				Items: &schema.Schema{
					Type: "object",
					Properties: map[string]*schema.Schema{
						"role":    {Type: "string"},
						"content": {Type: "string"},
					},
					Required: []string{"role", "content"},
				},
			},
		},
		Required: []string{"messages"},
	}

	if err := schema.Validate(s, map[string]any{"messages": []any{}}); err == nil {
		t.Fatal("expected error for empty array (minItems=1)")
	}

	err := schema.Validate(s, map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "hi"},
		map[string]any{"role": "user"},
	}})
	if err == nil || !strings.Contains(err.Error(), "$.messages[1].content") {
		t.Fatalf("expected error at second item, got %v", err)
	}

	err = schema.Validate(s, map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "Apples"},
	}})
	if err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateJSON(t *testing.T) {
	if err := schema.ValidateJSON(login, []byte(`{"email":"user@test.com","password":"password"}`)); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	if err := schema.ValidateJSON(login, []byte(`{"email":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if err := schema.ValidateJSON(login, []byte(`{"email":"user@test.com","password":12345678}`)); err == nil {
		t.Fatal("expected error for numeric password")
	}
}
