package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stevemurr/grocery-chat-server/schema"
	"github.com/stevemurr/grocery-chat-server/service"
)

const maxBodyBytes = 1 << 20

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var credentialsSchema = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"email":    {Type: "string", Format: schema.FormatEmail},
		"password": {Type: "string", MinLength: schema.Int(6)},
		"path":     {Type: "string"},
	},
	Required: []string{"email", "password"},
}

type profileRef struct {
	ProfileID string `json:"profileId"`
}

var profileRefSchema = &schema.Schema{
	Type:       "object",
	Properties: map[string]*schema.Schema{"profileId": {Type: "string", MinLength: schema.Int(1)}},
	Required:   []string{"profileId"},
}

type newProfile struct {
	ProfileName string `json:"profileName"`
}

var newProfileSchema = &schema.Schema{
	Type:       "object",
	Properties: map[string]*schema.Schema{"profileName": {Type: "string", MinLength: schema.Int(1)}},
	Required:   []string{"profileName"},
}

var preferencesSchema = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"lifestyle": {Type: "string"},
		"allergen":  {Type: "string"},
		"other":     {Type: "string"},
	},
	Required: []string{"lifestyle", "allergen", "other"},
}

type newChat struct {
	Messages []service.Message `json:"messages"`
}

var messageSchema = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"role":    {Type: "string", Enum: []any{"user", "assistant", "system"}},
		"content": {Type: "string"},
	},
	Required: []string{"role", "content"},
}

var newChatSchema = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"messages": {Type: "array", MinItems: schema.Int(1), Items: messageSchema},
	},
	Required: []string{"messages"},
}

type chatMessage struct {
	Content string `json:"content"`
}

var chatMessageSchema = &schema.Schema{
	Type:       "object",
	Properties: map[string]*schema.Schema{"content": {Type: "string", MinLength: schema.Int(1)}},
	Required:   []string{"content"},
}

type sampleMessage struct {
	Content     string              `json:"content"`
	Preferences service.Preferences `json:"preferences"`
}

var sampleMessageSchema = &schema.Schema{
	Type: "object",
	Properties: map[string]*schema.Schema{
		"content": {Type: "string", MinLength: schema.Int(1)},
		"preferences": {
			Type: "object",
			Properties: map[string]*schema.Schema{
				"lifestyle": {Type: "string"},
				"allergen":  {Type: "string"},
				"other":     {Type: "string"},
			},
		},
	},
	Required: []string{"content", "preferences"},
}

var emailSchema = &schema.Schema{Type: "string", Format: schema.FormatEmail}

// decode reads the body, validates it against s and unmarshals it into v.
// On failure it writes a 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, s *schema.Schema, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeInvalid(w, schema.Errors{{Path: "$", Message: err.Error()}})
		return false
	}
	if err := schema.ValidateJSON(s, body); err != nil {
		var errs schema.Errors
		if !errors.As(err, &errs) {
			errs = schema.Errors{{Path: "$", Message: err.Error()}}
		}
		writeInvalid(w, errs)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeInvalid(w, schema.Errors{{Path: "$", Message: err.Error()}})
		return false
	}
	return true
}

func writeInvalid(w http.ResponseWriter, errs schema.Errors) {
	writeJSON(w, http.StatusBadRequest, Result{
		Type:       "error",
		ResultCode: InvalidSubmission,
		Message:    InvalidSubmission.Message(),
		Errors:     errs,
	})
}
