package handler

import (
	"errors"
	"net/http"

	"github.com/stevemurr/grocery-chat-server/assistant"
	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/schema"
	"github.com/stevemurr/grocery-chat-server/service"
)

// ResultCode is the machine-readable outcome sent to clients.
type ResultCode string

const (
	InvalidCredentials ResultCode = "INVALID_CREDENTIALS"
	InvalidSubmission  ResultCode = "INVALID_SUBMISSION"
	UnknownError       ResultCode = "UNKNOWN_ERROR"
	RateLimited        ResultCode = "RATE_LIMIT_EXCEEDED"

	UserCreated       ResultCode = "USER_CREATED"
	UserAlreadyExists ResultCode = "USER_ALREADY_EXISTS"
	UserLoggedIn      ResultCode = "USER_LOGGED_IN"
	UserUpdated       ResultCode = "USER_UPDATED"

	ProfileCreated ResultCode = "PROFILE_CREATED"
	ProfileUpdated ResultCode = "PROFILE_UPDATED"

	ChatCreated ResultCode = "CHAT_CREATED"
	ChatUpdated ResultCode = "CHAT_UPDATED"
)

// Message returns the human-readable text for c, or "" if it has none.
func (c ResultCode) Message() string {
	switch c {
	case InvalidCredentials:
		return "Invalid credentials!"
	case InvalidSubmission:
		return "Invalid submission, please try again!"
	case UserAlreadyExists:
		return "User already exists, please log in!"
	case UserCreated:
		return "User created, welcome!"
	case UserUpdated:
		return "User settings updated!"
	case ProfileCreated:
		return "Profile created"
	case UnknownError:
		return "Something went wrong, please try again!"
	case UserLoggedIn:
		return "Logged in!"
	case RateLimited:
		return "Rate limit exceeded, come back tomorrow!"
	}
	return ""
}

// Result is the body of responses that carry only an outcome.
type Result struct {
	Type       string              `json:"type,omitempty"`
	ResultCode ResultCode          `json:"resultCode"`
	Message    string              `json:"message,omitempty"`
	Errors     []schema.FieldError `json:"errors,omitempty"`
}

func writeResult(w http.ResponseWriter, status int, code ResultCode) {
	writeJSON(w, status, Result{ResultCode: code, Message: code.Message()})
}

func writeError(w http.ResponseWriter, status int, code ResultCode) {
	writeJSON(w, status, Result{Type: "error", ResultCode: code, Message: code.Message()})
}

// classify maps a service error to a status and result code. Missing and
// foreign records are reported identically.
func classify(err error) (int, ResultCode) {
	switch {
	case errors.Is(err, record.ErrNotFound),
		errors.Is(err, record.ErrUnauthorized):
		return http.StatusBadRequest, InvalidCredentials
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, InvalidCredentials
	case errors.Is(err, service.ErrEmailInUse):
		return http.StatusBadRequest, UserAlreadyExists
	case errors.Is(err, service.ErrEmptyChat):
		return http.StatusBadRequest, InvalidSubmission
	case errors.Is(err, assistant.ErrDisabled):
		return http.StatusServiceUnavailable, UnknownError
	}
	return http.StatusInternalServerError, UnknownError
}

// fail writes the response for err. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request denied", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code)
}
