package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"communityxp/core"
)

// InteractionResult mirrors the POST /interactions response.
type InteractionResult struct {
	Interaction core.Interaction `json:"interaction"`
	Scored      bool             `json:"scored"`
	User        *core.User       `json:"user,omitempty"`
	Save        struct {
		Completed []string `json:"completed"`
		Failed    string   `json:"failed,omitempty"`
	} `json:"save"`
	Error string `json:"error,omitempty"`
}

// ChatResult mirrors the POST /rocket/messages response.
type ChatResult struct {
	Kind     string          `json:"kind"`
	Message  *core.Message   `json:"message,omitempty"`
	Response *ChatResponse   `json:"response,omitempty"`
	Added    []core.Reaction `json:"added,omitempty"`
	Removed  []core.Reaction `json:"removed,omitempty"`
}

// ChatResponse is the reply a chat command produced.
type ChatResponse struct {
	Text        string `json:"msg"`
	Attachments []struct {
		Text string `json:"text"`
	} `json:"attachments,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
