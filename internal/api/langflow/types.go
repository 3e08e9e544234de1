// Package langflow provides the request types, endpoint resolution and HTTP
// client for the Langflow run API.
package langflow

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/transcript"
)

const (
	// RunPath is appended to the host URL, followed by the flow id.
	RunPath = "/api/v1/run/"

	ioTypeChat = "chat"
)

// RunRequest is the body of POST /api/v1/run/{flow_id}.
type RunRequest struct {
	InputValue  string            `json:"input_value"`
	OutputType  string            `json:"output_type"`
	InputType   string            `json:"input_type"`
	Tweaks      map[string]any    `json:"tweaks"`
	ChatHistory []transcript.Turn `json:"chat_history,omitempty"`
}

// NewRunRequest builds a chat-in/chat-out request. History is attached only
// when it is non-empty.
func NewRunRequest(input string, history []transcript.Turn) *RunRequest {
	req := &RunRequest{
		InputValue: input,
		OutputType: ioTypeChat,
		InputType:  ioTypeChat,
		Tweaks:     map[string]any{},
	}
	if len(history) > 0 {
		req.ChatHistory = history
	}
	return req
}

// ResolveEndpoint derives the run URL from cfg. An explicit api_endpoint wins;
// otherwise host_url and flow_id must both be set. ok is false when neither
// path yields a URL.
func ResolveEndpoint(cfg config.Langflow) (endpoint string, ok bool) {
	if cfg.APIEndpoint != "" {
		return cfg.APIEndpoint, true
	}
	if cfg.HostURL != "" && cfg.FlowID != "" {
		return strings.TrimSuffix(cfg.HostURL, "/") + RunPath + cfg.FlowID, true
	}
	return "", false
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	StatusText string
	Body       string // truncated response body, if it could be read
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("API request failed: %d %s: %s", e.StatusCode, e.StatusText, e.Body)
	}
	return fmt.Sprintf("API request failed: %d %s", e.StatusCode, e.StatusText)
}
