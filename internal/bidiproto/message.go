// Package bidiproto implements the WebDriver BiDi wire protocol: the three
// inbound/outbound JSON shapes, the closed error-kind taxonomy, and the
// parameter validation helpers shared by every command processor.
package bidiproto

import (
	"encoding/json"
	"fmt"
)

// Command is an incoming BiDi command. Params is left as raw JSON so each
// processor can unmarshal into its own parameter type.
type Command struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Channel string          `json:"goog:channel,omitempty"`
}

// SuccessResponse is the reply shape for a command that completed normally.
type SuccessResponse struct {
	Type    string      `json:"type"`
	ID      int64       `json:"id"`
	Result  interface{} `json:"result"`
	Channel string      `json:"goog:channel,omitempty"`
}

// NewSuccessResponse builds a SuccessResponse for the given command id.
func NewSuccessResponse(id int64, result interface{}, channel string) *SuccessResponse {
	return &SuccessResponse{
		Type:    "success",
		ID:      id,
		Result:  result,
		Channel: channel,
	}
}

// ErrorResponse is the reply shape for a command that failed. ID is nil,
// and so omitted from the JSON, when the failure occurred before
// the command's id could be parsed; callers should use NewParseErrorResponse
// for that case instead.
type ErrorResponse struct {
	Type       string    `json:"type"`
	ID         *int64    `json:"id,omitempty"`
	ErrorKind  ErrorKind `json:"error"`
	Message    string    `json:"message"`
	Stacktrace string    `json:"stacktrace,omitempty"`
	Channel    string    `json:"goog:channel,omitempty"`
}

// NewErrorResponse builds an ErrorResponse for the given command id.
func NewErrorResponse(id int64, kind ErrorKind, message string, channel string) *ErrorResponse {
	return &ErrorResponse{
		Type:      "error",
		ID:        &id,
		ErrorKind: kind,
		Message:   message,
		Channel:   channel,
	}
}

// NewParseErrorResponse builds an ErrorResponse with no id, for commands
// that failed to parse before an id could be extracted.
func NewParseErrorResponse(kind ErrorKind, message string) *ErrorResponse {
	return &ErrorResponse{
		Type:      "error",
		ErrorKind: kind,
		Message:   message,
	}
}

// Event is an outgoing BiDi event notification.
type Event struct {
	Type    string      `json:"type"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Channel string      `json:"goog:channel,omitempty"`
}

// NewEvent builds an Event for method with the given params and channel.
func NewEvent(method string, params interface{}, channel string) *Event {
	return &Event{
		Type:    "event",
		Method:  method,
		Params:  params,
		Channel: channel,
	}
}

// ParseCommand unmarshals a raw inbound frame into a Command. A shape error
// here is always reported as invalid argument by the caller, never fatal to
// the session.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("malformed command: %w", err)
	}
	if cmd.Method == "" {
		return nil, fmt.Errorf("command missing method")
	}
	return &cmd, nil
}
