// Package dispatcher routes incoming COMMS messages to console operations.
package dispatcher

import "encoding/json"

// ConsoleRequest is the JSON envelope for incoming COMMS console requests.
type ConsoleRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// ConsoleResponse is the JSON envelope for COMMS console responses.
type ConsoleResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	// TimeoutMs shortens the per-request deadline; it never extends it.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// ModulesParams selects one module; empty means all.
type ModulesParams struct {
	Module string `json:"module,omitempty"`
}

// InvokeParams is a selection plus an optional JSON body.
type InvokeParams struct {
	Module  string          `json:"module"`
	Service string          `json:"service"`
	Path    string          `json:"path"`
	Method  string          `json:"method"`
	Body    json.RawMessage `json:"body,omitempty"`
}
