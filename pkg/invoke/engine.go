// Package invoke performs single-shot HTTP calls against platform endpoints
// and turns every outcome, including transport failures, into a Result.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/endpoint-console/pkg/auth"
	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/events"
)

const (
	logPrefix      = "invoke:engine"
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes bounds how much of a response is kept for display.
	DefaultMaxBodyBytes = 4 << 20
)

// Request is one invocation. Module, Service and Path are optional and only
// used to label the emitted event.
type Request struct {
	URL    string
	Method endpoints.Method
	Body   []byte
	Token  string

	Module  string
	Service string
	Path    string
}

// Engine sends requests. It never retries and never returns a Go error.
type Engine struct {
	client       *http.Client
	publisher    events.EventPublisher
	maxBodyBytes int64
}

// NewEngineParams holds parameters for NewEngine.
type NewEngineParams struct {
	// Client is used as is when set; Timeout is ignored in that case.
	Client    *http.Client
	Timeout   time.Duration
	Publisher events.EventPublisher
	// MaxBodyBytes caps the response body kept; larger bodies are truncated
	// and flagged. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// NewEngine creates an Engine.
func NewEngine(params NewEngineParams) *Engine {
	client := params.Client
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	maxBody := params.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Engine{client: client, publisher: pub, maxBodyBytes: maxBody}
}

// Invoke performs req once and classifies the outcome.
func (e *Engine) Invoke(ctx context.Context, req *Request) *Result {
	start := time.Now()
	result := e.do(ctx, req)
	result.DurationMs = time.Since(start).Milliseconds()
	result.Auth = auth.Inspect(req.Token)

	slog.Info(fmt.Sprintf("%s - %s %s -> %s (%dms)", logPrefix, req.Method, req.URL, result.Outcome, result.DurationMs))
	e.publish(ctx, req, result)
	return result
}

func (e *Engine) do(ctx context.Context, req *Request) *Result {
	method, err := endpoints.ParseMethod(string(req.Method))
	if err != nil {
		return transportFailure(err)
	}

	var body io.Reader
	if method.AllowsBody() && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(method), req.URL, body)
	if err != nil {
		return transportFailure(err)
	}
	httpReq.Header.Set("Accept", "application/json, */*")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes+1))
	if err != nil {
		// The status arrived but the body did not.
		status := resp.StatusCode
		return &Result{
			StatusCode:   &status,
			Success:      false,
			Outcome:      OutcomeTransportError,
			Badge:        BadgeError,
			Payload:      MessagePayload(""),
			ErrorMessage: fmt.Sprintf("reading response body: %v", err),
		}
	}
	if int64(len(raw)) > e.maxBodyBytes {
		return truncatedResponse(resp.StatusCode, resp.Header.Get("Content-Type"), raw[:e.maxBodyBytes], e.maxBodyBytes)
	}
	return fromResponse(resp.StatusCode, resp.Status, resp.Header.Get("Content-Type"), raw)
}

// truncatedResponse keeps the status classification. The partial body is
// returned as text and never parsed.
func truncatedResponse(status int, contentType string, kept []byte, limit int64) *Result {
	outcome := Classify(status)
	return &Result{
		StatusCode:   &status,
		Success:      outcome == OutcomeSuccess,
		Outcome:      outcome,
		Badge:        outcome.Badge(),
		Payload:      MessagePayload(string(kept)),
		ContentType:  contentType,
		Truncated:    true,
		ErrorMessage: fmt.Sprintf("response body exceeds %d bytes; showing the first %d", limit, limit),
	}
}

func fromResponse(status int, statusText, contentType string, raw []byte) *Result {
	outcome := Classify(status)
	r := &Result{
		StatusCode:  &status,
		Success:     outcome == OutcomeSuccess,
		Outcome:     outcome,
		Badge:       outcome.Badge(),
		Payload:     ParsePayload(raw),
		ContentType: contentType,
	}
	if !r.Success {
		r.ErrorMessage = strings.TrimSpace(statusText)
		if r.ErrorMessage == "" {
			r.ErrorMessage = fmt.Sprintf("%d %s", status, http.StatusText(status))
		}
	}
	return r
}

func transportFailure(err error) *Result {
	return &Result{
		Success:      false,
		Outcome:      OutcomeTransportError,
		Badge:        BadgeError,
		ErrorMessage: err.Error(),
	}
}

// ParsePayload returns raw as a decoded JSON value, or {message: raw} when it
// is not JSON. Empty bodies become {message: ""}.
func ParsePayload(raw []byte) interface{} {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 {
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return MessagePayload(string(raw))
}

// MessagePayload wraps text as {message: text}.
func MessagePayload(text string) map[string]interface{} {
	return map[string]interface{}{"message": text}
}

func (e *Engine) publish(ctx context.Context, req *Request, r *Result) {
	event := &events.InvocationEvent{
		ID:         uuid.NewString(),
		Module:     req.Module,
		Service:    req.Service,
		Method:     string(req.Method),
		Path:       req.Path,
		URL:        req.URL,
		StatusCode: r.StatusCode,
		Outcome:    string(r.Outcome),
		Success:    r.Success,
		DurationMs: r.DurationMs,
		Error:      r.ErrorMessage,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.publisher.PublishInvocation(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish invocation event: %v", logPrefix, err))
	}
}
