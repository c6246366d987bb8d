package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/session"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes COMMS requests to console operations.
type Dispatcher struct {
	registries *registry.Holder
	sessions   *session.Manager
	probes     registry.HealthProbes
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registries *registry.Holder
	Sessions   *session.Manager
	Probes     registry.HealthProbes
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{
		registries: params.Registries,
		sessions:   params.Sessions,
		probes:     params.Probes,
	}
}

// Dispatch routes a request to the appropriate operation and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *ConsoleRequest) *ConsoleResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Ctx.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	switch req.Method {
	case "modules":
		return d.handleModules(req)
	case "discover":
		return d.handleDiscover(req)
	case "resolve":
		return d.handleResolve(req)
	case "invoke":
		return d.handleInvoke(ctx, req)
	case "stats":
		return d.handleStats(req)
	case "reload":
		return d.handleReload(ctx, req)
	case "health":
		return d.handleHealth(ctx, req)
	default:
		return &ConsoleResponse{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:      "METHOD_NOT_FOUND",
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

func (d *Dispatcher) handleModules(req *ConsoleRequest) *ConsoleResponse {
	var input ModulesParams
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse modules params", false)
	}
	reg, err := d.registries.Current()
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	if input.Module == "" {
		return &ConsoleResponse{ID: req.ID, Ok: true, Result: reg.AllModules()}
	}
	m, err := reg.Lookup(input.Module)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: m}
}

func (d *Dispatcher) handleDiscover(req *ConsoleRequest) *ConsoleResponse {
	var input registry.DiscoverInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse discover params", false)
	}
	reg, err := d.registries.Current()
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	result, err := reg.Discover(&input)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleResolve(req *ConsoleRequest) *ConsoleResponse {
	var input registry.ResolveInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse resolve params", false)
	}
	result, err := d.registries.Resolve(&input)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleInvoke(ctx context.Context, req *ConsoleRequest) *ConsoleResponse {
	var input InvokeParams
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse invoke params", false)
	}
	method, err := endpoints.ParseMethod(input.Method)
	if err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, err.Error(), false)
	}

	out, err := d.sessions.Call(ctx, session.Selection{
		Module:  input.Module,
		Service: input.Service,
		Path:    input.Path,
		Method:  method,
	}, input.Body)
	if errors.Is(err, session.ErrInvalidBody) {
		return errorResponse(req.ID, registry.CodeInvalidArgument, err.Error(), false)
	}
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	// A failed invocation is still a successful dispatch; the outcome is in the result.
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: out}
}

func (d *Dispatcher) handleStats(req *ConsoleRequest) *ConsoleResponse {
	reg, err := d.registries.Current()
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: reg.Stats()}
}

func (d *Dispatcher) handleReload(ctx context.Context, req *ConsoleRequest) *ConsoleResponse {
	reg, err := d.registries.Reload(ctx)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: reg.Stats()}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *ConsoleRequest) *ConsoleResponse {
	result := d.registries.Health(ctx, d.probes)
	return &ConsoleResponse{ID: req.ID, Ok: true, Result: result}
}

// --- helpers ---

// decodeParams treats missing params as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errorResponse(id, code, message string, retryable bool) *ConsoleResponse {
	return &ConsoleResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func registryErrorToResponse(id string, err error) *ConsoleResponse {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		retryable := regErr.Code == registry.CodeInternalError || regErr.Code == registry.CodeRegistryUnavailable
		return &ConsoleResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      regErr.Code,
				Message:   regErr.Message,
				Details:   regErr.Details,
				Retryable: retryable,
			},
		}
	}
	return errorResponse(id, registry.CodeInternalError, err.Error(), true)
}
