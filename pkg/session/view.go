// Package session tracks per-panel console state: the selected route, the
// in-flight invocation and the last result, with stale responses discarded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/endpoint-console/pkg/auth"
	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/invoke"
	"github.com/morezero/endpoint-console/pkg/registry"
)

const logPrefix = "session:view"

// State of a View.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateResolved State = "resolved"
)

var (
	// ErrNoSelection is returned by Submit when no route is selected.
	ErrNoSelection = errors.New("no route selected")
	// ErrInvalidBody is returned by Submit when the body is not valid JSON.
	ErrInvalidBody = errors.New("request body is not valid JSON")
)

// Resolver turns a selection into a target URL. *registry.Registry implements it.
type Resolver interface {
	Resolve(input *registry.ResolveInput) (*registry.ResolveOutput, error)
}

// Invoker performs one call. *invoke.Engine implements it.
type Invoker interface {
	Invoke(ctx context.Context, req *invoke.Request) *invoke.Result
}

// Selection identifies a route the user picked.
type Selection struct {
	Module  string           `json:"module"`
	Service string           `json:"service"`
	Path    string           `json:"path"`
	Method  endpoints.Method `json:"method"`
}

// View is one independent console panel.
type View struct {
	id       string
	created  time.Time
	resolver Resolver
	invoker  Invoker
	auth     auth.Provider
	// base is used for invocations so they outlive the caller's request.
	base context.Context

	mu         sync.Mutex
	state      State
	selection  *Selection
	target     *registry.ResolveOutput
	resolveErr error
	result     *invoke.Result
	lastBody   json.RawMessage
	latest     uint64
	updated    time.Time
}

// NewViewParams holds parameters for NewView.
type NewViewParams struct {
	ID       string
	Resolver Resolver
	Invoker  Invoker
	Auth     auth.Provider
	Ctx      context.Context
}

// NewView creates an idle view.
func NewView(params NewViewParams) *View {
	base := params.Ctx
	if base == nil {
		base = context.Background()
	}
	prov := params.Auth
	if prov == nil {
		prov = auth.None{}
	}
	now := time.Now().UTC()
	return &View{
		id:       params.ID,
		created:  now,
		resolver: params.Resolver,
		invoker:  params.Invoker,
		auth:     prov,
		base:     base,
		state:    StateIdle,
		updated:  now,
	}
}

// ID returns the view id.
func (v *View) ID() string { return v.id }

// Select resets the view to Idle and resolves sel. A resolution failure
// leaves the view Idle with the error recorded and is also returned.
// GET routes are invoked immediately and the returned Pending tracks that
// call; other methods wait for Submit and Pending is nil.
func (v *View) Select(_ context.Context, sel Selection) (*Pending, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Anything in flight for the previous selection becomes stale.
	v.latest++
	v.state = StateIdle
	v.result = nil
	v.lastBody = nil
	v.target = nil
	v.resolveErr = nil
	selCopy := sel
	v.selection = &selCopy
	v.updated = time.Now().UTC()

	target, err := v.resolver.Resolve(&registry.ResolveInput{
		Method:  sel.Method,
		Module:  sel.Module,
		Service: sel.Service,
		Path:    sel.Path,
	})
	if err != nil {
		slog.Info(fmt.Sprintf("%s - %s: selection %s %s/%s%s is inert: %v", logPrefix, v.id, sel.Method, sel.Module, sel.Service, sel.Path, err))
		v.resolveErr = err
		return nil, err
	}
	v.target = target

	if target.Method != endpoints.MethodGet {
		return nil, nil
	}
	return v.startLocked(nil), nil
}

// Submit validates body as JSON (empty is allowed) and invokes the selected route.
func (v *View) Submit(_ context.Context, body []byte) (*Pending, error) {
	if len(body) > 0 && !json.Valid(body) {
		return nil, ErrInvalidBody
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.target == nil {
		return nil, ErrNoSelection
	}
	v.latest++
	return v.startLocked(body), nil
}

// startLocked moves the view to Loading and launches the call. v.mu must be held.
func (v *View) startLocked(body []byte) *Pending {
	token := v.latest
	target := *v.target

	v.state = StateLoading
	v.result = nil
	v.lastBody = nil
	if len(body) > 0 {
		v.lastBody = append(json.RawMessage(nil), body...)
	}
	v.updated = time.Now().UTC()

	p := &Pending{Token: token, done: make(chan struct{})}
	go v.run(p, target, body)
	return p
}

func (v *View) run(p *Pending, target registry.ResolveOutput, body []byte) {
	req := &invoke.Request{
		URL:     target.URL,
		Method:  target.Method,
		Body:    body,
		Token:   auth.Acquire(v.base, v.auth),
		Module:  target.Module,
		Service: target.Service,
		Path:    target.Path,
	}
	result := v.invoker.Invoke(v.base, req)

	v.mu.Lock()
	if p.Token == v.latest {
		v.state = StateResolved
		v.result = result
		v.updated = time.Now().UTC()
		p.applied = true
	} else {
		slog.Debug(fmt.Sprintf("%s - %s: discarding stale result for token %d (latest %d)", logPrefix, v.id, p.Token, v.latest))
	}
	v.mu.Unlock()

	p.result = result
	close(p.done)
}

// Snapshot returns a copy of the view state for rendering.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		ID:        v.id,
		State:     v.state,
		Token:     v.latest,
		Created:   v.created.Format(time.RFC3339),
		UpdatedAt: v.updated.Format(time.RFC3339Nano),
		Result:    v.result,
		Body:      v.lastBody,
	}
	if v.selection != nil {
		sel := *v.selection
		s.Selection = &sel
	}
	if v.target != nil {
		t := *v.target
		s.Target = &t
	}
	if v.resolveErr != nil {
		var regErr *registry.RegistryError
		if errors.As(v.resolveErr, &regErr) {
			s.ResolveError = regErr
		} else {
			s.ResolveError = &registry.RegistryError{Code: registry.CodeInternalError, Message: v.resolveErr.Error()}
		}
	}
	return s
}

// Snapshot is a point-in-time copy of a View. Result is shared with the view
// but never mutated after it is stored.
type Snapshot struct {
	ID           string                  `json:"id"`
	State        State                   `json:"state"`
	Selection    *Selection              `json:"selection,omitempty"`
	Target       *registry.ResolveOutput `json:"target,omitempty"`
	ResolveError *registry.RegistryError `json:"resolveError,omitempty"`
	Body         json.RawMessage         `json:"body,omitempty"`
	Result       *invoke.Result          `json:"result,omitempty"`
	Token        uint64                  `json:"token"`
	Created      string                  `json:"created"`
	UpdatedAt    string                  `json:"updatedAt"`
}

// Pending tracks one started invocation.
type Pending struct {
	Token uint64

	done    chan struct{}
	result  *invoke.Result
	applied bool
}

// Wait blocks until the invocation finishes or ctx ends. The bool reports
// whether the result was applied to the view (false when it went stale).
func (p *Pending) Wait(ctx context.Context) (*invoke.Result, bool, error) {
	select {
	case <-p.done:
		return p.result, p.applied, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Done is closed when the invocation finishes.
func (p *Pending) Done() <-chan struct{} { return p.done }
