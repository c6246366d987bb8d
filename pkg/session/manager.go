package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/endpoint-console/pkg/auth"
	"github.com/morezero/endpoint-console/pkg/invoke"
	"github.com/morezero/endpoint-console/pkg/registry"
)

const managerLogPrefix = "session:manager"

// ErrSessionNotFound is returned for unknown view ids.
var ErrSessionNotFound = errors.New("session not found")

// RegistrySource hands out the registry currently in service. *registry.Holder implements it.
type RegistrySource interface {
	Current() (*registry.Registry, error)
}

// Manager owns independent views. Each view stays bound to the registry
// that was current when it was created.
type Manager struct {
	registries RegistrySource
	invoker    Invoker
	auth       auth.Provider
	base       context.Context

	mu    sync.RWMutex
	views map[string]*View
}

// NewManagerParams holds parameters for NewManager.
type NewManagerParams struct {
	Registries RegistrySource
	Invoker    Invoker
	Auth       auth.Provider
	// Ctx bounds every in-flight invocation; cancel it on shutdown.
	Ctx context.Context
}

// NewManager creates a Manager.
func NewManager(params NewManagerParams) *Manager {
	base := params.Ctx
	if base == nil {
		base = context.Background()
	}
	prov := params.Auth
	if prov == nil {
		prov = auth.None{}
	}
	return &Manager{
		registries: params.Registries,
		invoker:    params.Invoker,
		auth:       prov,
		base:       base,
		views:      make(map[string]*View),
	}
}

// Create starts a new idle view against the current registry.
func (m *Manager) Create() (*View, error) {
	reg, err := m.registries.Current()
	if err != nil {
		return nil, err
	}
	v := NewView(NewViewParams{
		ID:       uuid.NewString(),
		Resolver: reg,
		Invoker:  m.invoker,
		Auth:     m.auth,
		Ctx:      m.base,
	})

	m.mu.Lock()
	m.views[v.ID()] = v
	m.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - created session %s", managerLogPrefix, v.ID()))
	return v, nil
}

// Get returns a view by id.
func (m *Manager) Get(id string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v, nil
}

// List returns snapshots of every view, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	views := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].created.Equal(views[j].created) {
			return views[i].id < views[j].id
		}
		return views[i].created.Before(views[j].created)
	})
	out := make([]Snapshot, len(views))
	for i, v := range views {
		out[i] = v.Snapshot()
	}
	return out
}

// Close forgets a view. Its in-flight call, if any, finishes unobserved.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.views[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.views, id)
	slog.Info(fmt.Sprintf("%s - closed session %s", managerLogPrefix, id))
	return nil
}

// CallOutput is the result of a stateless Call.
type CallOutput struct {
	Target *registry.ResolveOutput `json:"target"`
	Result *invoke.Result          `json:"result"`
}

// Call resolves sel against the current registry and invokes it once,
// synchronously, without creating a view.
func (m *Manager) Call(ctx context.Context, sel Selection, body []byte) (*CallOutput, error) {
	if len(body) > 0 && !json.Valid(body) {
		return nil, ErrInvalidBody
	}
	reg, err := m.registries.Current()
	if err != nil {
		return nil, err
	}
	target, err := reg.Resolve(&registry.ResolveInput{
		Method:  sel.Method,
		Module:  sel.Module,
		Service: sel.Service,
		Path:    sel.Path,
	})
	if err != nil {
		return nil, err
	}

	result := m.invoker.Invoke(ctx, &invoke.Request{
		URL:     target.URL,
		Method:  target.Method,
		Body:    body,
		Token:   auth.Acquire(ctx, m.auth),
		Module:  target.Module,
		Service: target.Service,
		Path:    target.Path,
	})
	return &CallOutput{Target: target, Result: result}, nil
}
