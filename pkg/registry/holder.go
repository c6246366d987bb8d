package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/endpoint-console/pkg/events"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

const holderLogPrefix = "registry:holder"

// Holder owns the current Registry and swaps it atomically on reload.
// A Registry handed out by Current never changes; a reload only affects
// callers that ask again.
type Holder struct {
	source    snapshot.Source
	publisher events.EventPublisher

	current atomic.Pointer[Registry]
	reload  sync.Mutex

	errMu   sync.RWMutex
	lastErr error
}

// NewHolderParams holds parameters for NewHolder.
type NewHolderParams struct {
	Source    snapshot.Source
	Publisher events.EventPublisher
	// Initial, when set, is served until the first reload.
	Initial *Registry
}

// NewHolder creates a Holder. Call Reload to load the first snapshot unless Initial is set.
func NewHolder(params NewHolderParams) *Holder {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	h := &Holder{source: params.Source, publisher: pub}
	if params.Initial != nil {
		h.current.Store(params.Initial)
	}
	return h
}

// Reload fetches the snapshot again. On failure the previous registry, if
// any, stays in service and the error is remembered for health reporting.
func (h *Holder) Reload(ctx context.Context) (*Registry, error) {
	h.reload.Lock()
	defer h.reload.Unlock()

	if h.source == nil {
		err := NewRegistryError(CodeRegistryUnavailable, "no snapshot source configured")
		h.setLastErr(err)
		return nil, err
	}

	reg, err := Load(ctx, h.source)
	event := &events.SnapshotLoadedEvent{
		Source:    h.source.Describe(),
		Ok:        err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%s - snapshot load failed: %v", holderLogPrefix, err))
		event.Error = err.Error()
		h.setLastErr(err)
	} else {
		stats := reg.Stats()
		event.Modules, event.Services, event.Routes = stats.Modules, stats.Services, stats.Routes
		h.current.Store(reg)
		h.setLastErr(nil)
	}

	if pubErr := h.publisher.PublishSnapshotLoaded(ctx, event); pubErr != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish snapshot event: %v", holderLogPrefix, pubErr))
	}
	return reg, err
}

// Current returns the registry in service, or REGISTRY_UNAVAILABLE if no
// snapshot has loaded yet.
func (h *Holder) Current() (*Registry, error) {
	if reg := h.current.Load(); reg != nil {
		return reg, nil
	}
	msg := "registry snapshot not loaded"
	if err := h.LastError(); err != nil {
		msg = err.Error()
	}
	return nil, NewRegistryError(CodeRegistryUnavailable, msg)
}

// LastError is the error from the most recent reload, nil after a success.
func (h *Holder) LastError() error {
	h.errMu.RLock()
	defer h.errMu.RUnlock()
	return h.lastErr
}

func (h *Holder) setLastErr(err error) {
	h.errMu.Lock()
	h.lastErr = err
	h.errMu.Unlock()
}

// Resolve resolves against the current registry.
func (h *Holder) Resolve(input *ResolveInput) (*ResolveOutput, error) {
	reg, err := h.Current()
	if err != nil {
		return nil, err
	}
	return reg.Resolve(input)
}
