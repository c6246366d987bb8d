package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/events"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

const holderTestPrefix = "registry:holder_test"

// switchSource returns modules until err is set.
type switchSource struct {
	modules []endpoints.Module
	err     error
}

func (s *switchSource) Describe() string { return "switch" }
func (s *switchSource) Fetch(context.Context) ([]endpoints.Module, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.modules, nil
}

func TestHolder_BeforeFirstLoad(t *testing.T) {
	h := NewHolder(NewHolderParams{Source: &switchSource{err: errors.New("down")}})

	if _, err := h.Current(); ErrorCode(err) != CodeRegistryUnavailable {
		t.Errorf("%s - Current before load err = %v", holderTestPrefix, err)
	}
	if _, err := h.Reload(context.Background()); err == nil {
		t.Fatalf("%s - expected reload error", holderTestPrefix)
	}
	_, err := h.Resolve(&ResolveInput{Method: endpoints.MethodGet, Module: "billing", Service: "invoices", Path: "/v1/invoices"})
	if ErrorCode(err) != CodeRegistryUnavailable {
		t.Errorf("%s - Resolve without snapshot err = %v", holderTestPrefix, err)
	}

	health := h.Health(context.Background(), HealthProbes{})
	if health.Status != "unhealthy" || health.Checks.Snapshot || health.Error == "" {
		t.Errorf("%s - health = %+v", holderTestPrefix, health)
	}
}

func TestHolder_ReloadKeepsPreviousOnFailure(t *testing.T) {
	var loaded []*events.SnapshotLoadedEvent
	src := &switchSource{modules: testModules()}
	h := NewHolder(NewHolderParams{
		Source: src,
		Publisher: &events.CallbackPublisher{OnSnapshotLoaded: func(_ context.Context, e *events.SnapshotLoadedEvent) error {
			loaded = append(loaded, e)
			return errors.New("publish failures are ignored")
		}},
	})

	first, err := h.Reload(context.Background())
	if err != nil {
		t.Fatalf("%s - Reload: %v", holderTestPrefix, err)
	}

	src.err = errors.New("snapshot service down")
	if _, err := h.Reload(context.Background()); ErrorCode(err) != CodeRegistryUnavailable {
		t.Fatalf("%s - second reload err = %v", holderTestPrefix, err)
	}

	cur, err := h.Current()
	if err != nil || cur != first {
		t.Errorf("%s - previous registry should stay in service", holderTestPrefix)
	}
	out, err := h.Resolve(&ResolveInput{Method: endpoints.MethodGet, Module: "billing", Service: "invoices", Path: "/v1/invoices"})
	if err != nil || out.URL != "http://localhost:8081/v1/invoices" {
		t.Errorf("%s - resolve after failed reload = %+v, %v", holderTestPrefix, out, err)
	}

	health := h.Health(context.Background(), HealthProbes{})
	if health.Status != "degraded" || !health.Checks.Snapshot {
		t.Errorf("%s - health = %+v", holderTestPrefix, health)
	}

	if len(loaded) != 2 || !loaded[0].Ok || loaded[0].Routes != 5 || loaded[1].Ok || loaded[1].Error == "" {
		t.Errorf("%s - events = %+v", holderTestPrefix, loaded)
	}

	src.err = nil
	if _, err := h.Reload(context.Background()); err != nil || h.LastError() != nil {
		t.Errorf("%s - recovery reload err = %v last = %v", holderTestPrefix, err, h.LastError())
	}
}

func TestHolder_Initial(t *testing.T) {
	reg := mustNew(t, testModules())
	h := NewHolder(NewHolderParams{Initial: reg})

	if cur, err := h.Current(); err != nil || cur != reg {
		t.Errorf("%s - Current = %v, %v", holderTestPrefix, cur, err)
	}
	if _, err := h.Reload(context.Background()); ErrorCode(err) != CodeRegistryUnavailable {
		t.Errorf("%s - reload without source err = %v", holderTestPrefix, err)
	}
}

func TestHolder_HealthProbes(t *testing.T) {
	h := NewHolder(NewHolderParams{Source: &snapshot.StaticSource{Modules: testModules()}})
	if _, err := h.Reload(context.Background()); err != nil {
		t.Fatalf("%s - Reload: %v", holderTestPrefix, err)
	}

	out := h.Health(context.Background(), HealthProbes{})
	if out.Status != "healthy" || out.Checks.COMMS != nil || out.Checks.Database != nil {
		t.Errorf("%s - no probes health = %+v", holderTestPrefix, out)
	}
	if _, err := time.Parse(time.RFC3339, out.Timestamp); err != nil {
		t.Errorf("%s - Timestamp not RFC3339: %v", holderTestPrefix, err)
	}

	out = h.Health(context.Background(), HealthProbes{
		Comms:    func() bool { return true },
		Database: func(context.Context) error { return errors.New("no db") },
	})
	if out.Status != "degraded" || !*out.Checks.COMMS || *out.Checks.Database {
		t.Errorf("%s - probe health = %+v", holderTestPrefix, out)
	}
}
