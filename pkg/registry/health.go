package registry

import (
	"context"
	"time"
)

// HealthProbes are optional dependency checks. A nil probe is reported as not configured.
type HealthProbes struct {
	Comms    func() bool
	Database func(ctx context.Context) error
}

// Health reports whether a snapshot is in service and whether configured
// dependencies respond. A stale snapshot after a failed reload is "degraded".
func (h *Holder) Health(ctx context.Context, probes HealthProbes) *HealthOutput {
	_, curErr := h.Current()
	snapshotOk := curErr == nil
	lastErr := h.LastError()

	checks := HealthChecks{Snapshot: snapshotOk}
	depsOk := true
	if probes.Comms != nil {
		ok := probes.Comms()
		checks.COMMS = &ok
		depsOk = depsOk && ok
	}
	if probes.Database != nil {
		ok := probes.Database(ctx) == nil
		checks.Database = &ok
		depsOk = depsOk && ok
	}

	status := "healthy"
	switch {
	case !snapshotOk:
		status = "unhealthy"
	case lastErr != nil || !depsOk:
		status = "degraded"
	}

	out := &HealthOutput{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if lastErr != nil {
		out.Error = lastErr.Error()
	} else if curErr != nil {
		out.Error = curErr.Error()
	}
	return out
}
