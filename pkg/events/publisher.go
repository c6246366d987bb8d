package events

import "context"

// EventPublisher is the interface for publishing console events.
type EventPublisher interface {
	PublishInvocation(ctx context.Context, event *InvocationEvent) error
	PublishSnapshotLoaded(ctx context.Context, event *SnapshotLoadedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishInvocation is a no-op.
func (p *NoOpPublisher) PublishInvocation(_ context.Context, _ *InvocationEvent) error {
	return nil
}

// PublishSnapshotLoaded is a no-op.
func (p *NoOpPublisher) PublishSnapshotLoaded(_ context.Context, _ *SnapshotLoadedEvent) error {
	return nil
}

// CallbackPublisher forwards events to callbacks (for testing). Nil callbacks are skipped.
type CallbackPublisher struct {
	OnInvocation     func(ctx context.Context, event *InvocationEvent) error
	OnSnapshotLoaded func(ctx context.Context, event *SnapshotLoadedEvent) error
}

// PublishInvocation calls OnInvocation.
func (p *CallbackPublisher) PublishInvocation(ctx context.Context, event *InvocationEvent) error {
	if p.OnInvocation == nil {
		return nil
	}
	return p.OnInvocation(ctx, event)
}

// PublishSnapshotLoaded calls OnSnapshotLoaded.
func (p *CallbackPublisher) PublishSnapshotLoaded(ctx context.Context, event *SnapshotLoadedEvent) error {
	if p.OnSnapshotLoaded == nil {
		return nil
	}
	return p.OnSnapshotLoaded(ctx, event)
}
