package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// InvocationSubject is the global invocation subject and the prefix of
	// the per-service subjects (e.g. from INVOCATION_EVENT_SUBJECT).
	InvocationSubject string
}

// CommsPublisher publishes console events to COMMS subjects.
type CommsPublisher struct {
	nc                *comms.Conn
	invocationSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectInvocationEvent
	if opts != nil && opts.InvocationSubject != "" {
		subject = opts.InvocationSubject
	}
	return &CommsPublisher{nc: nc, invocationSubject: subject}
}

// SnapshotLoadedSubject returns the subject snapshot load events go to.
func (p *CommsPublisher) SnapshotLoadedSubject() string {
	return p.invocationSubject + ".snapshot"
}

// PublishInvocation publishes to the per-service subject and the global subject.
func (p *CommsPublisher) PublishInvocation(_ context.Context, event *InvocationEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	if event.Module != "" && event.Service != "" {
		granular := commsutil.BuildInvocationSubject(p.invocationSubject, event.Module, event.Service)
		if err := p.nc.Publish(granular, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granular, err))
			return err
		}
	}

	if err := p.nc.Publish(p.invocationSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.invocationSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published invocation %s %s", commsPublisherLogPrefix, event.Method, event.URL))
	return nil
}

// PublishSnapshotLoaded publishes to SnapshotLoadedSubject.
func (p *CommsPublisher) PublishSnapshotLoaded(_ context.Context, event *SnapshotLoadedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	subject := p.SnapshotLoadedSubject()
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}
	return nil
}
