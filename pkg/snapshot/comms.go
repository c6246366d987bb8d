package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/pkg/commsutil"
	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const commsLogPrefix = "snapshot:comms"

// CommsSource requests a JSON snapshot over COMMS request/reply.
type CommsSource struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
}

// NewCommsSource creates a CommsSource. Empty subject uses commsutil.SubjectSnapshot;
// a zero timeout means 10s.
func NewCommsSource(nc *comms.Conn, subject string, timeout time.Duration) *CommsSource {
	if subject == "" {
		subject = commsutil.SubjectSnapshot
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommsSource{nc: nc, subject: subject, timeout: timeout}
}

// Describe implements Source.
func (s *CommsSource) Describe() string { return "comms:" + s.subject }

// Fetch implements Source.
func (s *CommsSource) Fetch(ctx context.Context) ([]endpoints.Module, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(reqCtx, s.subject, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - request %s: %w", commsLogPrefix, s.subject, err)
	}

	modules, err := Decode(msg.Data, FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", commsLogPrefix, s.subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d modules from %s", commsLogPrefix, len(modules), s.subject))
	return modules, nil
}
