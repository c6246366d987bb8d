package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/pkg/commsutil"
	"github.com/morezero/endpoint-console/pkg/dispatcher"
)

const commsLogPrefix = "server:comms"

// handleCommsRequest answers console requests arriving on the COMMS subject.
func (s *Server) handleCommsRequest(ctx context.Context) comms.MsgHandler {
	requestTimeout := s.cfg.RequestTimeout
	return func(msg *comms.Msg) {
		var req dispatcher.ConsoleRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", commsLogPrefix, err))
			commsutil.RespondJSON(msg, &dispatcher.ConsoleResponse{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			return
		}

		// Per-request context; a shorter client timeout wins.
		timeout := requestTimeout
		if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
			if client := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; client < timeout {
				timeout = client
			}
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp := s.disp.Dispatch(reqCtx, &req)
		commsutil.RespondJSON(msg, resp)
	}
}
