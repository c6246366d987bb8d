package commsutil

import (
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// RespondJSON encodes v and replies to msg. Failures are logged, not returned,
// since a request handler has nobody left to report them to.
func RespondJSON(msg *comms.Msg, v interface{}) {
	data, err := EncodePayload(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode reply on %s: %v", codecLogPrefix, msg.Subject, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - reply on %s: %v", codecLogPrefix, msg.Subject, err))
	}
}
