package commsutil

import (
	"testing"
	"time"
)

const codecTestPrefix = "commsutil:codec_test"

func TestDecodePayload_Errors(t *testing.T) {
	var target map[string]string
	for _, data := range []string{"", "{invalid}", "[1,2]"} {
		if err := DecodePayload([]byte(data), &target); err == nil {
			t.Errorf("%s - DecodePayload(%q) expected error", codecTestPrefix, data)
		}
	}
}

func TestEncodePayload_Unserializable(t *testing.T) {
	if _, err := EncodePayload(make(chan int)); err == nil {
		t.Errorf("%s - expected error for channel payload", codecTestPrefix)
	}
}

func TestRespondJSON(t *testing.T) {
	nc, cleanup := startTestServer(t, 14251)
	defer cleanup()

	type reply struct {
		Module string `json:"module"`
		Count  int    `json:"count"`
	}

	sub, err := nc.Subscribe("console.test.echo", func(msg *Msg) {
		RespondJSON(msg, reply{Module: string(msg.Data), Count: 2})
	})
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", codecTestPrefix, err)
	}
	defer sub.Unsubscribe()

	msg, err := nc.Request("console.test.echo", []byte("billing"), 2*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", codecTestPrefix, err)
	}

	var got reply
	if err := DecodePayload(msg.Data, &got); err != nil {
		t.Fatalf("%s - decode failed: %v", codecTestPrefix, err)
	}
	if got.Module != "billing" || got.Count != 2 {
		t.Errorf("%s - reply = %+v", codecTestPrefix, got)
	}
}
