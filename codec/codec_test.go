package codec

import (
	"testing"

	"swap-messenger/message"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	cdc := GetCodec(CodecTypeJSON)
	if cdc.Type() != CodecTypeJSON {
		t.Fatalf("expect JSON codec, got type %d", cdc.Type())
	}

	env := &message.Envelope{
		Sender:   "0xaaa",
		Receiver: "0xbbb",
		Message:  `{"jsonrpc":"2.0","method":"ping","params":{},"id":"1"}`,
		ID:       "env-1",
	}

	data, err := cdc.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got message.Envelope
	if err := cdc.Decode(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != *env {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, env)
	}
}

func TestJSONCodecRejectsGarbage(t *testing.T) {
	cdc := GetCodec(CodecTypeJSON)
	var env message.Envelope
	if err := cdc.Decode([]byte("not json at all"), &env); err == nil {
		t.Fatal("expect an error decoding garbage")
	}
}
