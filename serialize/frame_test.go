package serialize

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kaidoh/fluentforward/chunk"
)

func TestAppendEntryRoundTrip(t *testing.T) {
	record, err := EncodeMap(map[string]any{"msg": "hello", "n": 3})
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	et := chunk.EventTime{Sec: 1700000000, Nsec: 12345}

	entries := AppendEntry(nil, et, record)

	var decoded []any
	if err := msgpack.Unmarshal(entries, &decoded); err != nil {
		t.Fatalf("Unmarshal entry: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2-element entry array, got %d", len(decoded))
	}
}

func TestBuildRequestStructure(t *testing.T) {
	record, _ := EncodeMap(map[string]any{"k": "v"})
	entries := AppendEntry(nil, chunk.Now(), record)

	req := BuildRequest("app.access", entries, 1, "")

	var frame []any
	if err := msgpack.Unmarshal(req, &frame); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	if len(frame) != 3 {
		t.Fatalf("expected 3-element frame, got %d", len(frame))
	}
	tag, ok := frame[0].(string)
	if !ok || tag != "app.access" {
		t.Fatalf("unexpected tag element: %#v", frame[0])
	}
	opts, ok := frame[2].(map[string]any)
	if !ok {
		t.Fatalf("expected options map, got %#v", frame[2])
	}
	if _, hasChunk := opts["chunk"]; hasChunk {
		t.Fatal("non-ack request must not carry a chunk option")
	}
	if _, hasSize := opts["size"]; !hasSize {
		t.Fatal("request options must carry a size field")
	}
}

func TestBuildRequestAckMode(t *testing.T) {
	entries := AppendEntry(nil, chunk.Now(), mustEncode(t, map[string]any{"k": "v"}))
	req := BuildRequest("app.access", entries, 1, "dGhpcyBpcyAxNiBieXRlcyE=")

	var frame []any
	if err := msgpack.Unmarshal(req, &frame); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	opts := frame[2].(map[string]any)
	if opts["chunk"] != "dGhpcyBpcyAxNiBieXRlcyE=" {
		t.Fatalf("unexpected chunk option: %#v", opts["chunk"])
	}
}

func TestParseAck(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"ack": "token123"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	token, err := ParseAck(payload)
	if err != nil {
		t.Fatalf("ParseAck: %v", err)
	}
	if token != "token123" {
		t.Fatalf("expected token123, got %q", token)
	}
}

func TestParseAckMissingField(t *testing.T) {
	payload, _ := msgpack.Marshal(map[string]any{"other": "x"})
	if _, err := ParseAck(payload); err != ErrMissingAckField {
		t.Fatalf("expected ErrMissingAckField, got %v", err)
	}
}

func mustEncode(t *testing.T, record map[string]any) []byte {
	t.Helper()
	b, err := EncodeMap(record)
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	return b
}
