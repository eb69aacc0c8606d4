package chunk

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestChunkAppendAndSize(t *testing.T) {
	c := New("app.access", 16)
	c.Append([]byte("hello"))
	c.Append([]byte("!!"))

	if c.Size() != 7 {
		t.Fatalf("expected size 7, got %d", c.Size())
	}
	if c.Count() != 2 {
		t.Fatalf("expected count 2, got %d", c.Count())
	}
	if c.Tag() != "app.access" {
		t.Fatalf("unexpected tag %q", c.Tag())
	}
}

func TestChunkGrowPreservesBytes(t *testing.T) {
	c := New("t", 4)
	c.Append([]byte("abcd"))
	c.Grow(64)

	if c.Cap() < 64 {
		t.Fatalf("expected capacity >= 64, got %d", c.Cap())
	}
	if string(c.Bytes()) != "abcd" {
		t.Fatalf("bytes not preserved after grow: %q", c.Bytes())
	}
}

func TestChunkGrowNoShrink(t *testing.T) {
	c := New("t", 128)
	c.Grow(16)
	if c.Cap() != 128 {
		t.Fatalf("Grow must never shrink capacity, got %d", c.Cap())
	}
}

func TestChunkAckTokenIsBase64Of16Bytes(t *testing.T) {
	c := New("t", 8)
	token := c.AckToken()
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("ack token not valid base64: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("expected 16 raw bytes, got %d", len(raw))
	}
}

func TestChunkSeal(t *testing.T) {
	c := New("t", 8)
	if c.Sealed() {
		t.Fatal("new chunk must not be sealed")
	}
	c.Seal()
	if !c.Sealed() {
		t.Fatal("expected sealed chunk")
	}
}

func TestRestorePreservesIdentity(t *testing.T) {
	id := uuid.New()
	createdAt := time.Now().Add(-time.Minute)
	c := Restore("tag.x", id, createdAt, []byte("payload"))

	if c.ID() != id {
		t.Fatalf("expected id %v, got %v", id, c.ID())
	}
	if !c.CreatedAt().Equal(createdAt) {
		t.Fatalf("expected createdAt %v, got %v", createdAt, c.CreatedAt())
	}
	if !c.Sealed() {
		t.Fatal("restored chunks must be sealed")
	}
	if string(c.Bytes()) != "payload" {
		t.Fatalf("unexpected payload %q", c.Bytes())
	}
}
