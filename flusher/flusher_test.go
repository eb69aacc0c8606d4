package flusher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/serialize"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*chunk.Chunk
}

func (s *recordingSender) SendChunk(ctx context.Context, c *chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return nil
}

func (s *recordingSender) IsAvailable() bool { return true }
func (s *recordingSender) Close() error      { return nil }

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func appendRecord(t *testing.T, buf *buffer.Buffer, tag string) {
	t.Helper()
	record, err := serialize.EncodeMap(map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	if err := buf.AppendSerialized(context.Background(), tag, chunk.Now(), record); err != nil {
		t.Fatalf("AppendSerialized: %v", err)
	}
}

func TestPeriodicFlusherFlushesOnTick(t *testing.T) {
	buf := buffer.New(buffer.Config{ChunkRetentionTime: time.Hour, ChunkRetentionSize: 1})
	sender := &recordingSender{}

	f := NewPeriodic(buf, sender, PeriodicConfig{FlushInterval: 10 * time.Millisecond})
	f.Start()
	defer f.Close(context.Background())

	appendRecord(t, buf, "app.access")

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sender.count() == 0 {
		t.Fatal("expected the periodic worker to flush the sealed chunk")
	}
}

func TestPeriodicFlusherRequestFlush(t *testing.T) {
	buf := buffer.New(buffer.Config{ChunkRetentionTime: time.Hour, ChunkRetentionSize: 1})
	sender := &recordingSender{}

	f := NewPeriodic(buf, sender, PeriodicConfig{FlushInterval: time.Hour})
	f.Start()
	defer f.Close(context.Background())

	appendRecord(t, buf, "app.access")
	f.RequestFlush()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sender.count() == 0 {
		t.Fatal("expected RequestFlush to trigger an immediate flush")
	}
}

func TestPeriodicFlusherCloseDrainsBuffer(t *testing.T) {
	buf := buffer.New(buffer.Config{ChunkRetentionTime: time.Hour})
	sender := &recordingSender{}

	f := NewPeriodic(buf, sender, PeriodicConfig{
		FlushInterval:          time.Hour,
		WaitUntilBufferFlushed: time.Second,
		WaitUntilTerminated:    time.Second,
	})
	f.Start()

	appendRecord(t, buf, "app.access")

	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.BufferedChunks() != 0 {
		t.Fatalf("expected buffer to be drained, still has %d chunks", buf.BufferedChunks())
	}
	if !f.IsTerminated() {
		t.Fatal("expected IsTerminated to be true after Close")
	}
}

func TestSyncFlusherRequestFlushIsInline(t *testing.T) {
	buf := buffer.New(buffer.Config{ChunkRetentionTime: time.Hour, ChunkRetentionSize: 1})
	sender := &recordingSender{}

	f := NewSync(buf, sender, SyncConfig{})
	appendRecord(t, buf, "app.access")

	f.RequestFlush()
	if sender.count() != 1 {
		t.Fatalf("expected RequestFlush to synchronously deliver the chunk, got %d sends", sender.count())
	}
}

func TestSyncFlusherCloseFinalFlush(t *testing.T) {
	buf := buffer.New(buffer.Config{ChunkRetentionTime: time.Hour})
	sender := &recordingSender{}

	f := NewSync(buf, sender, SyncConfig{WaitUntilBufferFlushed: time.Second})
	appendRecord(t, buf, "app.access")

	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected Close to flush the pending chunk, got %d sends", sender.count())
	}
	if !f.IsTerminated() {
		t.Fatal("expected IsTerminated to be true after Close")
	}
}
