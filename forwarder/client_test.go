package forwarder

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/sender"
)

type fakeAggregator struct {
	ln     net.Listener
	frames chan []any
}

func startFakeAggregator(t *testing.T) *fakeAggregator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeAggregator{ln: ln, frames: make(chan []any, 16)}
	go f.acceptLoop()
	return f
}

func (f *fakeAggregator) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeAggregator) handle(conn net.Conn) {
	defer conn.Close()
	dec := msgpack.NewDecoder(bufio.NewReader(conn))
	for {
		var frame []any
		if err := dec.Decode(&frame); err != nil {
			return
		}
		f.frames <- frame
	}
}

func (f *fakeAggregator) addr() string { return f.ln.Addr().String() }
func (f *fakeAggregator) close()       { f.ln.Close() }

func testConfig(addr string) Config {
	return Config{
		Endpoints: []EndpointConfig{{Addr: addr}},
		Buffer:    buffer.Config{ChunkRetentionTime: time.Hour},
		Retry:     sender.RetryConfig{BaseInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond, MaxRetryCount: 2},
		FlushInterval: 20 * time.Millisecond,
	}
}

func TestClientEmitAndFlush(t *testing.T) {
	agg := startFakeAggregator(t)
	defer agg.close()

	cfg := testConfig(agg.addr())
	cfg.Buffer.ChunkRetentionSize = 1 // seal each chunk on append so Flush has a sealed chunk to send

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	if err := c.Emit(context.Background(), "app.access", map[string]any{"msg": "hi"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	c.Flush()

	select {
	case frame := <-agg.frames:
		if frame[0].(string) != "app.access" {
			t.Fatalf("unexpected tag: %v", frame[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the fake aggregator to receive a frame")
	}
}

func TestClientCloseDrainsBuffer(t *testing.T) {
	agg := startFakeAggregator(t)
	defer agg.close()

	cfg := testConfig(agg.addr())
	cfg.WaitUntilBufferFlushed = 2 * time.Second
	cfg.WaitUntilTerminated = 2 * time.Second

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := c.Emit(context.Background(), "app.access", map[string]any{"i": i}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.BufferedChunks() != 0 {
		t.Fatalf("expected buffer to be fully drained, has %d chunks", c.BufferedChunks())
	}
	if !c.IsTerminated() {
		t.Fatal("expected IsTerminated to be true after Close")
	}
}

func TestClientStatsReportsEndpointAvailability(t *testing.T) {
	agg := startFakeAggregator(t)
	defer agg.close()

	c, err := New(testConfig(agg.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	stats := c.Stats()
	if len(stats.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint in stats, got %d", len(stats.Endpoints))
	}
	if stats.Endpoints[0].Addr != agg.addr() {
		t.Fatalf("expected addr %q, got %q", agg.addr(), stats.Endpoints[0].Addr)
	}
	if !stats.Endpoints[0].Available {
		t.Fatal("expected a freshly constructed endpoint to be reported available")
	}
}

func TestClientRequiresAtLeastOneEndpoint(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error when no endpoints are configured")
	}
}

func TestClientBufferFullReturnsError(t *testing.T) {
	agg := startFakeAggregator(t)
	defer agg.close()

	cfg := testConfig(agg.addr())
	cfg.Buffer.MaxBufferSize = 1
	cfg.Buffer.ChunkInitialSize = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	err = c.Emit(context.Background(), "app.access", map[string]any{"msg": "this record is too large to fit"})
	if err == nil {
		t.Fatal("expected ErrBufferFull when the budget cannot accommodate the first chunk")
	}
}
