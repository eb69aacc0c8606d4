package detector

import (
	"net"
	"sync"
	"time"

	"github.com/kaidoh/fluentforward/log"
)

// Heartbeat periodically probes a remote endpoint and records successful
// connects as arrivals on a Detector. The heartbeat runs until its own
// Close is called; closing a sender does not stop it (forwarder.Client.Close
// closes its heartbeats before closing the sender chain).
type Heartbeat struct {
	addr     string
	network  string // "tcp" or "udp"
	interval time.Duration
	dialer   net.Dialer
	detector *Detector
	logger   *log.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHeartbeat constructs a heartbeat prober for addr, recording arrivals
// on detector every interval. network must be "tcp" or "udp"; tcp records
// an arrival only on a successful connect, udp is failure-silent and
// records an arrival on every scheduled tick regardless of delivery (the
// protocol gives no delivery confirmation).
func NewHeartbeat(network, addr string, interval time.Duration, detector *Detector, logger *log.Logger) *Heartbeat {
	return &Heartbeat{
		addr:     addr,
		network:  network,
		interval: interval,
		dialer:   net.Dialer{Timeout: interval},
		detector: detector,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the probing goroutine. Safe to call once.
func (h *Heartbeat) Start() {
	go h.run()
}

func (h *Heartbeat) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.probe()
		}
	}
}

func (h *Heartbeat) probe() {
	switch h.network {
	case "udp":
		h.probeUDP()
	default:
		h.probeTCP()
	}
}

func (h *Heartbeat) probeTCP() {
	conn, err := h.dialer.Dial("tcp", h.addr)
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("heartbeat probe failed", map[string]any{"addr": h.addr, "error": err.Error()})
		}
		return
	}
	_ = conn.Close()
	h.detector.RecordArrival(time.Now())
}

// probeUDP sends a zero-length datagram and records an arrival on the
// scheduled tick itself: UDP gives no delivery confirmation, so a failed
// write is the only distinguishable failure and even that is tolerated
// per the protocol's failure-silent heartbeat semantics.
func (h *Heartbeat) probeUDP() {
	conn, err := h.dialer.Dial("udp", h.addr)
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("heartbeat udp dial failed", map[string]any{"addr": h.addr, "error": err.Error()})
		}
		return
	}
	defer conn.Close()
	_, _ = conn.Write([]byte{})
	h.detector.RecordArrival(time.Now())
}

// Close stops the probing goroutine and waits for it to exit.
func (h *Heartbeat) Close() error {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.doneCh
	return nil
}
