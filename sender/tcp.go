// Package sender implements the network sender stack: a single TCP sender
// owning one connection, a round-robin multi-endpoint sender, and a retry
// wrapper with exponential backoff, grounded on the failure-callback and
// connection-lifecycle patterns used throughout the example pack's
// adapters.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/detector"
	"github.com/kaidoh/fluentforward/log"
	"github.com/kaidoh/fluentforward/metrics"
	"github.com/kaidoh/fluentforward/serialize"
)

// Sender is the capability the flusher and buffer drive.
type Sender interface {
	SendChunk(ctx context.Context, c *chunk.Chunk) error
	IsAvailable() bool
	Close() error
}

// ErrAckMismatch is returned when the upstream's ack token does not match
// the chunk id that was sent.
var ErrAckMismatch = errors.New("sender: ack token mismatch")

// ErrAckTimeout is returned when no ack response arrives within
// ReadTimeout.
var ErrAckTimeout = errors.New("sender: timed out waiting for ack")

// maxAckResponseSize bounds the ack response read per the protocol's
// "bounded response region (<=256 bytes)" requirement.
const maxAckResponseSize = 256

// Config configures a TCPSender.
type Config struct {
	// Addr is the host:port of the Fluentd Forward Protocol endpoint.
	Addr string
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// ReadTimeout bounds the ack response read in ack mode.
	ReadTimeout time.Duration
	// AckMode requests and verifies an ack token for every send.
	AckMode bool
	// WaitBeforeClose lets an in-flight ack arrive before the connection is
	// torn down.
	WaitBeforeClose time.Duration

	Detector *detector.Detector
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

func (c *Config) withDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.Detector == nil {
		c.Detector = detector.New(detector.DefaultConfig())
	}
}

// TCPSender owns a single lazily-opened TCP connection to one Fluentd
// Forward Protocol endpoint. Connection state is guarded by connMu;
// writeMu separately serializes frame writes so that a concurrent
// IsAvailable check (which only reads the detector) never blocks behind an
// in-flight send.
type TCPSender struct {
	cfg Config

	connMu sync.Mutex
	conn   net.Conn

	writeMu sync.Mutex
}

// NewTCP constructs a TCPSender. The connection is opened lazily on first
// send.
func NewTCP(cfg Config) *TCPSender {
	cfg.withDefaults()
	return &TCPSender{cfg: cfg}
}

// IsAvailable reports the sender's failure detector's current verdict.
func (s *TCPSender) IsAvailable() bool {
	return s.cfg.Detector.IsAvailable()
}

// SendChunk frames c's bytes as a PackedForward request and writes them,
// optionally requesting and verifying an ack per Config.AckMode.
func (s *TCPSender) SendChunk(ctx context.Context, c *chunk.Chunk) error {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncSendAttempts()
	}
	ackToken := ""
	if s.cfg.AckMode {
		ackToken = c.AckToken()
	}
	req := serialize.BuildRequest(c.Tag(), c.Bytes(), c.Count(), ackToken)

	conn, err := s.ensureConn()
	if err != nil {
		return fmt.Errorf("sender: connect to %s: %w", s.cfg.Addr, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writeFrame(conn, req); err != nil {
		s.closeConn()
		s.cfg.Detector.RecordFailure(time.Now())
		return err
	}

	if !s.cfg.AckMode {
		return nil
	}

	got, err := s.readAck(conn)
	if err != nil {
		s.closeConn()
		s.cfg.Detector.RecordFailure(time.Now())
		return err
	}
	if got != ackToken {
		s.closeConn()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncAckMismatches()
		}
		return fmt.Errorf("%w: want %q got %q", ErrAckMismatch, ackToken, got)
	}
	return nil
}

func (s *TCPSender) writeFrame(conn net.Conn, req []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("sender: set write deadline: %w", err)
	}
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("sender: write frame: %w", err)
	}
	return nil
}

func (s *TCPSender) readAck(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return "", fmt.Errorf("sender: set read deadline: %w", err)
	}
	buf := make([]byte, maxAckResponseSize)
	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return "", fmt.Errorf("sender: ack read: %w", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.IncAckTimeouts()
			}
			return "", ErrAckTimeout
		}
		return "", fmt.Errorf("sender: ack read: %w", err)
	}
	token, err := serialize.ParseAck(buf[:n])
	if err != nil {
		return "", fmt.Errorf("sender: parse ack: %w", err)
	}
	return token, nil
}

func (s *TCPSender) ensureConn() (net.Conn, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := net.DialTimeout("tcp", s.cfg.Addr, s.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// closeConn tears down the current connection, if any. Safe to call while
// writeMu is held (it only touches connMu, a distinct lock).
func (s *TCPSender) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close tears down the connection, first waiting WaitBeforeClose to let an
// in-flight ack arrive.
func (s *TCPSender) Close() error {
	if s.cfg.WaitBeforeClose > 0 {
		time.Sleep(s.cfg.WaitBeforeClose)
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
