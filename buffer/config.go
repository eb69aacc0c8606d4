package buffer

import (
	"time"

	"github.com/kaidoh/fluentforward/log"
	"github.com/kaidoh/fluentforward/metrics"
	"github.com/kaidoh/fluentforward/serialize"
)

// Config configures a Buffer. Zero-value fields are filled in from
// DefaultConfig by New.
type Config struct {
	// MaxBufferSize is the global capacity budget in bytes, checked against
	// Σ capacity(chunk) over current and queued chunks.
	MaxBufferSize int64
	// ChunkInitialSize is the capacity a freshly allocated chunk starts with.
	ChunkInitialSize int64
	// ChunkRetentionSize is the size at which a chunk is sealed.
	ChunkRetentionSize int64
	// ChunkExpandRatio is the multiplicative growth factor applied while a
	// chunk is below ChunkRetentionSize.
	ChunkExpandRatio float64
	// ChunkRetentionTime is the age at which a chunk is sealed regardless
	// of size.
	ChunkRetentionTime time.Duration

	// Encode converts an application record into MessagePack bytes.
	// Defaults to serialize.EncodeMap.
	Encode serialize.EncodeFunc

	Logger  *log.Logger
	Metrics *metrics.Collector
}

// DefaultConfig returns the buffer defaults.
func DefaultConfig() Config {
	return Config{
		MaxBufferSize:      512 * 1024 * 1024,
		ChunkInitialSize:   1 * 1024 * 1024,
		ChunkRetentionSize: 4 * 1024 * 1024,
		ChunkExpandRatio:   2.0,
		ChunkRetentionTime: time.Second,
		Encode:             serialize.EncodeMap,
	}
}

func (c *Config) withDefaults() {
	d := DefaultConfig()
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = d.MaxBufferSize
	}
	if c.ChunkInitialSize <= 0 {
		c.ChunkInitialSize = d.ChunkInitialSize
	}
	if c.ChunkRetentionSize <= 0 {
		c.ChunkRetentionSize = d.ChunkRetentionSize
	}
	if c.ChunkExpandRatio <= 1.0 {
		c.ChunkExpandRatio = d.ChunkExpandRatio
	}
	if c.ChunkRetentionTime <= 0 {
		c.ChunkRetentionTime = d.ChunkRetentionTime
	}
	if c.Encode == nil {
		c.Encode = d.Encode
	}
}
