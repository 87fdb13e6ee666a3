package alert

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// DeduplicatorConfig holds configuration for alert deduplication.
type DeduplicatorConfig struct {
	// MaxKeys bounds the key history; the oldest accepted key is evicted
	// first (FIFO by arrival order).
	MaxKeys int
	// EscalationWindow is the maximum event age still eligible to start
	// or influence an escalation session.
	EscalationWindow time.Duration
}

// DefaultDeduplicatorConfig returns default deduplication settings.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{
		MaxKeys:          1000,
		EscalationWindow: 10 * time.Second,
	}
}

// Disposition describes how the filter classified an event.
type Disposition int

const (
	// DispositionAccepted means the event is new and fresh.
	DispositionAccepted Disposition = iota
	// DispositionDuplicate means an event with the same key was already
	// accepted; the new one is dropped from the escalation path.
	DispositionDuplicate
	// DispositionStale means the event is new but older than the
	// escalation window; it is recorded for history only.
	DispositionStale
)

// String returns the disposition name used in logs and persisted records.
func (d Disposition) String() string {
	switch d {
	case DispositionAccepted:
		return "accepted"
	case DispositionDuplicate:
		return "duplicate"
	case DispositionStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Deduplicator assigns a stable identity to each event and rejects
// repeats and stale events. The key history is bounded; eviction is FIFO
// by arrival order so memory stays constant under sustained load.
type Deduplicator struct {
	config DeduplicatorConfig

	mu    sync.Mutex
	seen  map[Key]struct{}
	order []Key // arrival order, oldest first

	// Metrics
	totalSeen       atomic.Uint64
	totalDuplicates atomic.Uint64
	totalStale      atomic.Uint64

	logger *slog.Logger
}

// NewDeduplicator creates a deduplicator with the given configuration.
func NewDeduplicator(config DeduplicatorConfig) *Deduplicator {
	if config.MaxKeys <= 0 {
		config.MaxKeys = DefaultDeduplicatorConfig().MaxKeys
	}
	if config.EscalationWindow <= 0 {
		config.EscalationWindow = DefaultDeduplicatorConfig().EscalationWindow
	}
	return &Deduplicator{
		config: config,
		seen:   make(map[Key]struct{}, config.MaxKeys),
		order:  make([]Key, 0, config.MaxKeys),
		logger: logging.ForService("dedup"),
	}
}

// Filter computes the event's key and classifies the event. A duplicate
// never re-enters the escalation path even if the first occurrence was
// stale; staleness is judged against the event timestamp, not receipt
// time, so delayed delivery of old events cannot retroactively trigger a
// deterrent.
func (d *Deduplicator) Filter(e *DetectionEvent, now time.Time) (Key, Disposition) {
	d.totalSeen.Add(1)
	key := EventKey(e)

	d.mu.Lock()
	_, exists := d.seen[key]
	if !exists {
		d.remember(key)
	}
	d.mu.Unlock()

	if exists {
		d.totalDuplicates.Add(1)
		d.logger.Debug("duplicate event dropped from escalation path",
			"key", key.String(),
			"species", e.Species.CommonName)
		return key, DispositionDuplicate
	}

	if e.Age(now) > d.config.EscalationWindow {
		d.totalStale.Add(1)
		d.logger.Debug("stale event recorded for history only",
			"key", key.String(),
			"age", e.Age(now),
			"window", d.config.EscalationWindow)
		return key, DispositionStale
	}

	return key, DispositionAccepted
}

// remember records a key, evicting the oldest when the history is full.
// Caller must hold d.mu.
func (d *Deduplicator) remember(key Key) {
	if len(d.order) >= d.config.MaxKeys {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
}

// Stats returns deduplication counters.
func (d *Deduplicator) Stats() DeduplicatorStats {
	d.mu.Lock()
	size := len(d.seen)
	d.mu.Unlock()

	return DeduplicatorStats{
		TotalSeen:       d.totalSeen.Load(),
		TotalDuplicates: d.totalDuplicates.Load(),
		TotalStale:      d.totalStale.Load(),
		HistorySize:     size,
	}
}

// DeduplicatorStats contains deduplication counters for monitoring.
type DeduplicatorStats struct {
	TotalSeen       uint64
	TotalDuplicates uint64
	TotalStale      uint64
	HistorySize     int
}
