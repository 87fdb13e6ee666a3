package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/events"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
)

// Config holds service configuration.
type Config struct {
	MaxNotifications   int
	CleanupInterval    time.Duration
	RateLimitWindow    time.Duration
	RateLimitMaxEvents int
	SubscriberBuffer   int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxNotifications:   1000,
		CleanupInterval:    5 * time.Minute,
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 100,
		SubscriberBuffer:   64,
	}
}

// Service consumes the event bus and maintains the notification feed.
type Service struct {
	store   *InMemoryStore
	limiter *rateLimiter

	mu          sync.RWMutex
	subscribers map[int]chan *Notification
	nextSubID   int

	subscriberBuffer int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Uint64

	cleanupInterval time.Duration

	logger *slog.Logger
}

// NewService creates a notification service.
func NewService(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	return &Service{
		store:            NewInMemoryStore(config.MaxNotifications),
		limiter:          newRateLimiter(config.RateLimitWindow, config.RateLimitMaxEvents),
		subscribers:      make(map[int]chan *Notification),
		subscriberBuffer: config.SubscriberBuffer,
		cleanupInterval:  config.CleanupInterval,
		logger:           logging.ForService("notification"),
	}
}

// Start launches the expiry cleanup loop.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.cleanupLoop()
}

// Stop terminates the cleanup loop and closes subscriber channels.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribe returns a channel of new notifications and a cancel
// function. Slow subscribers miss notifications rather than blocking
// the feed.
func (s *Service) Subscribe() (<-chan *Notification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan *Notification, s.subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			close(existing)
			delete(s.subscribers, id)
		}
	}
	return ch, cancel
}

// Recent returns the newest notifications for feed bootstrapping.
func (s *Service) Recent(limit int) []*Notification {
	return s.store.List(limit)
}

// Dropped reports notifications lost to rate limiting or slow
// subscribers.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Name implements events.Consumer.
func (s *Service) Name() string {
	return "notification"
}

// ProcessStateChange implements events.Consumer.
func (s *Service) ProcessStateChange(event events.StateChangeEvent) error {
	s.publish(s.fromStateChange(event))
	return nil
}

// ProcessDetection implements events.Consumer. Only escalation-eligible
// detections notify; informational tiers would drown the feed.
func (s *Service) ProcessDetection(event *alert.DetectionEvent) error {
	if !event.AlertLevel.EscalationEligible() {
		return nil
	}

	priority := PriorityHigh
	if event.AlertLevel == alert.LevelCritical {
		priority = PriorityCritical
	}

	n := NewNotification(TypeDetection, priority,
		fmt.Sprintf("%s detected", event.Species.CommonName),
		fmt.Sprintf("risk %.2f, confidence %.2f, action %s",
			event.RiskScore, event.Confidence, event.RecommendedAction)).
		WithComponent("ingest").
		WithExpiry(time.Hour).
		WithMetadata("species", event.Species.CommonName).
		WithMetadata("alert_level", event.AlertLevel.String())
	s.publish(n)
	return nil
}

func (s *Service) fromStateChange(event events.StateChangeEvent) *Notification {
	title := fmt.Sprintf("Escalation %s", event.GetTo())
	message := fmt.Sprintf("session %s: %s to %s (%s)",
		event.GetSessionID(), event.GetFrom(), event.GetTo(), event.GetCause())

	var n *Notification
	switch {
	case event.GetError() != nil:
		n = NewNotification(TypeError, PriorityCritical, title, event.GetError().Error())
	case event.GetCause() == "operator-acknowledge":
		n = NewNotification(TypeInfo, PriorityMedium, "Dispatch acknowledged", message)
	case event.GetTo() == "ACTIVE":
		n = NewNotification(TypeWarning, PriorityCritical, "Deterrent dispatching", message)
	case event.GetTo() == "PENDING_CONFIRMATION":
		n = NewNotification(TypeWarning, PriorityHigh, "Escalation awaiting confirmation", message)
	case event.GetTo() == "DEGRADED":
		n = NewNotification(TypeSystem, PriorityHigh, "Detection stream degraded", message)
	case event.GetTo() == "CONNECTED":
		n = NewNotification(TypeSystem, PriorityMedium, "Detection stream recovered", message)
	default:
		n = NewNotification(TypeInfo, PriorityMedium, title, message)
	}

	n.WithComponent("escalation").
		WithMetadata("session_id", event.GetSessionID()).
		WithMetadata("cause", event.GetCause())
	if detection := event.GetEvent(); detection != nil {
		n.WithMetadata("species", detection.Species.CommonName)
	}
	return n
}

func (s *Service) publish(n *Notification) {
	if !s.limiter.allow(n.Type) {
		s.dropped.Add(1)
		s.logger.Warn("notification rate limited", "type", string(n.Type))
		return
	}

	s.store.Save(n)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	interval := s.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if removed := s.store.RemoveExpired(); removed > 0 {
				s.logger.Debug("removed expired notifications", "count", removed)
			}
		}
	}
}

// rateLimiter is a sliding-window limiter per notification type.
type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	maxEvents int
	events    map[Type][]time.Time
}

func newRateLimiter(window time.Duration, maxEvents int) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if maxEvents <= 0 {
		maxEvents = 100
	}
	return &rateLimiter{
		window:    window,
		maxEvents: maxEvents,
		events:    make(map[Type][]time.Time),
	}
}

func (r *rateLimiter) allow(notifType Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	recent := r.events[notifType][:0]
	for _, ts := range r.events[notifType] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.maxEvents {
		r.events[notifType] = recent
		return false
	}

	r.events[notifType] = append(recent, now)
	return true
}
