package notification

import (
	"sort"
	"sync"
)

// InMemoryStore holds recent notifications up to a fixed cap, evicting
// the oldest when full.
type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
	maxSize       int
}

// NewInMemoryStore creates a store with the given capacity.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryStore{
		notifications: make(map[string]*Notification),
		order:         make([]string, 0, maxSize),
		maxSize:       maxSize,
	}
}

// Save adds a notification, evicting the oldest when at capacity.
func (s *InMemoryStore) Save(notification *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[notification.ID]; !exists && len(s.order) >= s.maxSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.notifications, oldest)
	}

	if _, exists := s.notifications[notification.ID]; !exists {
		s.order = append(s.order, notification.ID)
	}
	s.notifications[notification.ID] = notification
}

// Get returns a notification by ID.
func (s *InMemoryStore) Get(id string) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok
}

// List returns notifications newest first, up to limit (0 for all).
func (s *InMemoryStore) List(limit int) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored notifications.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// RemoveExpired deletes expired notifications and reports the count.
func (s *InMemoryStore) RemoveExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		n := s.notifications[id]
		if n != nil && n.IsExpired() {
			delete(s.notifications, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
