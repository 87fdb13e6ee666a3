// Package notification turns engine output into operator-facing
// notifications. It consumes the event bus and keeps a bounded
// in-memory feed with subscriber channels, the boundary a dashboard or
// mobile push relay would consume.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type categorizes notifications for filtering in consumers.
type Type string

const (
	TypeError     Type = "error"
	TypeWarning   Type = "warning"
	TypeInfo      Type = "info"
	TypeDetection Type = "detection"
	TypeSystem    Type = "system"
)

// Priority determines the urgency of a notification.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Notification is a single notification instance.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotification creates a notification with a generated ID.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithComponent sets the originating component.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithExpiry sets the expiry time.
func (n *Notification) WithExpiry(expiry time.Duration) *Notification {
	expiresAt := n.Timestamp.Add(expiry)
	n.ExpiresAt = &expiresAt
	return n
}

// WithMetadata attaches a metadata value.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// IsExpired returns true if the notification has passed its expiry.
func (n *Notification) IsExpired() bool {
	return n.ExpiresAt != nil && time.Now().After(*n.ExpiresAt)
}
