// Package webhooks delivers pipeline events to external HTTP consumers:
// the MPCB regional server, SCADA bridges, on-call paging. Subscriptions
// are registered over the admin API and payloads are HMAC-signed when the
// subscriber supplies a secret.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Emitter is the interface the pipeline publishes through.
type Emitter interface {
	Emit(eventType EventType, dischargePoint string, data map[string]interface{})
	Shutdown()
}

// EventType defines the events that can trigger webhooks.
type EventType string

const (
	EventAlertRouted    EventType = "alert.routed"
	EventShockDetected  EventType = "shock.detected"
	EventEvidenceLogged EventType = "evidence.logged"
	EventTamperDetected EventType = "tamper.detected"
)

// Subscription represents a registered webhook.
type Subscription struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Events []EventType `json:"events"`
	Secret string      `json:"secret,omitempty"`
	Active bool        `json:"active"`
	// Points restricts delivery to these discharge points; empty means all.
	Points    []string  `json:"points,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	FailCount int       `json:"fail_count"`
}

func (s *Subscription) wantsPoint(point string) bool {
	if len(s.Points) == 0 {
		return true
	}
	for _, p := range s.Points {
		if p == point {
			return true
		}
	}
	return false
}

// Event is the payload sent to webhook subscribers.
type Event struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	Source         string                 `json:"source"`
	Timestamp      time.Time              `json:"timestamp"`
	DischargePoint string                 `json:"discharge_point,omitempty"`
	Data           map[string]interface{} `json:"data"`
}

// Registry stores and manages webhook subscriptions.
type Registry struct {
	mu      sync.RWMutex
	hooks   map[string]*Subscription // id -> hook
	byEvent map[EventType][]*Subscription
	logger  *log.Logger
}

// maxFailures disables a subscription once consecutive deliveries keep
// failing; a re-register resets it.
const maxFailures = 10

func NewRegistry() *Registry {
	return &Registry{
		hooks:   make(map[string]*Subscription),
		byEvent: make(map[EventType][]*Subscription),
		logger:  log.New(log.Writer(), "[WEBHOOKS] ", log.LstdFlags),
	}
}

// Register adds a webhook subscription.
func (r *Registry) Register(sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if len(sub.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}

	if sub.ID == "" {
		sub.ID = "wh-" + uuid.NewString()
	}
	sub.Active = true
	sub.CreatedAt = time.Now()
	sub.FailCount = 0

	r.hooks[sub.ID] = sub

	for _, evt := range sub.Events {
		r.byEvent[evt] = append(r.byEvent[evt], sub)
	}

	r.logger.Printf("📡 Registered webhook %s → %s (events: %v)", sub.ID, sub.URL, sub.Events)
	return nil
}

// Unregister removes a webhook subscription.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.hooks[id]
	if !ok {
		return fmt.Errorf("webhook %s not found", id)
	}

	delete(r.hooks, id)

	for _, evt := range sub.Events {
		filtered := make([]*Subscription, 0)
		for _, s := range r.byEvent[evt] {
			if s.ID != id {
				filtered = append(filtered, s)
			}
		}
		r.byEvent[evt] = filtered
	}

	r.logger.Printf("🗑️  Unregistered webhook %s", id)
	return nil
}

// GetSubscribers returns all active subscribers for an event type.
func (r *Registry) GetSubscribers(eventType EventType) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Subscription
	for _, sub := range r.byEvent[eventType] {
		if sub.Active {
			active = append(active, sub)
		}
	}
	return active
}

// ListAll returns all registered webhooks.
func (r *Registry) ListAll() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Subscription, 0, len(r.hooks))
	for _, sub := range r.hooks {
		result = append(result, sub)
	}
	return result
}

// MarkFailed increments the failure count and disables the subscription at
// the cap.
func (r *Registry) MarkFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.hooks[id]
	if !ok {
		return
	}
	sub.FailCount++
	if sub.FailCount >= maxFailures {
		sub.Active = false
		r.logger.Printf("⚠️  Webhook %s disabled after %d failures", id, sub.FailCount)
	}
}

// SignPayload creates the HMAC-SHA256 signature for payload verification.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
