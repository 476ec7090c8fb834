package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
)

// EventSerializer encodes domain events for the outbox and decodes them back
// into their concrete types
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer with no registered types
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// NewProcurementSerializer creates a serializer that knows every procurement event
func NewProcurementSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(procurement.EventTypeInvoiceSaved, func() shared.DomainEvent { return &procurement.InvoiceSavedEvent{} })
	s.Register(procurement.EventTypeDetailItemCreated, func() shared.DomainEvent { return &procurement.DetailItemCreatedEvent{} })
	s.Register(procurement.EventTypeDetailItemUpdated, func() shared.DomainEvent { return &procurement.DetailItemUpdatedEvent{} })
	s.Register(procurement.EventTypeXeroBillCreated, func() shared.DomainEvent { return &procurement.XeroBillCreatedEvent{} })
	return s
}

// Register binds an event type to a constructor of its zero value
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = factory
}

// Serialize encodes an event as JSON
func (s *EventSerializer) Serialize(ev shared.DomainEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Deserialize decodes a payload of the given type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	ev := factory()
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	return ev, nil
}

// RegisteredTypes returns the known event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
