package events

import "sync"

// EventCollector gathers domain events produced during one operation so they
// can be dispatched together once the operation commits. It is safe for
// concurrent use.
type EventCollector struct {
	events []DomainEvent
	mu     sync.Mutex
}

// Record appends domain events to the collector.
func (c *EventCollector) Record(events ...DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

// Events returns a copy of the collected domain events without clearing them.
func (c *EventCollector) Events() []DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DomainEvent, len(c.events))
	copy(out, c.events)
	return out
}

// ClearEvents returns the collected domain events and clears the collector.
func (c *EventCollector) ClearEvents() []DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	collected := c.events
	c.events = nil
	return collected
}
