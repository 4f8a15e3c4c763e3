package services

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// ProjectEventsChannel is the broker channel carrying project
// lifecycle events for downstream consumers (notifications, analytics).
const ProjectEventsChannel = "project-events"

// Project lifecycle event types.
const (
	EventProjectCreated   = "project.created"
	EventStatusChanged    = "project.status_changed"
	EventDeliverableAdded = "project.deliverable_added"
	EventProjectDeleted   = "project.deleted"
)

// EventPublisher sends lifecycle events to a broker channel.
// *mq.MQ satisfies this.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ProjectEvent is the envelope published on ProjectEventsChannel.
type ProjectEvent struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	UserID    int       `json:"user_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// publishEvent sends the event best effort. Publishing failures are
// logged and never fail the mutation that triggered them.
func publishEvent(ctx context.Context, publisher EventPublisher, event ProjectEvent) {
	if publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal project event: %v", err)
		return
	}
	attrs := map[string]string{"type": event.Type}
	if _, err := publisher.Publish(ctx, ProjectEventsChannel, data, attrs); err != nil {
		log.Printf("publish project event %s: %v", event.Type, err)
	}
}
