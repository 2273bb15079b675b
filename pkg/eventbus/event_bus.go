// Package eventbus provides the event sink the workflow engine publishes
// domain events through, plus subscription support for collaborators.
package eventbus

import (
	"context"

	"github.com/flowmill/flowmill/pkg/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
