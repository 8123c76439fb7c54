// Package pubsub fans call events out from the webhook to whichever process
// holds the live session for that call.
package pubsub

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("pubsub: bus closed")

// Bus is a fire-and-forget topic bus. Messages published while nobody is
// subscribed are dropped.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	// Messages is closed after Close or when the underlying connection ends.
	Messages() <-chan []byte
	Close() error
}

// CallEventsTopic is the topic carrying events for one voice call.
func CallEventsTopic(callID string) string { return "call:" + callID + ":events" }
