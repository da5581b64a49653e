// Package events carries best-effort media lifecycle notifications. Callers
// hand a notification to a Dispatcher and return immediately; delivery
// outcome is only ever visible in the logs.
package events

import (
	"context"
	"fmt"
	"log/slog"
)

// Sink accepts notifications without blocking the caller.
type Sink interface {
	Publish(accountID, mediaName string)
}

// Publisher is the transport a Dispatcher delivers through.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Message renders the notification body published for an upload.
func Message(accountID, mediaName string) string {
	return fmt.Sprintf("User: %s, Image: %s", accountID, mediaName)
}

// LogPublisher writes messages to the log instead of a broker. It is used when
// no Redis instance is configured.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher returns a Publisher that only logs.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, channel, message string) error {
	p.log.InfoContext(ctx, "event", "channel", channel, "message", message)
	return nil
}
