package fanout

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/ws"
)

// Pusher writes an encoded frame to the local connections of a user and
// returns how many connections accepted it.
type Pusher interface {
	PushFrame(userID string, frame []byte) int
}

// Relay forwards an encoded frame to the other instances.
type Relay interface {
	Publish(ctx context.Context, userIDs []string, event string, frame []byte) error
}

// Dispatcher is the only component that pushes events to live connections.
type Dispatcher struct {
	pusher Pusher
	relay  Relay
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDispatcher builds a Dispatcher. relay may be nil on a single instance.
func NewDispatcher(pusher Pusher, relay Relay, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pusher: pusher,
		relay:  relay,
		logger: logger,
		tracer: otel.Tracer("messaging-service/fanout"),
	}
}

// Deliver pushes event once to every recipient. Offline recipients are not
// an error and delivery failures are logged, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, recipients Recipients, event models.Event) {
	if recipients.Len() == 0 {
		return
	}
	name := event.EventName()
	ctx, span := d.tracer.Start(ctx, "fanout.deliver", trace.WithAttributes(
		attribute.String("event", name),
		attribute.Int("recipients", recipients.Len()),
	))
	defer span.End()

	frame, err := ws.EncodeFrame(name, event)
	if err != nil {
		d.logger.Error("encode event", "event", name, "error", err)
		return
	}

	users := recipients.Members()
	delivered, offline := 0, 0
	for _, userID := range users {
		if d.pusher.PushFrame(userID, frame) > 0 {
			delivered++
		} else {
			offline++
		}
	}
	observability.AddFanout(name, "delivered", delivered)
	observability.AddFanout(name, "offline", offline)

	if d.relay != nil {
		if err := d.relay.Publish(ctx, users, name, frame); err != nil {
			d.logger.Warn("relay publish failed", "event", name, "recipients", len(users), "error", err)
			observability.IncRelay("publish_error")
		} else {
			observability.IncRelay("published")
		}
	}

	d.logger.Debug("event delivered",
		"event", name,
		"recipients", len(users),
		"delivered", delivered,
		"offline", offline,
	)
}
