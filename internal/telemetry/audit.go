package telemetry

import (
	"context"
	"log/slog"
	"time"

	"messaging-service/internal/observability"
)

// Audit event types emitted by the lifecycle engines.
const (
	AuditChatCreated         = "chat_created"
	AuditChatHidden          = "chat_hidden"
	AuditChatReopened        = "chat_reopened"
	AuditChatRetired         = "chat_retired"
	AuditParticipantsRemoved = "participants_removed"
	AuditGroupUpdated        = "group_updated"
	AuditMessagesDeleted     = "messages_deleted"
	AuditUserDeleted         = "user_deleted"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Auditor records lifecycle transitions. Emission is best effort.
type Auditor interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditEvent is the caller-side description of a transition.
type AuditEvent struct {
	Type     string
	ActorID  string
	ChatID   string
	Subjects []string
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	ChatID   string   `json:"chat_id,omitempty"`
	Subjects []string `json:"subjects,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     event.Type,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     RequestIDFromContext(ctx),
		TraceID:       observability.TraceIDFromContext(ctx),
		Payload: AuditPayload{
			ChatID:   event.ChatID,
			Subjects: event.Subjects,
		},
	}
	if event.ActorID != "" {
		actor := event.ActorID
		envelope.UserID = &actor
	}
	e.logger.Debug("audit emit", "event_type", event.Type, "chat_id", event.ChatID, "request_id", envelope.RequestID)

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", "event_type", event.Type, "error", err)
	}
}

type requestIDKey struct{}

// WithRequestID stores the request id for audit envelopes.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
