package telemetry_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/telemetry"
)

func TestEmitBuildsEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "messaging-service", "test", logs.GetLoggerFromLevel(slog.LevelDebug))

	var got telemetry.AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(telemetry.AuditEnvelope) }).
		Return(nil).Once()

	ctx := telemetry.WithRequestID(context.Background(), "req-1")
	emitter.Emit(ctx, telemetry.AuditEvent{
		Type:     telemetry.AuditParticipantsRemoved,
		ActorID:  "A",
		ChatID:   "g1",
		Subjects: []string{"B"},
	})

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, telemetry.AuditParticipantsRemoved, got.EventType)
	assert.Equal(t, "messaging-service", got.Service)
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, "req-1", got.RequestID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "A", *got.UserID)
	assert.Equal(t, "g1", got.Payload.ChatID)
	assert.Equal(t, []string{"B"}, got.Payload.Subjects)
	assert.NotEmpty(t, got.OccurredAt)
}

func TestEmitOmitsAnonymousActor(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "svc", "test", logs.GetLoggerFromLevel(slog.LevelDebug))

	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID == nil && env.EventType == telemetry.AuditChatRetired
	})).Return(nil).Once()

	emitter.Emit(context.Background(), telemetry.AuditEvent{Type: telemetry.AuditChatRetired, ChatID: "c1"})

	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "svc", "test", logs.GetLoggerFromLevel(slog.LevelDebug))
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), telemetry.AuditEvent{Type: telemetry.AuditChatHidden})
	})
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), telemetry.AuditEvent{Type: telemetry.AuditChatCreated})
	})
}
