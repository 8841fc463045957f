package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/models"
)

func TestEnsureRegistersAuthenticatedUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.chats.CreateIndividual(ctx, "alice", CreateChatCommand{ParticipantID: "bob"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, h.users.Ensure(ctx, id, id, ""))
	}
	require.NoError(t, h.users.Ensure(ctx, "bob", "", "bob@mail.test"))

	chat, err := h.chats.CreateIndividual(ctx, "alice", CreateChatCommand{Name: "bob", ParticipantID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, chat.ParticipantIDs)

	_, err = h.chats.CreateGroup(ctx, "alice", CreateGroupCommand{Name: "g", ParticipantIDs: []string{"bob", "carol"}})
	require.NoError(t, err)

	bob, err := h.store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.Name)
	assert.Equal(t, "bob@mail.test", bob.Email)

	assert.ErrorIs(t, h.users.Ensure(ctx, " ", "x", ""), apperrors.ErrInvalidArgument)
}

func TestDeleteUserLeavesParticipantLists(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()
	group := h.group(t, "A", "B", "C")
	h.pusher.reset()

	require.NoError(t, h.users.Delete(ctx, "B"))

	_, err := h.store.GetUser(ctx, "B")
	assert.Error(t, err)

	stored, err := h.store.GetChat(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, stored.ParticipantIDs)
	assert.True(t, stored.Active)

	for _, user := range []string{"A", "C"} {
		events := h.pusher.events(user, models.EventChat)
		require.Len(t, events, 1, user)
		assert.Equal(t, []string{"C"}, decode[models.ChatEvent](t, events[0].Data).ParticipantIDs)
	}
	assert.Empty(t, h.pusher.events("B", models.EventChat))
}

func TestDeleteCreatorRetiresAbandonedChat(t *testing.T) {
	h := newHarness(t, "A", "B")
	ctx := context.Background()
	chat := h.individual(t, "A", "B")
	require.NoError(t, h.chats.HideForUser(ctx, "B", chat.ID))

	require.NoError(t, h.users.Delete(ctx, "A"))

	stored, err := h.store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestDeleteUnknownUser(t *testing.T) {
	h := newHarness(t)

	err := h.users.Delete(context.Background(), "ghost")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
