package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestMemoryStoreRejectsSecondActivePairChat(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.CreateChat(ctx, models.Chat{ID: "c1", CreatorID: "a", Type: models.ChatTypeIndividual, Active: true, ParticipantIDs: []string{"b"}})
	require.NoError(t, err)

	_, err = store.CreateChat(ctx, models.Chat{ID: "c2", CreatorID: "b", Type: models.ChatTypeIndividual, Active: true, ParticipantIDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrDuplicateChat)

	retired, err := store.Retire(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, retired)

	_, err = store.CreateChat(ctx, models.Chat{ID: "c3", CreatorID: "b", Type: models.ChatTypeIndividual, Active: true, ParticipantIDs: []string{"a"}})
	require.NoError(t, err)

	found, err := store.FindIndividualChat(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "c3", found.ID)
}

func TestMemoryStoreRetireOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateChat(ctx, models.Chat{ID: "g", CreatorID: "a", Type: models.ChatTypeGroup, Active: true})
	require.NoError(t, err)

	first, err := store.Retire(ctx, "g")
	require.NoError(t, err)
	second, err := store.Retire(ctx, "g")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestMemoryStoreReactivateIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, won, err := store.Reactivate(ctx, "a", "c")
	require.NoError(t, err)
	assert.False(t, won)

	_, err = store.UpsertHide(ctx, "a", "c")
	require.NoError(t, err)

	hide, won, err := store.Reactivate(ctx, "a", "c")
	require.NoError(t, err)
	assert.True(t, won)
	require.NotNil(t, hide.ReactivatedAt)
	assert.True(t, hide.ReactivatedAt.After(hide.HiddenAt))

	_, won, err = store.Reactivate(ctx, "a", "c")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemoryStoreListMessagesAfterCutoff(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	m1, err := store.CreateMessage(ctx, models.Message{ID: "m1", ChatID: "c"})
	require.NoError(t, err)
	hide, err := store.UpsertHide(ctx, "a", "c")
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, models.Message{ID: "m2", ChatID: "c"})
	require.NoError(t, err)

	all, err := store.ListMessages(ctx, "c", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, m1.ID, all[0].ID)

	visible, err := store.ListMessages(ctx, "c", &hide.HiddenAt)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "m2", visible[0].ID)

	last, err := store.LastMessage(ctx, "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "m2", last.ID)

	_, err = store.LastMessage(ctx, "empty", nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryStoreUpdateContentRefusesDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateMessage(ctx, models.Message{ID: "m", ChatID: "c", Content: "hi", Status: models.StatusSent})
	require.NoError(t, err)

	edited, err := store.UpdateContent(ctx, "m", "hello")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEdited, edited.Status)

	_, err = store.MarkDeleted(ctx, []string{"m", "m"}, models.DeletedPlaceholder)
	require.NoError(t, err)

	_, err = store.UpdateContent(ctx, "m", "again")
	assert.ErrorIs(t, err, ErrMessageDeleted)

	_, err = store.UpdateContent(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryStoreSeenStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateMessage(ctx, models.Message{ID: "m", ChatID: "c", SeenStatus: models.SeenSent})
	require.NoError(t, err)

	changed, err := store.AdvanceSeenStatus(ctx, []string{"m"}, models.SeenSeen)
	require.NoError(t, err)
	assert.Len(t, changed, 1)

	changed, err = store.AdvanceSeenStatus(ctx, []string{"m"}, models.SeenDelivered)
	require.NoError(t, err)
	assert.Empty(t, changed)

	msg, err := store.GetMessage(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, models.SeenSeen, msg.SeenStatus)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateChat(ctx, models.Chat{ID: "g", CreatorID: "a", Type: models.ChatTypeGroup, Active: true, ParticipantIDs: []string{"b", "c"}})
	require.NoError(t, err)

	chat, err := store.GetChat(ctx, "g")
	require.NoError(t, err)
	chat.ParticipantIDs[0] = "zzz"

	again, err := store.GetChat(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, again.ParticipantIDs)
}

func TestMemoryStoreMarkDeletedSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateMessage(ctx, models.Message{ID: "m", ChatID: "c", Content: "hi", Status: models.StatusSent})
	require.NoError(t, err)

	first, err := store.MarkDeleted(ctx, []string{"m"}, models.DeletedPlaceholder)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := store.MarkDeleted(ctx, []string{"m"}, "other")
	require.NoError(t, err)
	assert.Empty(t, again)

	msg, err := store.GetMessage(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, models.DeletedPlaceholder, msg.Content)
	assert.Equal(t, first[0].UpdatedAt, msg.UpdatedAt)
}

func TestMemoryStoreUpsertUserKeepsProfile(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.UpsertUser(ctx, models.User{ID: "u", Name: "Ana", Email: "ana@mail.test"})
	require.NoError(t, err)
	require.NoError(t, store.SetOnline(ctx, "u", true))

	again, err := store.UpsertUser(ctx, models.User{ID: "u"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.Name)
	assert.Equal(t, "ana@mail.test", again.Email)
	assert.True(t, again.Online)
	assert.Equal(t, created.CreatedAt, again.CreatedAt)

	renamed, err := store.UpsertUser(ctx, models.User{ID: "u", Name: "Ana Maria"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", renamed.Name)
}
