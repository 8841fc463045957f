package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

func TestSendMessageSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	cmd := services.SendMessageCommand{ChatID: "c1", Text: "oi", Recipients: []string{"B"}}
	messages.On("Send", mock.Anything, "A", cmd).Return(models.Message{ID: "m1", ChatID: "c1", Content: "oi"}, nil).Once()

	rec := serve(router, http.MethodPost, "/messages", `{"chat_id":"c1","text":"oi","recipients":["B"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "oi", msg.Content)
	messages.AssertExpectations(t)
}

func TestGetChatMessagesNotFound(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	messages.On("History", mock.Anything, "A", "missing").Return(nil, apperrors.NotFound("chat missing")).Once()

	rec := serve(router, http.MethodGet, "/chats/missing/messages", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	messages.AssertExpectations(t)
}

func TestLastMessages(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	messages.On("LastMessagePerChat", mock.Anything, "A", []string{"c1", "c2"}).Return(nil, nil).Once()

	rec := serve(router, http.MethodPost, "/messages/last", `{"chat_ids":["c1","c2"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
	messages.AssertExpectations(t)
}

func TestEditMessageConflict(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	messages.On("Edit", mock.Anything, "A", "m1", "new").Return(nil, apperrors.Conflict("message m1 is deleted")).Once()

	rec := serve(router, http.MethodPut, "/messages/m1", `{"text":"new"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkSeenAndDelivered(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	messages.On("MarkSeen", mock.Anything, "A", []string{"m1", "bad"}).Return([]models.Message{{ID: "m1"}}, nil).Once()
	messages.On("MarkDelivered", mock.Anything, "A", []string{"bad"}).Return(nil, apperrors.NotFound("none")).Once()

	rec := serve(router, http.MethodPatch, "/messages/seen", `{"ids":["m1","bad"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = serve(router, http.MethodPatch, "/messages/delivered", `{"ids":["bad"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	messages.AssertExpectations(t)
}

func TestDeleteMessagesRequiresIDs(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	rec := serve(router, http.MethodDelete, "/messages", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	messages.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessagesSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupRouter(new(mocks.ChatServiceMock), messages)

	deleted := []models.Message{{ID: "m1", Status: models.StatusDeleted, Content: models.DeletedPlaceholder}}
	messages.On("Delete", mock.Anything, "A", []string{"m1"}).Return(deleted, nil).Once()

	rec := serve(router, http.MethodDelete, "/messages", `{"ids":["m1"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.DeletedPlaceholder)
	messages.AssertExpectations(t)
}
