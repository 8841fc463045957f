package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/mocks"
)

func TestDeleteMe(t *testing.T) {
	users := new(mocks.UserServiceMock)
	router := setupRouterWithUsers(new(mocks.ChatServiceMock), new(mocks.MessageServiceMock), users)

	users.On("Delete", mock.Anything, "A").Return(nil).Once()

	rec := serve(router, http.MethodDelete, "/users/me", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	users.AssertExpectations(t)
}

func TestDeleteMeUnknownUser(t *testing.T) {
	users := new(mocks.UserServiceMock)
	router := setupRouterWithUsers(new(mocks.ChatServiceMock), new(mocks.MessageServiceMock), users)

	users.On("Delete", mock.Anything, "A").Return(apperrors.NotFound("user A")).Once()

	rec := serve(router, http.MethodDelete, "/users/me", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	users.AssertExpectations(t)
}
