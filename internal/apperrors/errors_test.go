package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(NotFound("chat %s", "c1")))
	assert.True(t, IsDomain(Conflict("deleted")))
	assert.True(t, IsDomain(InvalidArgument("ids")))
	assert.True(t, IsDomain(Forbidden("author only")))

	assert.False(t, IsDomain(Infra("get chat", errors.New("connection reset"))))
	assert.False(t, IsDomain(errors.New("plain")))
}
