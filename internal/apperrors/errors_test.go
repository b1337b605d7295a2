package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorFormatting(t *testing.T) {
	err := New(CodeNotLeader, "actor is not the party leader")
	assert.Equal(t, "[NOT_LEADER] actor is not the party leader", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeRedisUnavailable, "failed to acquire lock", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotInParty, CodeOf(New(CodeNotInParty, "x")))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain error")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
