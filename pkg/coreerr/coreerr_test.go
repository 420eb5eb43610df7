package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIdentityAndString(t *testing.T) {
	assert.Equal(t, "CycleError", CycleError.String())
	assert.NotEqual(t, CycleError, InvalidHandleError)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(InvalidBufferError, "bad offset", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, As(err, InvalidBufferError))
	assert.False(t, As(err, CycleError))
}
