package turnloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelToken_NotCancelledInitially(t *testing.T) {
	c := NewCancelToken()
	assert.False(t, c.IsCancelled())
}

func TestCancelToken_CancelDoesNotFireCallbackOnItsOwn(t *testing.T) {
	c := NewCancelToken()
	fired := false
	c.OnCancel(func() { fired = true })
	c.Cancel()

	assert.True(t, c.IsCancelled())
	assert.False(t, fired)
}

func TestCancelToken_FireCallbackInvokesExactlyOnce(t *testing.T) {
	c := NewCancelToken()
	count := 0
	c.OnCancel(func() { count++ })
	c.Cancel()

	c.FireCallback()
	c.FireCallback()
	c.FireCallback()

	assert.Equal(t, 1, count)
}

func TestCancelToken_FireCallbackWithNoRegisteredCallbackIsANoOp(t *testing.T) {
	c := NewCancelToken()
	c.Cancel()
	assert.NotPanics(t, func() { c.FireCallback() })
}
