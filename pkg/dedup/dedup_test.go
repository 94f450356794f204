package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	d := New(time.Minute)

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess("b"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
	assert.Equal(t, 2, d.Len())
}

func TestShouldProcessAfterExpiry(t *testing.T) {
	d := New(20 * time.Millisecond)

	assert.True(t, d.ShouldProcess("a"))
	assert.Eventually(t, func() bool { return d.ShouldProcess("a") }, time.Second, 10*time.Millisecond)
}
