package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimited(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, l.Wait(context.Background()))
	}

	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))
}

func TestBurstEqualsQPS(t *testing.T) {
	l := NewLimiter(3)
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Wait(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestWaitHonorsContext(t *testing.T) {
	l := NewLimiter(1)
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
