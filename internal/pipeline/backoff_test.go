package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(4*time.Second, maxBackoff))
	assert.Equal(t, time.Duration(0), nextBackoff(0, maxBackoff))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("timeout")))
	assert.True(t, retryable(&domain.AggregationError{Err: domain.ErrNoFrames}))
	assert.False(t, retryable(&domain.AggregationError{Err: domain.ErrPixelCapExceeded}))
	assert.False(t, retryable(&domain.AggregationError{Err: domain.ErrGridMismatch}))
}

func TestSleep(t *testing.T) {
	p := &Pipeline{clock: clockwork.NewFakeClock()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, p.sleep(ctx, 0), "zero backoff never blocks")
	assert.False(t, p.sleep(ctx, time.Second), "cancelled context interrupts the wait")
}
