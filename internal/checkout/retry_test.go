package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRetryTransientErrors(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	calls := 0
	boom := errors.New("db down")
	err := p.Do(context.Background(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryBackoffDoubles(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	_ = p.Do(context.Background(), zap.New(core), "op", func(context.Context) error {
		return errors.New("db down")
	})

	entries := logs.FilterMessage("retrying").All()
	require.Len(t, entries, 2)
	first, _ := entries[0].ContextMap()["backoff"].(time.Duration)
	second, _ := entries[1].ContextMap()["backoff"].(time.Duration)
	assert.InDelta(t, float64(time.Millisecond), float64(first), float64(time.Microsecond))
	assert.InDelta(t, float64(2*time.Millisecond), float64(second), float64(time.Microsecond))
	assert.Equal(t, int64(1), entries[0].ContextMap()["attempt"])
}

func TestRetrySkipsBusinessErrors(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		return apperr.InsufficientStock("Tee", 1)
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 5, Backoff: time.Hour}
	calls := 0
	err := p.Do(ctx, zap.NewNop(), "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDecodePendingRejectsTampering(t *testing.T) {
	md := map[string]string{metaOrderNumber: "VG-1-AAAA", "checkout_parts": "1", "checkout_0": `{"n":"VG-1-BBBB"}`}
	_, err := decodePending(md)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	md["checkout_0"] = "{not json"
	_, err = decodePending(md)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
