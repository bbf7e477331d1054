package orders

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusProcessing, StatusCancelled}: true,
		{StatusShipped, StatusDelivered}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("refunded", StatusPending))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("lost").Valid())
	assert.False(t, Status("lost").Terminal())
	assert.False(t, StatusCancelled.CustomerVisible())
	assert.True(t, StatusShipped.CustomerVisible())
}

var numberFormat = regexp.MustCompile(`^VG-[0-9A-Z]+-[0-9A-Z]{4}$`)

func TestNewNumber(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n := NewNumber(now)
		assert.Regexp(t, numberFormat, n)
		seen[n] = true
	}
	// 36^4 suffixes; 200 draws colliding more than a handful means a broken source
	assert.Greater(t, len(seen), 190)
}
