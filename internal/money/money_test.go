package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCentsRoundTrip(t *testing.T) {
	assert.Equal(t, int64(4919), ToCents(MustParse("49.19")))
	assert.Equal(t, "49.19", Format(FromCents(4919)))
	assert.Equal(t, int64(-250), ToCents(MustParse("-2.50")))
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", Format(Round2(MustParse("0.125"))))
	assert.Equal(t, "-0.13", Format(Round2(MustParse("-0.125"))))
	assert.Equal(t, "3.20", Format(Round2(MustParse("3.2"))))
}
