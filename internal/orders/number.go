package orders

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const NumberPrefix = "VG"

var suffixSpace = big.NewInt(36 * 36 * 36 * 36)

// NewNumber returns VG-<base36 unix millis>-<4 random base36 chars>, upper case.
func NewNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, suffixSpace)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		n = big.NewInt(now.UnixNano() % suffixSpace.Int64())
	}
	suffix := strconv.FormatInt(n.Int64(), 36)
	suffix = strings.Repeat("0", 4-len(suffix)) + suffix
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	return strings.ToUpper(NumberPrefix + "-" + ts + "-" + suffix)
}
