package orders

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const orderNumberPrefix = "ORD"

// NewOrderNumber returns ORD followed by a ULID: a millisecond timestamp and
// 80 bits of randomness, so collisions are not retried.
func NewOrderNumber(now time.Time) string {
	return orderNumberPrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
