package port

import (
	"context"
	"time"

	"github.com/snapfulfil/order-router/internal/core/domain"
)

// CounterStore tracks per-partner daily order volume in an external
// key-value store. Increment is the sole mutation path; it must be
// atomic so concurrent workers never race on read-modify-write.
type CounterStore interface {
	// IncrementVolume adds one to the partner's counter for the given
	// UTC day and returns the new value.
	IncrementVolume(ctx context.Context, partner domain.Partner, day time.Time) (int64, error)

	// Volume returns the partner's counter for the given UTC day,
	// zero when no orders have been recorded yet.
	Volume(ctx context.Context, partner domain.Partner, day time.Time) (int64, error)
}
