package port

import (
	"context"

	"github.com/snapfulfil/order-router/internal/core/domain"
)

// DispatchResult carries the partner's response to a dispatched order.
// The tracking reference is opaque to the router.
type DispatchResult struct {
	TrackingRef string
}

type Dispatcher interface {
	// Dispatch delivers the order to the partner endpoint. Transport
	// errors and non-2xx responses are returned as errors; the caller
	// decides whether to retry.
	Dispatch(ctx context.Context, endpoint string, order domain.Order) (DispatchResult, error)
}
