package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/port"
)

type dispatchPayload struct {
	OrderNumber     string            `json:"order_number"`
	LineItems       []domain.LineItem `json:"line_items"`
	ShippingAddress map[string]string `json:"shipping_address,omitempty"`
}

type dispatchResponse struct {
	TrackingNumber string `json:"tracking_number"`
}

// HTTPDispatcher posts orders to partner endpoints. Any 2xx response
// counts as accepted; the optional tracking number in the body is
// passed through untouched.
type HTTPDispatcher struct {
	client *http.Client
	logger *zap.Logger
}

func NewHTTPDispatcher(timeout time.Duration, logger *zap.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, endpoint string, order domain.Order) (port.DispatchResult, error) {
	payload := dispatchPayload{
		OrderNumber:     order.OrderNumber,
		LineItems:       order.LineItems,
		ShippingAddress: order.ShippingAddress,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return port.DispatchResult{}, fmt.Errorf("marshal order %s: %w", order.OrderNumber, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return port.DispatchResult{}, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return port.DispatchResult{}, fmt.Errorf("post to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return port.DispatchResult{}, fmt.Errorf("partner returned status %d", resp.StatusCode)
	}

	// Response body is optional; a missing or malformed body is still
	// a successful dispatch.
	var out dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		d.logger.Debug("unparseable partner response body",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}

	return port.DispatchResult{TrackingRef: out.TrackingNumber}, nil
}

var _ port.Dispatcher = (*HTTPDispatcher)(nil)
