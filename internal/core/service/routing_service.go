package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/port"
)

// routingRule is one predicate/outcome pair in the cascade. Rules are
// evaluated top to bottom, first match wins, so their order in the
// slice is the priority order.
type routingRule struct {
	partner domain.Partner
	reason  domain.Reason
	matches func(domain.Order) bool
}

// RoutingService maps an order to a fulfillment partner. The cascade
// encodes static business eligibility (SKU sets, currency, item count);
// capacity is a separate, time-windowed check so the queue processor
// can compose fallback logic on top.
type RoutingService struct {
	rules    []routingRule
	caps     map[domain.Partner]int64 // 0 = unlimited
	counters port.CounterStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewRoutingService(usSKUs, refillSKUs []string, caps map[domain.Partner]int64, counters port.CounterStore, logger *zap.Logger) *RoutingService {
	us := toSet(usSKUs)
	refill := toSet(refillSKUs)

	s := &RoutingService{
		caps:     caps,
		counters: counters,
		logger:   logger,
		now:      time.Now,
	}
	s.rules = []routingRule{
		{
			partner: domain.PartnerFUS,
			reason:  domain.ReasonUSOrder,
			matches: func(o domain.Order) bool {
				if o.PresentmentCurrency != "USD" {
					return false
				}
				for _, item := range o.LineItems {
					if us[item.SKU] {
						return true
					}
				}
				return false
			},
		},
		{
			partner: domain.PartnerF3,
			reason:  domain.ReasonRefillSKU,
			matches: func(o domain.Order) bool {
				if len(o.LineItems) != 1 {
					return false
				}
				item := o.LineItems[0]
				return refill[item.SKU] && item.Quantity == 1
			},
		},
		{
			partner: domain.PartnerF1,
			reason:  domain.ReasonMultiItem,
			matches: func(o domain.Order) bool { return len(o.LineItems) > 1 },
		},
		{
			partner: domain.PartnerF2,
			reason:  domain.ReasonSingleItemDefault,
			matches: func(domain.Order) bool { return true },
		},
	}
	return s
}

// DeterminePartner never fails the caller: a malformed order falls
// through to the capacity-unlimited partner so fulfillment keeps
// moving even when routing input is broken.
func (s *RoutingService) DeterminePartner(order domain.Order) domain.RoutingDecision {
	if len(order.LineItems) == 0 {
		s.logger.Warn("order has no line items, using error fallback",
			zap.String("order_number", order.OrderNumber))
		return domain.RoutingDecision{Partner: domain.FallbackPartner, Reason: domain.ReasonErrorFallback}
	}

	for _, rule := range s.rules {
		if rule.matches(order) {
			return domain.RoutingDecision{Partner: rule.partner, Reason: rule.reason}
		}
	}

	// Unreachable while the last rule matches everything.
	return domain.RoutingDecision{Partner: domain.FallbackPartner, Reason: domain.ReasonErrorFallback}
}

// IsAtCapacity reports whether the partner has reached its daily cap.
// Counter-store failures are treated as not-at-capacity: caps are a
// soft business constraint and must never stop fulfillment.
func (s *RoutingService) IsAtCapacity(ctx context.Context, partner domain.Partner) bool {
	limit := s.caps[partner]
	if limit <= 0 {
		return false
	}

	volume, err := s.counters.Volume(ctx, partner, s.now())
	if err != nil {
		s.logger.Error("volume check failed, assuming not at capacity",
			zap.String("partner", string(partner)),
			zap.Error(err))
		return false
	}
	return volume >= limit
}

// IncrementVolume records one committed order against the partner's
// daily counter. Called exactly once per successfully dispatched order,
// for the partner actually used. Store errors are logged and dropped.
func (s *RoutingService) IncrementVolume(ctx context.Context, partner domain.Partner) {
	if _, err := s.counters.IncrementVolume(ctx, partner, s.now()); err != nil {
		s.logger.Error("volume increment failed",
			zap.String("partner", string(partner)),
			zap.Error(err))
	}
}

// CurrentVolume exposes today's counter for monitoring.
func (s *RoutingService) CurrentVolume(ctx context.Context, partner domain.Partner) (int64, error) {
	return s.counters.Volume(ctx, partner, s.now())
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
