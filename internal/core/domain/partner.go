package domain

// Partner identifies a fulfillment provider.
type Partner string

const (
	PartnerF1  Partner = "F1"
	PartnerF2  Partner = "F2"
	PartnerF3  Partner = "F3"
	PartnerFUS Partner = "F-US"
)

// FallbackPartner receives orders when routing fails or the preferred
// partner is at capacity. It must be configured without a daily cap so
// it can always accept.
const FallbackPartner = PartnerF1

// Reason explains why a routing decision picked its partner.
type Reason string

const (
	ReasonUSOrder           Reason = "us_order"
	ReasonRefillSKU         Reason = "refill_sku"
	ReasonMultiItem         Reason = "multi_item"
	ReasonSingleItemDefault Reason = "single_item_default"
	ReasonErrorFallback     Reason = "error_fallback"
	ReasonCapacityFallback  Reason = "capacity_fallback"
)

type RoutingDecision struct {
	Partner Partner `json:"partner"`
	Reason  Reason  `json:"reason"`
}
