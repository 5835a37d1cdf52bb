package pricing

import (
	"errors"
	"fmt"

	"ms-settlement/internal/config"
	"ms-settlement/internal/models"
)

var (
	ErrUnpriceable    = errors.New("booking has no passenger fare data to price")
	ErrUnknownGateway = errors.New("unknown payment gateway")
)

// Age-band fare multipliers in basis points. Applied per passenger before
// the single end-of-field rounding, so per-passenger cent drift cannot
// accumulate into the subtotal.
const (
	AdultFareBps  = 10000
	ChildFareBps  = 7500
	InfantFareBps = 1000

	infantMaxAge = 2
	childMaxAge  = 12
)

// Engine computes authoritative price breakdowns. Pure computation, no I/O.
type Engine struct {
	currency  string
	bufferBps int64
	schedules map[string]models.FeeSchedule
}

func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{
		currency:  cfg.Currency,
		bufferBps: cfg.VolatilityBufferBps,
		schedules: map[string]models.FeeSchedule{
			models.GatewayCard: {
				Gateway:    models.GatewayCard,
				RateBps:    cfg.CardFeeBps,
				FixedCents: cfg.CardFeeFixedCents,
			},
			models.GatewayWallet: {
				Gateway:    models.GatewayWallet,
				RateBps:    cfg.WalletFeeBps,
				FixedCents: cfg.WalletFeeFixedCents,
			},
		},
	}
}

// Schedule returns the fee schedule for a gateway.
func (e *Engine) Schedule(gateway string) (models.FeeSchedule, error) {
	schedule, ok := e.schedules[gateway]
	if !ok {
		return models.FeeSchedule{}, fmt.Errorf("%w: %s", ErrUnknownGateway, gateway)
	}
	return schedule, nil
}

// ComputeBreakdown prices a booking against one gateway's fee schedule:
//
//	subtotal = Σ base_fare × age multiplier
//	buffer   = subtotal × volatility bps
//	fee      = (subtotal + buffer) × gateway bps + gateway fixed
//	total    = subtotal + buffer + fee
//
// All arithmetic is integer cents; every field is rounded half-up exactly
// once, at the point the field is finalized.
func (e *Engine) ComputeBreakdown(passengers []models.Passenger, gateway string) (*models.PriceBreakdown, error) {
	if len(passengers) == 0 {
		return nil, ErrUnpriceable
	}

	schedule, err := e.Schedule(gateway)
	if err != nil {
		return nil, err
	}

	// Accumulate fare × multiplier products unrounded (in bps-cents) and
	// round the subtotal as one field.
	var subtotalBpsCents int64
	for _, p := range passengers {
		if p.BaseFareCents <= 0 {
			return nil, ErrUnpriceable
		}
		subtotalBpsCents += p.BaseFareCents * fareMultiplierBps(p.Age)
	}
	subtotal := roundHalfUpBps(subtotalBpsCents)

	buffer := applyBps(subtotal, e.bufferBps)
	fee := applyBps(subtotal+buffer, schedule.RateBps) + schedule.FixedCents
	total := subtotal + buffer + fee

	return &models.PriceBreakdown{
		Gateway:               gateway,
		Currency:              e.currency,
		SubtotalCents:         subtotal,
		VolatilityBufferBps:   e.bufferBps,
		VolatilityBufferCents: buffer,
		GatewayFeeCents:       fee,
		TotalCents:            total,
		Subtotal:              models.FormatCents(subtotal),
		VolatilityBuffer:      models.FormatCents(buffer),
		GatewayFee:            models.FormatCents(fee),
		Total:                 models.FormatCents(total),
	}, nil
}

func fareMultiplierBps(age int) int64 {
	switch {
	case age < infantMaxAge:
		return InfantFareBps
	case age < childMaxAge:
		return ChildFareBps
	default:
		return AdultFareBps
	}
}

// applyBps multiplies cents by a basis-point rate, rounding half-up once.
func applyBps(cents, bps int64) int64 {
	return roundHalfUpBps(cents * bps)
}

func roundHalfUpBps(bpsCents int64) int64 {
	return (bpsCents + 5000) / 10000
}
