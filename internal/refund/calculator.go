package refund

import (
	"errors"
	"time"

	"ms-settlement/internal/models"
)

var ErrNothingRefundable = errors.New("nothing refundable after gateway fee")

// PolicyStep is one breakpoint of the customer-cancellation decay schedule:
// bookings cancelled before MaxHours elapsed refund RefundBps of the
// refundable base.
type PolicyStep struct {
	MaxHours  int
	RefundBps int64
}

// Policy is the cancellation refund schedule. Steps must be ordered by
// MaxHours ascending; FinalBps applies past the last step.
type Policy struct {
	Steps    []PolicyStep
	FinalBps int64
}

// DefaultPolicy mirrors the ops-approved schedule: full refund inside 24h,
// half inside 72h, a quarter after that.
func DefaultPolicy() Policy {
	return Policy{
		Steps: []PolicyStep{
			{MaxHours: 24, RefundBps: 10000},
			{MaxHours: 72, RefundBps: 5000},
		},
		FinalBps: 2500,
	}
}

// Calculate computes the refund for a paid booking. Pure computation.
//
// Gateway processing fees are never refundable. Airline-initiated
// cancellations refund 100% of the refundable base regardless of elapsed
// time; customer cancellations follow the decay schedule. The cents amount
// is rounded half-up once from the basis-point product.
func (p Policy) Calculate(totalPaidCents, gatewayFeeCents int64, elapsed time.Duration, airlineCancel bool) (*models.RefundCalculation, error) {
	base := totalPaidCents - gatewayFeeCents
	if base <= 0 {
		return nil, ErrNothingRefundable
	}

	bps := int64(10000)
	if !airlineCancel {
		bps = p.rateFor(elapsed)
	}

	amount := (base*bps + 5000) / 10000

	return &models.RefundCalculation{
		TotalPaidCents:      totalPaidCents,
		GatewayFeeCents:     gatewayFeeCents,
		RefundableBaseCents: base,
		AppliedBps:          bps,
		AmountCents:         amount,
		Amount:              models.FormatCents(amount),
	}, nil
}

func (p Policy) rateFor(elapsed time.Duration) int64 {
	hours := elapsed.Hours()
	for _, step := range p.Steps {
		if hours < float64(step.MaxHours) {
			return step.RefundBps
		}
	}
	return p.FinalBps
}
