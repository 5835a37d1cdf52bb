package pricing_test

import (
	"testing"

	"ms-settlement/internal/config"
	"ms-settlement/internal/models"
	"ms-settlement/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.PricingConfig {
	return config.PricingConfig{
		Currency:            "usd",
		VolatilityBufferBps: 300,
		CardFeeBps:          290,
		CardFeeFixedCents:   30,
		WalletFeeBps:        349,
		WalletFeeFixedCents: 49,
	}
}

func TestComputeBreakdownWalletScenario(t *testing.T) {
	// $500.00 subtotal, 3% buffer, wallet schedule 3.49% + $0.49.
	// buffer = 1500, fee = round(51500 * 0.0349) + 49 = 1797 + 49 = 1846.
	engine := pricing.NewEngine(testConfig())

	passengers := []models.Passenger{
		{Age: 30, BaseFareCents: 25000},
		{Age: 28, BaseFareCents: 25000},
	}

	breakdown, err := engine.ComputeBreakdown(passengers, models.GatewayWallet)
	require.NoError(t, err)

	assert.Equal(t, int64(50000), breakdown.SubtotalCents)
	assert.Equal(t, int64(1500), breakdown.VolatilityBufferCents)
	assert.Equal(t, int64(1846), breakdown.GatewayFeeCents)
	assert.Equal(t, int64(53346), breakdown.TotalCents)
	assert.Equal(t, "533.46", breakdown.Total)
}

func TestComputeBreakdownTotalIsSumOfFields(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	passengers := []models.Passenger{
		{Age: 41, BaseFareCents: 73311},
		{Age: 9, BaseFareCents: 73311},
		{Age: 1, BaseFareCents: 73311},
	}

	for _, gw := range []string{models.GatewayCard, models.GatewayWallet} {
		breakdown, err := engine.ComputeBreakdown(passengers, gw)
		require.NoError(t, err)
		assert.Equal(t, breakdown.SubtotalCents+breakdown.VolatilityBufferCents+breakdown.GatewayFeeCents,
			breakdown.TotalCents, "total must equal subtotal + buffer + fee for %s", gw)
	}
}

func TestComputeBreakdownDiffersPerGateway(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	passengers := []models.Passenger{{Age: 35, BaseFareCents: 50000}}

	card, err := engine.ComputeBreakdown(passengers, models.GatewayCard)
	require.NoError(t, err)
	wallet, err := engine.ComputeBreakdown(passengers, models.GatewayWallet)
	require.NoError(t, err)

	assert.Equal(t, card.SubtotalCents, wallet.SubtotalCents)
	assert.NotEqual(t, card.TotalCents, wallet.TotalCents,
		"differing fee schedules must yield differing totals")
}

func TestComputeBreakdownAgeMultipliers(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	// One adult, one child (75%), one infant (10%) on a $100 base fare.
	passengers := []models.Passenger{
		{Age: 30, BaseFareCents: 10000},
		{Age: 5, BaseFareCents: 10000},
		{Age: 0, BaseFareCents: 10000},
	}

	breakdown, err := engine.ComputeBreakdown(passengers, models.GatewayCard)
	require.NoError(t, err)
	assert.Equal(t, int64(10000+7500+1000), breakdown.SubtotalCents)
}

func TestComputeBreakdownRoundsOncePerField(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	// 3 children at $33.33: each product is 33.33 * 0.75 = 24.9975.
	// Rounding per passenger would give 3 * 2500 = 7500; rounding the
	// summed product once gives round(7499.25) = 7499.
	passengers := []models.Passenger{
		{Age: 6, BaseFareCents: 3333},
		{Age: 7, BaseFareCents: 3333},
		{Age: 8, BaseFareCents: 3333},
	}

	breakdown, err := engine.ComputeBreakdown(passengers, models.GatewayCard)
	require.NoError(t, err)
	assert.Equal(t, int64(7499), breakdown.SubtotalCents)
}

func TestComputeBreakdownUnpriceable(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	_, err := engine.ComputeBreakdown(nil, models.GatewayCard)
	assert.ErrorIs(t, err, pricing.ErrUnpriceable)

	_, err = engine.ComputeBreakdown([]models.Passenger{{Age: 30, BaseFareCents: 0}}, models.GatewayCard)
	assert.ErrorIs(t, err, pricing.ErrUnpriceable)
}

func TestComputeBreakdownUnknownGateway(t *testing.T) {
	engine := pricing.NewEngine(testConfig())

	_, err := engine.ComputeBreakdown([]models.Passenger{{Age: 30, BaseFareCents: 1000}}, "cash")
	assert.ErrorIs(t, err, pricing.ErrUnknownGateway)
}
