package dispatcher

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyGasPriceCap_MultiplierBelowCap(t *testing.T) {
	d := &Dispatcher{cfg: Config{
		GasPriceMultiplier: decimal.NewFromFloat(1.1),
		MaxGasPriceGwei:    decimal.NewFromInt(500),
	}}
	baseFee := big.NewInt(20_000_000_000) // 20 gwei
	got := d.applyGasPriceCap(baseFee)
	want := big.NewInt(22_000_000_000) // 22 gwei
	assert.Equal(t, 0, got.Cmp(want))
}

func TestApplyGasPriceCap_ClampsAtMax(t *testing.T) {
	d := &Dispatcher{cfg: Config{
		GasPriceMultiplier: decimal.NewFromFloat(1.1),
		MaxGasPriceGwei:    decimal.NewFromInt(500),
	}}
	baseFee := big.NewInt(1_000_000_000_000) // 1000 gwei, spikes well past the cap
	got := d.applyGasPriceCap(baseFee)
	want := big.NewInt(500_000_000_000) // 500 gwei
	assert.Equal(t, 0, got.Cmp(want))
}

func TestApplyGasPriceCap_FractionalMultiplierNotTruncated(t *testing.T) {
	d := &Dispatcher{cfg: Config{
		GasPriceMultiplier: decimal.NewFromFloat(1.1),
		MaxGasPriceGwei:    decimal.NewFromInt(500),
	}}
	baseFee := big.NewInt(10_000_000_000) // 10 gwei
	got := d.applyGasPriceCap(baseFee)
	// A truncating multiplier (int part only) would leave this at 10 gwei;
	// the decimal multiply must preserve the 0.1 fraction.
	assert.NotEqual(t, 0, got.Cmp(baseFee))
	assert.Equal(t, 0, got.Cmp(big.NewInt(11_000_000_000)))
}

func TestFlashbotsOutcome_String(t *testing.T) {
	assert.Equal(t, "included", Included.String())
	assert.Equal(t, "not_included", NotIncluded.String())
	assert.Equal(t, "simulation_failed", SimulationFailed.String())
	assert.Equal(t, "send_failed", SendFailed.String())
}
