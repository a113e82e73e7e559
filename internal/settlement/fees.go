package settlement

import (
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/config"
)

var hundred = decimal.NewFromInt(100)

// relayerFee is the surcharge taken when the relayer fronts the transfer:
// a fixed percentage of the amount, zero when relaying is disabled.
// The same model applies to batch settlement and user redemption.
func relayerFee(amount decimal.Decimal, cfg config.BatchConfig) decimal.Decimal {
	if !cfg.RelayerEnabled {
		return decimal.Zero
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(cfg.RelayerSurchargePct))
	if err != nil || pct.IsNegative() {
		pct = decimal.NewFromFloat(0.1)
	}
	return amount.Mul(pct).Div(hundred)
}

func unitPayout(cfg config.SettlementConfig) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(cfg.UnitPayout))
	if err != nil || v.IsNegative() || v.IsZero() {
		return decimal.NewFromInt(1)
	}
	return v
}
