// Package builtins provides the strategy implementations that ship with
// quantdesk. All of them are long-only.
package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/strategy"
)

// Register adds every built-in strategy to reg.
func Register(reg *strategy.Registry) {
	reg.Register(AlwaysLongName, "Hold a long position on every bar", nil, NewAlwaysLong)
	reg.Register(SMACrossName, "Long while the fast SMA is above the slow SMA", maCrossDefaults(SMACrossName), NewSMACross)
	reg.Register(EMACrossName, "Long while the fast EMA is above the slow EMA", maCrossDefaults(EMACrossName), NewEMACross)
	reg.Register(RSIReversionName, "Buy oversold RSI, sell overbought RSI", rsiDefaults, NewRSIReversion)
	reg.Register(MACDCrossName, "Long while MACD is above its signal line", macdDefaults, NewMACDCross)
	reg.Register(BBandsReversionName, "Buy below the lower Bollinger band, sell above the middle band", bbandsDefaults, NewBBandsReversion)
}

// NewRegistry returns a registry holding all built-in strategies.
func NewRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	Register(reg)
	return reg
}

// wholePositive checks that every key in p is an integer of at least 1.
func wholePositive(p strategy.Params, keys ...string) error {
	for _, k := range keys {
		v := p[k]
		if v < 1 || v != float64(int(v)) {
			return fmt.Errorf("%w: %s must be a positive whole number, got %v", domain.ErrInvalidParameter, k, v)
		}
	}
	return nil
}

// above reports whether a > b, treating null on either side as false.
func above(a, b domain.NullFloat) bool {
	return a.Valid && b.Valid && a.Float64 > b.Float64
}

func below(a, b domain.NullFloat) bool {
	return a.Valid && b.Valid && a.Float64 < b.Float64
}
