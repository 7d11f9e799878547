package builtins

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/strategy"
)

func waveBars(n int, phase float64) []domain.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 0.05*float64(i) + 10*math.Sin(float64(i)/7+phase)
		bars[i] = domain.Bar{
			Symbol:    "WAVE",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return bars
}

func TestRegistryHasBuiltins(t *testing.T) {
	reg := NewRegistry()
	want := []string{"always_long", "bbands_reversion", "ema_cross", "macd_cross", "rsi_reversion", "sma_cross"}
	got := reg.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Changing bars after index k must never change the signals up to k.
func TestNoLookahead(t *testing.T) {
	reg := NewRegistry()
	const n, k = 200, 120

	for _, name := range reg.List() {
		t.Run(name, func(t *testing.T) {
			base := waveBars(n, 0)
			perturbed := waveBars(n, 0)
			for i := k + 1; i < n; i++ {
				perturbed[i].Close *= 1.5
				perturbed[i].High *= 1.5
				perturbed[i].Low *= 0.5
			}

			a, err := strategy.Evaluate(reg, name, base, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			b, err := strategy.Evaluate(reg, name, perturbed, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(a) != n || len(b) != n {
				t.Fatalf("signal lengths %d/%d, want %d", len(a), len(b), n)
			}
			for i := 0; i <= k; i++ {
				if a[i] != b[i] {
					t.Fatalf("signal %d changed from %s to %s after perturbing the future", i, a[i], b[i])
				}
			}
		})
	}
}

func TestAlwaysLong(t *testing.T) {
	reg := NewRegistry()
	signals, err := strategy.Evaluate(reg, AlwaysLongName, waveBars(5, 0), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range signals {
		if p != domain.PositionLong {
			t.Errorf("signal %d = %s, want LONG", i, p)
		}
	}
}

func TestSMACrossFollowsTrend(t *testing.T) {
	// 30 rising closes then 30 falling closes.
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	for i := 0; i < 60; i++ {
		c := 100 + float64(i)
		if i >= 30 {
			c = 130 - 2*float64(i-30)
		}
		bars = append(bars, domain.Bar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c})
	}

	signals, err := strategy.Evaluate(NewRegistry(), SMACrossName, bars, nil, strategy.Params{"fast": 3, "slow": 10})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if signals[i] != domain.PositionFlat {
			t.Errorf("signal %d = %s, want FLAT during warm-up", i, signals[i])
		}
	}
	if signals[20] != domain.PositionLong {
		t.Errorf("signal 20 = %s, want LONG in the uptrend", signals[20])
	}
	if signals[55] != domain.PositionFlat {
		t.Errorf("signal 55 = %s, want FLAT in the downtrend", signals[55])
	}
}

func TestRSIReversionHoldsUntilOverbought(t *testing.T) {
	s, err := NewRSIReversion(strategy.Params{"period": 2})
	if err != nil {
		t.Fatal(err)
	}
	bars := waveBars(4, 0)
	ind := domain.IndicatorSeries{"rsi_2": domain.Series{
		domain.Null(), domain.Some(20), domain.Some(50), domain.Some(80),
	}}
	signals, err := strategy.Run(s, bars, ind)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Signals{domain.PositionFlat, domain.PositionLong, domain.PositionLong, domain.PositionFlat}
	for i := range want {
		if signals[i] != want[i] {
			t.Errorf("signal %d = %s, want %s", i, signals[i], want[i])
		}
	}
}

func TestBBandsReversion(t *testing.T) {
	s, err := NewBBandsReversion(strategy.Params{"period": 3})
	if err != nil {
		t.Fatal(err)
	}
	bars := waveBars(4, 0)
	bars[1].Close, bars[2].Close, bars[3].Close = 90, 99, 101
	ind := domain.IndicatorSeries{
		"bb_3_upper": domain.Series{domain.Null(), domain.Some(110), domain.Some(110), domain.Some(110)},
		"bb_3_mid":   domain.Series{domain.Null(), domain.Some(100), domain.Some(100), domain.Some(100)},
		"bb_3_lower": domain.Series{domain.Null(), domain.Some(95), domain.Some(95), domain.Some(95)},
	}
	signals, err := strategy.Run(s, bars, ind)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Signals{domain.PositionFlat, domain.PositionLong, domain.PositionLong, domain.PositionFlat}
	for i := range want {
		if signals[i] != want[i] {
			t.Errorf("signal %d = %s, want %s", i, signals[i], want[i])
		}
	}
}

func TestInvalidParams(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		name   string
		params strategy.Params
	}{
		{SMACrossName, strategy.Params{"fast": 50, "slow": 20}},
		{EMACrossName, strategy.Params{"fast": 0}},
		{RSIReversionName, strategy.Params{"oversold": 80, "overbought": 20}},
		{MACDCrossName, strategy.Params{"signal": 1.5}},
		{BBandsReversionName, strategy.Params{"stddev": 0}},
		{AlwaysLongName, strategy.Params{"period": 1}},
		{SMACrossName, strategy.Params{"window": 5}},
	}
	for _, tt := range tests {
		_, err := reg.New(tt.name, tt.params)
		if !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("New(%s, %v) err = %v, want ErrInvalidParameter", tt.name, tt.params, err)
		}
	}
}
