package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	if PositionLong != "LONG" || PositionFlat != "FLAT" {
		t.Error("Position constants have unexpected values")
	}
	if TradeSideLong != "long" {
		t.Errorf("TradeSideLong = %q, want %q", TradeSideLong, "long")
	}
}

func TestNormalizeBars(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	in := []Bar{
		{Timestamp: day(3), Close: 3},
		{Timestamp: day(1), Close: 1},
		{Timestamp: day(2), Close: 2},
		{Timestamp: day(2), Close: 22},
	}

	got := NormalizeBars(in)
	if len(got) != 3 {
		t.Fatalf("NormalizeBars returned %d bars, want 3", len(got))
	}
	want := []float64{1, 22, 3}
	for i, w := range want {
		if got[i].Close != w {
			t.Errorf("bar %d Close = %v, want %v", i, got[i].Close, w)
		}
	}
	if in[0].Close != 3 {
		t.Error("NormalizeBars modified its input")
	}
	if NormalizeBars(nil) != nil {
		t.Error("NormalizeBars(nil) should be nil")
	}
}

func TestNullFloatJSON(t *testing.T) {
	s := Series{Some(1.5), Null(), Some(math.NaN())}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[1.5,null,null]" {
		t.Errorf("Marshal = %s, want [1.5,null,null]", data)
	}

	var back Series
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back[0].Valid || back[0].Float64 != 1.5 || back[1].Valid || back[2].Valid {
		t.Errorf("Unmarshal = %+v", back)
	}
	if s.ValidCount() != 1 {
		t.Errorf("ValidCount = %d, want 1", s.ValidCount())
	}
	if s.At(10).Valid || s.At(-1).Valid {
		t.Error("At out of range should be null")
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"", Interval1d, false},
		{"1D", Interval1d, false},
		{"15m", Interval15m, false},
		{"2h", "", true},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInterval(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("ParseInterval(%q) err = %v, want ErrInvalidRequest", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := SupportedIntervals(); got[0] != "1m" || got[len(got)-1] != "1d" {
		t.Errorf("SupportedIntervals = %v, want 1m first and 1d last", got)
	}
}

func TestBarsPerYear(t *testing.T) {
	if got := Interval1d.BarsPerYear(false); got != 252 {
		t.Errorf("1d equity = %v, want 252", got)
	}
	if got := Interval1h.BarsPerYear(false); got != 1638 {
		t.Errorf("1h equity = %v, want 1638", got)
	}
	if got := Interval1d.BarsPerYear(true); got != 365 {
		t.Errorf("1d crypto = %v, want 365", got)
	}
	if got := Interval1h.BarsPerYear(true); got != 8760 {
		t.Errorf("1h crypto = %v, want 8760", got)
	}
}

func TestKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("symbol: %w", ErrInvalidRequest), "InvalidRequest"},
		{fmt.Errorf("fetch AAPL: %w", &TransientError{Err: errors.New("503")}), "DataUnavailable"},
		{Cancelled(ctx), "Cancelled"},
		{context.DeadlineExceeded, "Cancelled"},
		{ErrInvalidHorizon, "InvalidHorizon"},
		{errors.New("boom"), "Internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	transient := fmt.Errorf("bars: %w", &TransientError{Err: errors.New("timeout")})
	if !Retryable(transient) {
		t.Error("transient error should be retryable")
	}
	if !errors.Is(transient, ErrDataUnavailable) {
		t.Error("transient error should unwrap to ErrDataUnavailable")
	}
	if Retryable(fmt.Errorf("auth: %w", ErrDataUnavailable)) {
		t.Error("plain ErrDataUnavailable should not be retryable")
	}
}
