package strategy

import (
	"errors"
	"testing"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name  string
	specs []indicator.Spec
	next  func(v *View) domain.Position
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) Indicators() []indicator.Spec { return s.specs }
func (s *stubStrategy) Next(v *View) domain.Position {
	if s.next == nil {
		return domain.PositionFlat
	}
	return s.next(v)
}

func stubFactory(name string) Factory {
	return func(Params) (Strategy, error) { return &stubStrategy{name: name}, nil }
}

func testBars(closes ...float64) []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", "stub", nil, stubFactory("test-strategy"))

	f, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	s, err := f(nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "test-strategy" {
		t.Errorf("factory built strategy with Name() = %q, want %q", s.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.New("nonexistent", nil); !errors.Is(err, domain.ErrUnknownStrategy) {
		t.Errorf("New err = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", "", nil, stubFactory("beta"))
	r.Register("alpha", "", nil, stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
	if infos := r.Describe(); infos[0].Name != "alpha" {
		t.Errorf("Describe()[0] = %q, want alpha", infos[0].Name)
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve(Params{"fast": 20, "slow": 50}, Params{"fast": 10})
	if err != nil {
		t.Fatal(err)
	}
	if got["fast"] != 10 || got["slow"] != 50 {
		t.Errorf("Resolve = %v", got)
	}
	if _, err := Resolve(Params{"fast": 20}, Params{"period": 3}); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("unknown key err = %v, want ErrInvalidParameter", err)
	}
}

func TestViewHidesFuture(t *testing.T) {
	bars := testBars(1, 2, 3)
	ind := domain.IndicatorSeries{"x": domain.Series{domain.Some(10), domain.Some(20), domain.Some(30)}}
	v := &View{bars: bars, ind: ind, i: 1}

	if got := v.Close(0); !got.Valid || got.Float64 != 2 {
		t.Errorf("Close(0) = %+v, want 2", got)
	}
	if got := v.Value("x", 1); !got.Valid || got.Float64 != 10 {
		t.Errorf("Value(x, 1) = %+v, want 10", got)
	}
	if v.Close(-1).Valid || v.Value("x", -1).Valid {
		t.Error("negative offsets must not reveal future bars")
	}
	if v.Close(2).Valid {
		t.Error("offset before the first bar should be null")
	}
	if v.Value("missing", 0).Valid {
		t.Error("unknown column should be null")
	}
}

func TestRunComputesRequiredIndicators(t *testing.T) {
	seen := false
	s := &stubStrategy{
		name:  "needs-sma",
		specs: []indicator.Spec{{Name: "sma", Params: indicator.Params{"period": 2}}},
		next: func(v *View) domain.Position {
			if v.Value("sma_2", 0).Valid {
				seen = true
				return domain.PositionLong
			}
			return domain.PositionFlat
		},
	}
	signals, err := Run(s, testBars(1, 2, 3, 4), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("strategy never saw the computed sma_2 column")
	}
	want := domain.Signals{domain.PositionFlat, domain.PositionLong, domain.PositionLong, domain.PositionLong}
	for i := range want {
		if signals[i] != want[i] {
			t.Errorf("signal %d = %s, want %s", i, signals[i], want[i])
		}
	}
}

func TestRunNormalizesUnknownPositions(t *testing.T) {
	s := &stubStrategy{name: "odd", next: func(*View) domain.Position { return "SHORT" }}
	signals, err := Run(s, testBars(1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range signals {
		if p != domain.PositionFlat {
			t.Errorf("signal %d = %s, want FLAT", i, p)
		}
	}
}

func TestWarmup(t *testing.T) {
	s := &stubStrategy{specs: []indicator.Spec{
		{Name: "sma", Params: indicator.Params{"period": 50}},
		{Name: "rsi"},
	}}
	got, err := Warmup(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != 49 {
		t.Errorf("Warmup = %d, want 49", got)
	}
}
