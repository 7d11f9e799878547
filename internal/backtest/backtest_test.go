package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/projection"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy/builtins"
	"quantdesk/internal/util"
)

type fakeProvider struct {
	src marketdata.Source
	err error
}

func (p *fakeProvider) Source(domain.Credentials) (marketdata.Source, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.src, nil
}

func barsSource(bars []domain.Bar) marketdata.Source {
	return marketdata.SourceFunc(func(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return bars, nil
	})
}

func linearBars(n int, from, to float64) []domain.Bar {
	start := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := from + (to-from)*float64(i)/float64(n-1)
		bars[i] = domain.Bar{Symbol: "SPY", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return bars
}

type memRunLog struct {
	mu   sync.Mutex
	runs []store.RunRecord
	err  error
}

func (m *memRunLog) SaveRun(_ context.Context, rec *store.RunRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = fmt.Sprintf("run-%d", len(m.runs)+1)
	rec.CreatedAt = time.Now()
	m.runs = append(m.runs, *rec)
	return nil
}

func (m *memRunLog) GetRun(_ context.Context, id string) (*store.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRunLog) ListRuns(context.Context, int) ([]store.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.RunRecord(nil), m.runs...), nil
}

func fixedClock() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func newTestBacktester(src marketdata.Source, opts ...Option) *Backtester {
	opts = append([]Option{WithClock(fixedClock), WithLogger(util.Discard())}, opts...)
	return NewBacktester(&fakeProvider{src: src}, builtins.NewRegistry(), util.NewTradingCalendar(), opts...)
}

func baseRequest() Request {
	return Request{
		Symbol:          "SPY",
		StartDate:       "2023-01-03",
		EndDate:         "2023-12-31",
		StartingCapital: 10000,
		StrategyName:    builtins.AlwaysLongName,
	}
}

func TestRunAlwaysLongDoubling(t *testing.T) {
	bt := newTestBacktester(barsSource(linearBars(252, 100, 200)))

	res, err := bt.Run(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	perf := res.Performance
	if perf.EndCapital != 20000 {
		t.Errorf("end_capital = %v, want 20000", perf.EndCapital)
	}
	if perf.TotalReturnPct != 100 {
		t.Errorf("total_return = %v, want 100", perf.TotalReturnPct)
	}
	if perf.MaxDrawdownPct != 0 {
		t.Errorf("max_drawdown = %v, want 0", perf.MaxDrawdownPct)
	}
	if perf.BHReturnPct != 100 {
		t.Errorf("bh_return = %v, want 100", perf.BHReturnPct)
	}

	if len(res.Chart.Dates) != 252 || len(res.Equity.Equity) != 252 {
		t.Errorf("chart/equity lengths = %d/%d, want 252", len(res.Chart.Dates), len(res.Equity.Equity))
	}
	if res.Chart.Dates[0] != "2023-01-03" {
		t.Errorf("first date = %q, want 2023-01-03", res.Chart.Dates[0])
	}

	wantHorizon := projection.DefaultHorizon(252)
	proj := res.Equity.Projection
	if len(proj.Dates) != wantHorizon || len(proj.Mid) != wantHorizon {
		t.Fatalf("projection length = %d, want %d", len(proj.Dates), wantHorizon)
	}
	for i := range proj.Mid {
		if proj.Lower[i] > proj.Mid[i] || proj.Mid[i] > proj.Upper[i] {
			t.Errorf("projection[%d] not ordered: %v %v %v", i, proj.Lower[i], proj.Mid[i], proj.Upper[i])
		}
	}

	if len(res.Trades) != 1 || !res.Trades[0].Forced {
		t.Errorf("trades = %+v, want one forced trade", res.Trades)
	}
	if res.RunID != "" {
		t.Errorf("RunID = %q without a run log", res.RunID)
	}
	if res.Raw == nil || len(res.Raw.Signals) != 252 {
		t.Error("Raw intermediates missing")
	}
}

func TestRunEmptyBars(t *testing.T) {
	bt := newTestBacktester(barsSource(nil))
	_, err := bt.Run(context.Background(), baseRequest())
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
	if !strings.Contains(err.Error(), "at least 2") {
		t.Errorf("message %q does not state the minimum", err)
	}
}

func TestRunWarmupMinimum(t *testing.T) {
	bt := newTestBacktester(barsSource(linearBars(30, 100, 120)))
	req := baseRequest()
	req.StrategyName = builtins.SMACrossName
	_, err := bt.Run(context.Background(), req)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
	if !strings.Contains(err.Error(), "at least 50") {
		t.Errorf("message %q does not state the minimum", err)
	}
}

func TestRunValidation(t *testing.T) {
	zero, neg := 0, -3
	tests := []struct {
		name   string
		modify func(*Request)
		want   error
	}{
		{"empty symbol", func(r *Request) { r.Symbol = " " }, domain.ErrInvalidRequest},
		{"bad start", func(r *Request) { r.StartDate = "yesterday" }, domain.ErrInvalidRequest},
		{"start after end", func(r *Request) { r.StartDate, r.EndDate = "2024-01-01", "2023-01-01" }, domain.ErrInvalidRequest},
		{"zero capital", func(r *Request) { r.StartingCapital = 0 }, domain.ErrInvalidRequest},
		{"bad interval", func(r *Request) { r.Interval = "4h" }, domain.ErrInvalidRequest},
		{"missing strategy", func(r *Request) { r.StrategyName = "" }, domain.ErrInvalidRequest},
		{"unknown strategy", func(r *Request) { r.StrategyName = "moon" }, domain.ErrUnknownStrategy},
		{"bad strategy param", func(r *Request) {
			r.StrategyName = builtins.SMACrossName
			r.StrategyParams = map[string]float64{"fast": -1}
		}, domain.ErrInvalidParameter},
		{"unknown indicator", func(r *Request) { r.ActiveIndicators = []string{"vwma"} }, domain.ErrUnknownIndicator},
		{"bad indicator param", func(r *Request) { r.ActiveIndicators = []string{"sma:0"} }, domain.ErrInvalidParameter},
		{"zero horizon", func(r *Request) { r.HorizonBars = &zero }, domain.ErrInvalidHorizon},
		{"negative horizon", func(r *Request) { r.HorizonBars = &neg }, domain.ErrInvalidHorizon},
		{"future start", func(r *Request) { r.StartDate, r.EndDate = "2030-01-01", "2030-02-01" }, domain.ErrInvalidRequest},
	}

	fetched := false
	src := marketdata.SourceFunc(func(context.Context, string, domain.Interval, time.Time, time.Time) ([]domain.Bar, error) {
		fetched = true
		return linearBars(252, 100, 200), nil
	})
	bt := newTestBacktester(src)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.modify(&req)
			_, err := bt.Run(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if fetched {
		t.Error("invalid requests must not reach the market-data source")
	}
}

func TestRunExplicitHorizonAndIndicators(t *testing.T) {
	bt := newTestBacktester(barsSource(linearBars(100, 50, 80)))
	req := baseRequest()
	h := 7
	req.HorizonBars = &h
	req.ActiveIndicators = []string{"sma:5", "bbands"}

	res, err := bt.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(res.Equity.Projection.Dates); got != 7 {
		t.Errorf("projection length = %d, want 7", got)
	}
	sma, ok := res.Chart.Indicators["sma_5"]
	if !ok {
		t.Fatalf("chart indicators = %v, want sma_5", keys(res.Chart.Indicators))
	}
	if len(sma) != 100 || sma[3].Valid || !sma[4].Valid {
		t.Errorf("sma_5 warm-up wrong: len=%d [3]=%v [4]=%v", len(sma), sma[3], sma[4])
	}
	for _, col := range []string{"bb_20_upper", "bb_20_mid", "bb_20_lower"} {
		if _, ok := res.Chart.Indicators[col]; !ok {
			t.Errorf("missing chart column %s", col)
		}
	}
}

func TestRunProviderError(t *testing.T) {
	bt := NewBacktester(
		&fakeProvider{err: fmt.Errorf("%w: no credentials", domain.ErrDataUnavailable)},
		builtins.NewRegistry(), util.NewTradingCalendar(), WithClock(fixedClock), WithLogger(util.Discard()),
	)
	_, err := bt.Run(context.Background(), baseRequest())
	if domain.Kind(err) != "DataUnavailable" {
		t.Errorf("kind = %q (%v), want DataUnavailable", domain.Kind(err), err)
	}
}

func TestRunFetchError(t *testing.T) {
	src := marketdata.SourceFunc(func(context.Context, string, domain.Interval, time.Time, time.Time) ([]domain.Bar, error) {
		return nil, &domain.TransientError{Err: errors.New("503 service unavailable")}
	})
	bt := newTestBacktester(src)
	_, err := bt.Run(context.Background(), baseRequest())
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	if !strings.Contains(err.Error(), "SPY") {
		t.Errorf("error %q does not name the symbol", err)
	}
}

func TestRunCancelled(t *testing.T) {
	bt := newTestBacktester(barsSource(linearBars(252, 100, 200)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bt.Run(ctx, baseRequest())
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if errors.Is(err, domain.ErrDataUnavailable) {
		t.Error("cancellation must be distinct from DataUnavailable")
	}
}

func TestRunClampsFutureEnd(t *testing.T) {
	var gotEnd time.Time
	src := marketdata.SourceFunc(func(_ context.Context, _ string, _ domain.Interval, _, end time.Time) ([]domain.Bar, error) {
		gotEnd = end
		return linearBars(50, 100, 110), nil
	})
	bt := newTestBacktester(src)
	req := baseRequest()
	req.EndDate = "2030-01-01"
	if _, err := bt.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !gotEnd.Equal(fixedClock()) {
		t.Errorf("end = %v, want clamped to %v", gotEnd, fixedClock())
	}
}

func TestRunRecordsRun(t *testing.T) {
	runs := &memRunLog{}
	bt := newTestBacktester(barsSource(linearBars(60, 100, 130)), WithRunLog(runs))
	req := baseRequest()
	req.Credentials = domain.Credentials{APIKey: "key-123", APISecret: "secret-456"}

	res, err := bt.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", res.RunID)
	}
	rec, err := runs.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Symbol != "SPY" || rec.Strategy != builtins.AlwaysLongName || rec.Interval != "1d" {
		t.Errorf("record = %+v", rec)
	}
	if strings.Contains(string(rec.Request), "secret-456") || strings.Contains(string(rec.Request), "key-123") {
		t.Errorf("stored request leaks credentials: %s", rec.Request)
	}
	var stored Request
	if err := json.Unmarshal(rec.Request, &stored); err != nil {
		t.Fatalf("stored request is not JSON: %v", err)
	}
	if stored.StartingCapital != 10000 {
		t.Errorf("stored capital = %v", stored.StartingCapital)
	}
	if rec.Performance != res.Performance {
		t.Errorf("stored performance %+v != result %+v", rec.Performance, res.Performance)
	}
}

func TestRunLogFailureKeepsResult(t *testing.T) {
	runs := &memRunLog{err: errors.New("disk full")}
	bt := newTestBacktester(barsSource(linearBars(60, 100, 130)), WithRunLog(runs))
	res, err := bt.Run(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "" {
		t.Errorf("RunID = %q, want empty after failed save", res.RunID)
	}
}

func TestAssembleRounding(t *testing.T) {
	bt := newTestBacktester(barsSource(linearBars(40, 100.123456789, 101)))
	res, err := bt.Run(context.Background(), baseRequest())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Chart.Close[0]; !got.Valid || got.Float64 != 100.12346 {
		t.Errorf("close[0] = %+v, want 100.12346", got)
	}
	if got := res.Raw.Bars[0].Close; got != 100.123456789 {
		t.Errorf("raw close[0] = %v, want full precision", got)
	}
	p := res.Performance.TotalReturnPct
	if math.Abs(p*100-math.Round(p*100)) > 1e-9 {
		t.Errorf("total_return %v not rounded to 2 places", p)
	}
}

func TestNonFinitePricesEncodeAsNull(t *testing.T) {
	bars := linearBars(40, 100, 120)
	bars[10].Open, bars[10].High, bars[10].Low, bars[10].Close = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	bars[11].Close = math.Inf(1)

	res, err := newTestBacktester(barsSource(bars)).Run(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Chart.Close[10].Valid || res.Chart.Open[10].Valid || res.Chart.Close[11].Valid {
		t.Errorf("non-finite prices should be null: close[10]=%+v close[11]=%+v", res.Chart.Close[10], res.Chart.Close[11])
	}
	if !res.Chart.Close[12].Valid {
		t.Error("close[12] should be valid")
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire struct {
		Chart struct {
			Close []*float64 `json:"close"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	if len(wire.Chart.Close) != 40 || wire.Chart.Close[10] != nil || wire.Chart.Close[9] == nil {
		t.Errorf("close on the wire = %v", wire.Chart.Close)
	}
}

func TestParseDate(t *testing.T) {
	end, err := parseDate("end_date", "2024-03-01", true)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
	ts, err := parseDate("start_date", "2024-03-01T14:30:00-05:00", false)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 3, 1, 19, 30, 0, 0, time.UTC); !ts.Equal(want) {
		t.Errorf("start = %v, want %v", ts, want)
	}
}

func keys(m map[string]domain.Series) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
