package main

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"quantdesk/internal/domain"
	"quantdesk/pkg/quantdesk"
)

func testResult() *quantdesk.HeatmapResult {
	return &quantdesk.HeatmapResult{
		Count: 3,
		Symbols: map[string]quantdesk.Change{
			"AAPL": {Price: domain.Some(190), D1: domain.Some(-1.5)},
			"MSFT": {Price: domain.Some(410), D1: domain.Some(2.25)},
			"NVDA": {Price: domain.Some(120)},
		},
	}
}

func TestSortedSymbols(t *testing.T) {
	res := testResult()
	if got := strings.Join(sortedSymbols(res, 0), ","); got != "AAPL,MSFT,NVDA" {
		t.Errorf("by symbol = %s", got)
	}
	if got := strings.Join(sortedSymbols(res, 1), ","); got != "MSFT,AAPL,NVDA" {
		t.Errorf("by 1D = %s, want nulls last", got)
	}
}

func TestHeatmapModelUpdate(t *testing.T) {
	cancelled := false
	var m tea.Model = heatmapModel{cancel: func() { cancelled = true }}

	if got := m.View(); got != "Loading..." {
		t.Errorf("View before size = %q", got)
	}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	m, _ = m.Update(progressMsg{Stage: "batch_done", Loaded: 1, Total: 3, Batch: 1, TotalBatches: 2, ProgressPct: 33.3})
	if v := m.View(); !strings.Contains(v, "1/3 symbols") {
		t.Errorf("progress view missing counts:\n%s", v)
	}

	m, _ = m.Update(resultMsg{res: testResult()})
	v := m.View()
	if !strings.Contains(v, "3 symbols") || !strings.Contains(v, "MSFT") || !strings.Contains(v, "2.25%") {
		t.Errorf("result view:\n%s", v)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if hm := m.(heatmapModel); hm.sortCol != 1 {
		t.Errorf("sortCol = %d, want 1", hm.sortCol)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !cancelled {
		t.Error("q should cancel and quit")
	}
}

func TestHeatmapModelError(t *testing.T) {
	var m tea.Model = heatmapModel{cancel: func() {}}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 10})
	m, _ = m.Update(resultMsg{err: errors.New("upstream down")})
	if v := m.View(); !strings.Contains(v, "upstream down") {
		t.Errorf("error view:\n%s", v)
	}
}
