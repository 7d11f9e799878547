package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quantdesk/internal/domain"
	"quantdesk/pkg/quantdesk"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	priceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Sort columns, cycled with "s".
var sortLabels = []string{"symbol", "1D", "1W", "1M", "1Y"}

type progressMsg quantdesk.Progress

type resultMsg struct {
	res *quantdesk.HeatmapResult
	err error
}

type heatmapModel struct {
	cancel   context.CancelFunc
	progress quantdesk.Progress
	res      *quantdesk.HeatmapResult
	err      error
	sortCol  int

	viewport      viewport.Model
	ready         bool
	width, height int
}

func (m heatmapModel) Init() tea.Cmd { return nil }

func (m heatmapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "s":
			m.sortCol = (m.sortCol + 1) % len(sortLabels)
			m.refresh()
			m.viewport.GotoTop()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := max(m.height-2, 1) // header and footer
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refresh()
		return m, nil

	case progressMsg:
		m.progress = quantdesk.Progress(msg)
		return m, nil

	case resultMsg:
		m.res, m.err = msg.res, msg.err
		m.refresh()
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *heatmapModel) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m heatmapModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var header string
	switch {
	case m.err != nil:
		header = " heatmap failed "
	case m.res == nil:
		p := m.progress
		header = fmt.Sprintf(" heatmap  %s  %d/%d symbols  batch %d/%d  %.1f%%  eta %.0fs ",
			p.Stage, p.Loaded, p.Total, p.Batch, p.TotalBatches, p.ProgressPct, p.ETASeconds)
	default:
		header = fmt.Sprintf(" heatmap  %d symbols    sort: %s ", m.res.Count, sortLabels[m.sortCol])
	}
	footer := dimStyle.Render(" s: sort   ↑/↓ pgup/pgdn: scroll   q: quit")
	return headerStyle.Render(padOrTrunc(header, m.width)) + "\n" + m.viewport.View() + "\n" + footer
}

func (m heatmapModel) renderContent() string {
	if m.err != nil {
		return errStyle.Render(m.err.Error())
	}
	if m.res == nil {
		return dimStyle.Render("waiting for results...")
	}

	var b strings.Builder
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-8s %10s %9s %9s %9s %9s", "SYMBOL", "PRICE", "1D", "1W", "1M", "1Y")))
	b.WriteByte('\n')
	for _, sym := range sortedSymbols(m.res, m.sortCol) {
		ch := m.res.Symbols[sym]
		b.WriteString(symbolStyle.Render(fmt.Sprintf("%-8s", sym)))
		b.WriteString(" ")
		b.WriteString(priceStyle.Render(fmt.Sprintf("%10s", formatNull(ch.Price, ""))))
		for _, v := range []domain.NullFloat{ch.D1, ch.W1, ch.M1, ch.Y1} {
			b.WriteString(" ")
			b.WriteString(changeCell(v))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func changeCell(v domain.NullFloat) string {
	s := fmt.Sprintf("%9s", formatNull(v, "%"))
	switch {
	case !v.Valid:
		return dimStyle.Render(s)
	case v.Float64 >= 0:
		return gainStyle.Render(s)
	default:
		return lossStyle.Render(s)
	}
}

// sortedSymbols orders symbols by the chosen column, largest change first,
// with nulls last and ties broken by symbol.
func sortedSymbols(res *quantdesk.HeatmapResult, col int) []string {
	names := make([]string, 0, len(res.Symbols))
	for sym := range res.Symbols {
		names = append(names, sym)
	}
	value := func(sym string) domain.NullFloat {
		ch := res.Symbols[sym]
		return [...]domain.NullFloat{{}, ch.D1, ch.W1, ch.M1, ch.Y1}[col]
	}
	sort.Slice(names, func(i, j int) bool {
		if col > 0 {
			a, b := value(names[i]), value(names[j])
			if a.Valid != b.Valid {
				return a.Valid
			}
			if a.Valid && a.Float64 != b.Float64 {
				return a.Float64 > b.Float64
			}
		}
		return names[i] < names[j]
	})
	return names
}

func padOrTrunc(s string, width int) string {
	if width <= 0 {
		return s
	}
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s[:width]
}

// runHeatmapTUI shows live progress and then a scrollable, sortable table.
func runHeatmapTUI(ctx context.Context, client *quantdesk.Client, req quantdesk.HeatmapRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(heatmapModel{cancel: cancel}, tea.WithAltScreen())
	go func() {
		res, err := client.Heatmap(ctx, req, func(pr quantdesk.Progress) {
			p.Send(progressMsg(pr))
		})
		p.Send(resultMsg{res: res, err: err})
	}()

	_, err := p.Run()
	return err
}
