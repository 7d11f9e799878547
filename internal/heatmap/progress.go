package heatmap

import (
	"math"
	"time"
)

// Progress stages, in emission order.
const (
	StageSymbols    = "symbols"
	StageBatchStart = "batch_start"
	StageBatchDone  = "batch_done"
	StageDone       = "done"
)

// Progress reports how far an aggregation has come.
type Progress struct {
	Stage        string  `json:"stage"`
	Loaded       int     `json:"loaded"`
	Total        int     `json:"total"`
	Batch        int     `json:"batch"`
	TotalBatches int     `json:"total_batches"`
	ProgressPct  float64 `json:"progress_pct"`
	ETASeconds   float64 `json:"eta_seconds"`
}

// ProgressFunc receives progress events. It is called from the
// aggregating goroutine only, never concurrently.
type ProgressFunc func(Progress)

type tracker struct {
	total, batches int
	loaded         int
	started        time.Time
	fn             ProgressFunc
}

func newTracker(total, batches int, fn ProgressFunc) *tracker {
	return &tracker{total: total, batches: batches, started: time.Now(), fn: fn}
}

func (t *tracker) add(n int) { t.loaded += n }

func (t *tracker) emit(stage string, batch int) {
	p := Progress{
		Stage:        stage,
		Loaded:       t.loaded,
		Total:        t.total,
		Batch:        batch,
		TotalBatches: t.batches,
	}
	switch {
	case stage == StageDone:
		p.ProgressPct = 100
	case t.total > 0:
		p.ProgressPct = math.Round(float64(t.loaded)/float64(t.total)*1000) / 10
	}
	if t.loaded > 0 && t.loaded < t.total {
		perSymbol := time.Since(t.started).Seconds() / float64(t.loaded)
		p.ETASeconds = math.Round(perSymbol*float64(t.total-t.loaded)*10) / 10
	}
	t.fn(p)
}
