package strategy

import (
	"quantdesk/internal/domain"
)

// View is a strategy's window onto the data at bar i. Every accessor takes
// an "ago" offset counted backwards from i; offsets that would read past i
// or before the first bar yield null.
type View struct {
	bars []domain.Bar
	ind  domain.IndicatorSeries
	i    int
}

// Index returns the position of the current bar.
func (v *View) Index() int { return v.i }

func (v *View) pos(ago int) (int, bool) {
	if ago < 0 {
		return 0, false
	}
	j := v.i - ago
	if j < 0 {
		return 0, false
	}
	return j, true
}

// Bar returns the bar ago steps back from the current one.
func (v *View) Bar(ago int) (domain.Bar, bool) {
	j, ok := v.pos(ago)
	if !ok {
		return domain.Bar{}, false
	}
	return v.bars[j], true
}

// Close returns the close ago steps back.
func (v *View) Close(ago int) domain.NullFloat {
	b, ok := v.Bar(ago)
	if !ok {
		return domain.Null()
	}
	return domain.Some(b.Close)
}

// Value returns indicator column col ago steps back.
func (v *View) Value(col string, ago int) domain.NullFloat {
	j, ok := v.pos(ago)
	if !ok {
		return domain.Null()
	}
	return v.ind[col].At(j)
}
