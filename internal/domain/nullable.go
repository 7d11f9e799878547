package domain

import (
	"encoding/json"
	"math"
)

// NullFloat is a float64 that may be absent. It encodes as JSON null when
// not valid and is never NaN when valid.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Some returns a valid NullFloat for v, or an invalid one when v is not a
// finite number.
func Some(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Float64: v, Valid: true}
}

// Null is the absent value.
func Null() NullFloat { return NullFloat{} }

// MarshalJSON implements json.Marshaler.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Series is a nullable numeric sequence aligned with a bar series.
type Series []NullFloat

// NullSeries returns a series of n null values.
func NullSeries(n int) Series {
	return make(Series, n)
}

// At returns the value at i, or null when i is out of range.
func (s Series) At(i int) NullFloat {
	if i < 0 || i >= len(s) {
		return NullFloat{}
	}
	return s[i]
}

// ValidCount returns the number of non-null entries.
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s {
		if v.Valid {
			n++
		}
	}
	return n
}
