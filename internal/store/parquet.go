package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantdesk/internal/domain"
)

// Compile-time interface check.
var _ BarCache = (*ParquetStore)(nil)

// ParquetStore implements BarCache using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// BarCache implementation
// ---------------------------------------------------------------------------

// GetBars reads the file written for exactly this key. A missing file is a
// miss, not an error.
func (s *ParquetStore) GetBars(ctx context.Context, key BarKey) ([]domain.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := s.barPath(key)
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = r.bar()
	}
	return bars, true, nil
}

// PutBars writes bars sorted by timestamp. An empty series is cached too so
// that symbols without history are not fetched again.
func (s *ParquetStore) PutBars(ctx context.Context, key BarKey, bars []domain.Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = toRecord(b)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	if err := writeParquetFile(s.barPath(key), records); err != nil {
		return fmt.Errorf("writing bars for %s/%s: %w", key.Symbol, key.Interval, err)
	}
	return nil
}

// ListSymbols lists all symbols that have cached bars at the interval.
func (s *ParquetStore) ListSymbols(_ context.Context, iv domain.Interval) ([]string, error) {
	dir := filepath.Join(s.DataDir, "bars", string(iv))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a cached bar request.
// Layout: <dataDir>/bars/<interval>/<SYMBOL>/<start>_<end>.parquet
//
// Crypto pairs keep their slash out of the path (BTC/USD -> BTC-USD).
func (s *ParquetStore) barPath(key BarKey) string {
	sym := strings.ReplaceAll(strings.ToUpper(key.Symbol), "/", "-")
	name := fmt.Sprintf("%s_%s.parquet", stamp(key.Start), stamp(key.End))
	return filepath.Join(s.DataDir, "bars", string(key.Interval), sym, name)
}

func stamp(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format("20060102")
	}
	return t.Format("20060102T150405")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes to a temporary file and renames it into place so
// readers never observe a partial file.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
