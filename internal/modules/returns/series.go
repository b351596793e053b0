package returns

import (
	"sort"
	"time"
)

// Series is a table of per-asset daily returns aligned by date.
// Rows are dates in strictly increasing order, columns are tickers.
type Series struct {
	Dates   []time.Time
	Columns map[string][]float64
}

// NewSeries creates an empty series
func NewSeries() *Series {
	return &Series{Columns: make(map[string][]float64)}
}

// Len returns the number of date rows
func (s *Series) Len() int {
	return len(s.Dates)
}

// IsEmpty reports whether the series has no rows or no columns
func (s *Series) IsEmpty() bool {
	return s == nil || len(s.Dates) == 0 || len(s.Columns) == 0
}

// Tickers returns the column names in sorted order
func (s *Series) Tickers() []string {
	tickers := make([]string, 0, len(s.Columns))
	for ticker := range s.Columns {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Column returns the return series for a single ticker
func (s *Series) Column(ticker string) ([]float64, bool) {
	col, ok := s.Columns[ticker]
	return col, ok
}

// HasTicker reports whether the series contains a column for ticker
func (s *Series) HasTicker(ticker string) bool {
	_, ok := s.Columns[ticker]
	return ok
}

// PortfolioReturns collapses the series into a single daily portfolio
// return per row using the given weights. Weight tickers are iterated
// in sorted order so the floating-point sum is deterministic.
// Callers are expected to have validated that every weight ticker has
// a column; unknown tickers contribute nothing.
func (s *Series) PortfolioReturns(weights map[string]float64) []float64 {
	tickers := make([]string, 0, len(weights))
	for ticker := range weights {
		if s.HasTicker(ticker) {
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)

	result := make([]float64, s.Len())
	for i := range result {
		var sum float64
		for _, ticker := range tickers {
			sum += s.Columns[ticker][i] * weights[ticker]
		}
		result[i] = sum
	}
	return result
}
