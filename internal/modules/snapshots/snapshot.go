// Package snapshots manages dated, immutable portfolio holdings records.
package snapshots

import (
	"math"
	"sort"
	"time"
)

// WeightSumTolerance is the acceptable deviation of holdings weights from 1.0
const WeightSumTolerance = 1e-4

// Asset is a single holding within a snapshot
type Asset struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
	Sector string  `json:"sector"`
}

// Snapshot is a dated, immutable record of a portfolio's holdings.
// Identified by (portfolio_id, date); created once per trading day.
type Snapshot struct {
	PortfolioID string
	Date        time.Time
	Assets      []Asset
	CreatedAt   time.Time
}

// Key identifies a snapshot without its holdings payload
type Key struct {
	PortfolioID string
	Date        time.Time
}

// Weights returns the holdings as a ticker-to-weight map
func (s *Snapshot) Weights() map[string]float64 {
	weights := make(map[string]float64, len(s.Assets))
	for _, a := range s.Assets {
		weights[a.Ticker] = a.Weight
	}
	return weights
}

// Tickers returns the held tickers in sorted order
func (s *Snapshot) Tickers() []string {
	tickers := make([]string, 0, len(s.Assets))
	for _, a := range s.Assets {
		tickers = append(tickers, a.Ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// ValidWeights reports whether the holdings weights sum to 1.0 within
// tolerance
func (s *Snapshot) ValidWeights() bool {
	var sum float64
	for _, a := range s.Assets {
		sum += a.Weight
	}
	return math.Abs(sum-1.0) <= WeightSumTolerance
}
