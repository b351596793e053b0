// Package metrics stores computed risk metric records, keyed by
// (portfolio_id, date). Records are never mutated: recomputation
// supersedes a prior record via upsert.
package metrics

import "time"

// SimulationParams records how a metric record was produced
type SimulationParams struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	Simulations     int     `json:"n_simulations"`
	Window          int     `json:"window"`
}

// Record holds the five risk metrics for one portfolio on one date.
// VaR95 and ExpectedShortfall are negative fractions; ES is always at
// least as severe as VaR.
type Record struct {
	PortfolioID         string           `json:"portfolio_id"`
	Date                time.Time        `json:"date"`
	VaR95               float64          `json:"VaR_95"`
	ExpectedShortfall   float64          `json:"expected_shortfall"`
	SharpeRatio         float64          `json:"sharpe_ratio"`
	Beta                float64          `json:"beta"`
	PortfolioVolatility float64          `json:"portfolio_volatility"`
	Params              SimulationParams `json:"simulation_params"`
	ComputedAt          time.Time        `json:"computed_at"`
}
