// Package risk implements the portfolio risk metric calculators:
// Monte Carlo Value-at-Risk and Expected Shortfall via historical
// bootstrap, annualized volatility, rolling Sharpe ratio and rolling
// beta. All calculators are pure functions over a return series and a
// weight vector.
package risk

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
)

const (
	// DefaultConfidence is the VaR/ES confidence level
	DefaultConfidence = 0.95
	// DefaultSimulations is the Monte Carlo path count
	DefaultSimulations = 1000
	// MinSimulations is the floor below which percentile estimates are noise
	MinSimulations = 100
)

// SimulationParams configures the Monte Carlo bootstrap.
// A nil Seed draws from an unseeded source; a set Seed makes results
// bit-reproducible for identical inputs.
type SimulationParams struct {
	Confidence  float64
	Simulations int
	Seed        *int64
}

// DefaultSimulationParams returns the standard 95% / 1000-path setup
func DefaultSimulationParams() SimulationParams {
	return SimulationParams{
		Confidence:  DefaultConfidence,
		Simulations: DefaultSimulations,
	}
}

func (p SimulationParams) validate() error {
	if p.Confidence <= 0 || p.Confidence >= 1 {
		return validationErrorf("confidence level must be between 0 and 1, got %g", p.Confidence)
	}
	if p.Simulations < MinSimulations {
		return validationErrorf("minimum %d simulations required, got %d", MinSimulations, p.Simulations)
	}
	return nil
}

// simulatePortfolioReturns draws Simulations historical days with
// replacement and collapses each draw across assets with the weight
// vector, yielding one simulated portfolio return per path.
func simulatePortfolioReturns(series *returns.Series, weights map[string]float64, p SimulationParams) []float64 {
	var rng *rand.Rand
	if p.Seed != nil {
		rng = rand.New(rand.NewSource(*p.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	// Sorted ticker order keeps the floating-point sum deterministic
	tickers := make([]string, 0, len(weights))
	for ticker := range weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	n := series.Len()
	simulated := make([]float64, p.Simulations)
	for i := 0; i < p.Simulations; i++ {
		day := rng.Intn(n)
		var sum float64
		for _, ticker := range tickers {
			sum += series.Columns[ticker][day] * weights[ticker]
		}
		simulated[i] = sum
	}
	return simulated
}

// varThreshold returns the (1-confidence) percentile of a simulated
// distribution. The input slice is sorted in place.
func varThreshold(simulated []float64, confidence float64) float64 {
	sort.Float64s(simulated)
	return stat.Quantile(1-confidence, stat.LinInterp, simulated, nil)
}

// PortfolioVaR computes Value-at-Risk by historical bootstrap.
// The result is a negative fraction representing a loss (e.g. -0.0231
// for a 2.31% adverse move), not a magnitude.
func PortfolioVaR(series *returns.Series, weights map[string]float64, p SimulationParams) (float64, error) {
	if err := ValidateInputs(series, weights); err != nil {
		return 0, err
	}
	if err := p.validate(); err != nil {
		return 0, err
	}

	simulated := simulatePortfolioReturns(series, weights, p)
	return varThreshold(simulated, p.Confidence), nil
}

// ExpectedShortfall computes the mean loss of the simulated scenarios
// at or below the VaR percentile. It is never better than VaR at the
// same confidence level; when no scenario falls in the tail
// (degenerate constant inputs) it equals the VaR threshold.
func ExpectedShortfall(series *returns.Series, weights map[string]float64, p SimulationParams) (float64, error) {
	if err := ValidateInputs(series, weights); err != nil {
		return 0, err
	}
	if err := p.validate(); err != nil {
		return 0, err
	}

	simulated := simulatePortfolioReturns(series, weights, p)
	threshold := varThreshold(simulated, p.Confidence)

	var tail []float64
	for _, r := range simulated {
		if r <= threshold {
			tail = append(tail, r)
		}
	}

	if len(tail) == 0 {
		return threshold, nil
	}
	return stat.Mean(tail, nil), nil
}
