package risk

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
)

// TradingDaysPerYear is the annualization base for daily returns
const TradingDaysPerYear = 252

// DefaultWindow is the rolling window for Sharpe, beta and volatility
const DefaultWindow = 20

// annualizationFactor converts daily volatility to annualized
var annualizationFactor = math.Sqrt(TradingDaysPerYear)

// PortfolioVolatility computes the annualized standard deviation of the
// weighted daily portfolio returns over the full series. A constant or
// all-zero series has volatility 0.0; that is not an error.
func PortfolioVolatility(series *returns.Series, weights map[string]float64) (float64, error) {
	if err := ValidateInputs(series, weights); err != nil {
		return 0, err
	}

	portfolio := series.PortfolioReturns(weights)
	if len(portfolio) < 2 {
		return 0.0, nil
	}

	return stat.StdDev(portfolio, nil) * annualizationFactor, nil
}

// RollingVolatility computes the annualized standard deviation over the
// trailing window observations. Returns ErrInsufficientData below the
// window.
func RollingVolatility(series *returns.Series, weights map[string]float64, window int) (float64, error) {
	if err := ValidateInputs(series, weights); err != nil {
		return 0, err
	}
	if window < 2 {
		return 0, validationErrorf("window must be at least 2 days, got %d", window)
	}

	portfolio := series.PortfolioReturns(weights)
	if len(portfolio) < window {
		return 0, ErrInsufficientData
	}

	tail := portfolio[len(portfolio)-window:]
	return stat.StdDev(tail, nil) * annualizationFactor, nil
}

// SharpeRatio computes the annualized rolling Sharpe ratio: the mean
// daily portfolio return over the trailing window divided by its
// standard deviation, scaled by sqrt(252). The risk-free rate is taken
// as zero, matching the daily cadence of the pipeline.
//
// A zero-volatility window yields 0.0 by convention: a flat window has
// no excess return and no risk, and 0.0 keeps the metric record
// numeric. Returns ErrInsufficientData below the window.
func SharpeRatio(series *returns.Series, weights map[string]float64, window int) (float64, error) {
	if err := ValidateInputs(series, weights); err != nil {
		return 0, err
	}
	if window < 2 {
		return 0, validationErrorf("window must be at least 2 days, got %d", window)
	}

	portfolio := series.PortfolioReturns(weights)
	if len(portfolio) < window {
		return 0, ErrInsufficientData
	}

	tail := portfolio[len(portfolio)-window:]
	mean := stat.Mean(tail, nil)
	std := stat.StdDev(tail, nil)

	if std == 0 {
		return 0.0, nil
	}

	return (mean / std) * annualizationFactor, nil
}

// Beta computes the OLS slope of portfolio returns regressed on
// benchmark returns over the trailing window:
// cov(portfolio, benchmark) / var(benchmark).
//
// Both slices must cover the same dates in the same order. Returns
// ErrInsufficientData below the window and ErrZeroVariance when the
// benchmark window is flat.
func Beta(portfolio, benchmark []float64, window int) (float64, error) {
	if len(portfolio) == 0 {
		return 0, validationErrorf("portfolio return series is empty")
	}
	if len(benchmark) == 0 {
		return 0, validationErrorf("benchmark return series is empty")
	}
	if window < 2 {
		return 0, validationErrorf("window must be at least 2 days, got %d", window)
	}

	// Align on the common trailing range
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < window {
		return 0, ErrInsufficientData
	}

	p := portfolio[len(portfolio)-window:]
	b := benchmark[len(benchmark)-window:]

	variance := stat.Variance(b, nil)
	if variance == 0 {
		return 0, ErrZeroVariance
	}

	return stat.Covariance(p, b, nil) / variance, nil
}

// BetaFromSeries computes portfolio beta versus a benchmark column of
// the same return series. The benchmark ticker is excluded from the
// weight vector; remaining weights are renormalized if they no longer
// sum to 1.0.
func BetaFromSeries(series *returns.Series, weights map[string]float64, benchmarkTicker string, window int) (float64, error) {
	benchmark, ok := series.Column(benchmarkTicker)
	if !ok {
		return 0, validationErrorf("benchmark ticker %q not found in returns", benchmarkTicker)
	}

	portfolioWeights := make(map[string]float64, len(weights))
	var sum float64
	for ticker, weight := range weights {
		if ticker == benchmarkTicker {
			continue
		}
		portfolioWeights[ticker] = weight
		sum += weight
	}

	if len(portfolioWeights) == 0 {
		return 0, validationErrorf("no portfolio tickers after excluding benchmark %q", benchmarkTicker)
	}

	if math.Abs(sum-1.0) > WeightSumTolerance {
		for ticker := range portfolioWeights {
			portfolioWeights[ticker] /= sum
		}
	}

	if err := ValidateInputs(series, portfolioWeights); err != nil {
		return 0, err
	}

	portfolio := series.PortfolioReturns(portfolioWeights)
	return Beta(portfolio, benchmark, window)
}
