package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
)

// singleAssetSeries builds a one-column series from literal returns
func singleAssetSeries(ticker string, values []float64) *returns.Series {
	series := returns.NewSeries()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range values {
		series.Dates = append(series.Dates, start.AddDate(0, 0, i))
	}
	series.Columns[ticker] = values
	return series
}

func TestPortfolioVolatility_AllZeroReturnsIsExactlyZero(t *testing.T) {
	series := singleAssetSeries("AAPL", make([]float64, 30))

	vol, err := PortfolioVolatility(series, map[string]float64{"AAPL": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, vol)
}

func TestPortfolioVolatility_KnownValues(t *testing.T) {
	// Sample std of [0.01, -0.01, 0.01, -0.01] is sqrt(4/3)*0.01
	series := singleAssetSeries("AAPL", []float64{0.01, -0.01, 0.01, -0.01})

	vol, err := PortfolioVolatility(series, map[string]float64{"AAPL": 1.0})
	require.NoError(t, err)

	expected := math.Sqrt(4.0/3.0) * 0.01 * math.Sqrt(252)
	assert.InDelta(t, expected, vol, 1e-12)
}

func TestPortfolioVolatility_RejectsBadWeights(t *testing.T) {
	series := singleAssetSeries("AAPL", []float64{0.01, 0.02})

	_, err := PortfolioVolatility(series, map[string]float64{"AAPL": 0.9})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestRollingVolatility_InsufficientData(t *testing.T) {
	series := singleAssetSeries("AAPL", []float64{0.01, 0.02, 0.03})

	_, err := RollingVolatility(series, map[string]float64{"AAPL": 1.0}, 20)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSharpeRatio_InsufficientData(t *testing.T) {
	series := singleAssetSeries("AAPL", []float64{0.01, 0.02, 0.03})

	_, err := SharpeRatio(series, map[string]float64{"AAPL": 1.0}, 20)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSharpeRatio_ZeroVolatilityWindowIsZero(t *testing.T) {
	// Constant returns: flat window has no risk, convention is 0.0
	values := make([]float64, 25)
	for i := range values {
		values[i] = 0.005
	}
	series := singleAssetSeries("AAPL", values)

	sharpe, err := SharpeRatio(series, map[string]float64{"AAPL": 1.0}, 20)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sharpe)
}

func TestSharpeRatio_KnownValues(t *testing.T) {
	// Trailing window [0.01, 0.02, 0.03]: mean 0.02, sample std 0.01
	series := singleAssetSeries("AAPL", []float64{0.05, -0.05, 0.01, 0.02, 0.03})

	sharpe, err := SharpeRatio(series, map[string]float64{"AAPL": 1.0}, 3)
	require.NoError(t, err)

	expected := (0.02 / 0.01) * math.Sqrt(252)
	assert.InDelta(t, expected, sharpe, 1e-9)
}

func TestBeta_IdenticalSeriesIsOne(t *testing.T) {
	values := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.012, 0.004, -0.011,
		0.009, 0.002, -0.005, 0.018, -0.003, 0.006, 0.001, -0.009,
		0.014, -0.006, 0.008, 0.002, 0.011, -0.004}

	beta, err := Beta(values, values, 20)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, beta, 1e-6)
}

func TestBeta_ScaledSeries(t *testing.T) {
	benchmark := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.012, 0.004, -0.011,
		0.009, 0.002, -0.005, 0.018, -0.003, 0.006, 0.001, -0.009,
		0.014, -0.006, 0.008, 0.002}
	portfolio := make([]float64, len(benchmark))
	for i, b := range benchmark {
		portfolio[i] = 2 * b
	}

	beta, err := Beta(portfolio, benchmark, 20)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, beta, 1e-9)
}

func TestBeta_InsufficientData(t *testing.T) {
	short := []float64{0.01, -0.02, 0.015}

	_, err := Beta(short, short, 20)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBeta_ZeroVarianceBenchmark(t *testing.T) {
	portfolio := make([]float64, 20)
	benchmark := make([]float64, 20)
	for i := range portfolio {
		portfolio[i] = float64(i) * 0.001
		benchmark[i] = 0.005 // flat
	}

	_, err := Beta(portfolio, benchmark, 20)
	assert.ErrorIs(t, err, ErrZeroVariance)
}

func TestBeta_EmptyInputs(t *testing.T) {
	_, err := Beta(nil, []float64{0.01}, 20)
	assert.True(t, IsValidation(err))

	_, err = Beta([]float64{0.01}, nil, 20)
	assert.True(t, IsValidation(err))
}

func TestBetaFromSeries_ExcludesBenchmarkColumn(t *testing.T) {
	series := returns.NewSeries()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	benchmark := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.012, 0.004, -0.011,
		0.009, 0.002, -0.005, 0.018, -0.003, 0.006, 0.001, -0.009,
		0.014, -0.006, 0.008, 0.002}
	asset := make([]float64, len(benchmark))
	for i, b := range benchmark {
		asset[i] = 1.5 * b
		series.Dates = append(series.Dates, start.AddDate(0, 0, i))
	}
	series.Columns["SPY"] = benchmark
	series.Columns["AAPL"] = asset

	beta, err := BetaFromSeries(series, map[string]float64{"AAPL": 1.0}, "SPY", 20)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, beta, 1e-9)
}

func TestBetaFromSeries_RenormalizesWeights(t *testing.T) {
	series := returns.NewSeries()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	benchmark := make([]float64, 20)
	asset := make([]float64, 20)
	for i := range benchmark {
		benchmark[i] = math.Sin(float64(i)) * 0.01
		asset[i] = benchmark[i] * 2
		series.Dates = append(series.Dates, start.AddDate(0, 0, i))
	}
	series.Columns["SPY"] = benchmark
	series.Columns["AAPL"] = asset

	// Weights include the benchmark; after exclusion AAPL is
	// renormalized from 0.5 to 1.0
	weights := map[string]float64{"AAPL": 0.5, "SPY": 0.5}

	beta, err := BetaFromSeries(series, weights, "SPY", 20)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, beta, 1e-9)
}

func TestBetaFromSeries_MissingBenchmark(t *testing.T) {
	series := singleAssetSeries("AAPL", make([]float64, 25))

	_, err := BetaFromSeries(series, map[string]float64{"AAPL": 1.0}, "SPY", 20)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "SPY")
}
