package risk

import (
	"math"
	"sort"
	"strings"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
)

// WeightSumTolerance is the acceptable absolute deviation of a weight
// vector's sum from 1.0.
const WeightSumTolerance = 1e-4

// ValidateInputs checks a return series and weight vector before a
// portfolio calculation. Long-only portfolios are required.
func ValidateInputs(series *returns.Series, weights map[string]float64) error {
	if series.IsEmpty() {
		return validationErrorf("return series is empty")
	}

	if len(weights) == 0 {
		return validationErrorf("weight vector is empty")
	}

	var missing []string
	var sum float64
	for ticker, weight := range weights {
		if !series.HasTicker(ticker) {
			missing = append(missing, ticker)
		}
		if weight < 0 {
			return validationErrorf("negative weight %.6f for %s (long-only portfolios required)", weight, ticker)
		}
		sum += weight
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return validationErrorf("weights contain tickers not in returns: %s", strings.Join(missing, ", "))
	}

	if math.Abs(sum-1.0) > WeightSumTolerance {
		return validationErrorf("weights sum to %.6f, expected 1.0 (tolerance %g)", sum, WeightSumTolerance)
	}

	return nil
}
