// Package alerts evaluates risk metrics against configurable
// thresholds and produces severity-ranked alerts plus the boolean
// flags published to the cache.
package alerts

import (
	"fmt"
	"sort"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
)

// Severity levels, ordered from most to least severe
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityHealthy  = "healthy"
)

// Flag names used in the cached alert hash
const (
	FlagVaRBreach      = "var_breach"
	FlagBetaHigh       = "beta_high"
	FlagVolatilityHigh = "volatility_high"
	FlagSharpeNegative = "sharpe_negative"
)

// Thresholds holds the alert trigger levels. VaR thresholds are
// negative fractions; a more negative VaR is a worse loss.
type Thresholds struct {
	VaRCritical        float64
	VaRWarning         float64
	BetaHigh           float64
	BetaWarning        float64
	VolatilityHigh     float64
	SharpeNegativeDays int
}

// DefaultThresholds returns the standard trigger levels
func DefaultThresholds() Thresholds {
	return Thresholds{
		VaRCritical:        -0.02,
		VaRWarning:         -0.015,
		BetaHigh:           1.5,
		BetaWarning:        1.3,
		VolatilityHigh:     0.30,
		SharpeNegativeDays: 10,
	}
}

// Alert is one triggered condition
type Alert struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

// Evaluator checks metric records against thresholds
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an evaluator with the given thresholds
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// CheckVaR evaluates the VaR level. Returns the alert and whether one
// triggered.
func (e *Evaluator) CheckVaR(value float64) (Alert, bool) {
	switch {
	case value < e.thresholds.VaRCritical:
		return Alert{
			Severity: SeverityCritical,
			Type:     "VaR Critical",
			Message: fmt.Sprintf("VaR at %.2f%% exceeds critical threshold (%.2f%%)",
				value*100, e.thresholds.VaRCritical*100),
		}, true
	case value < e.thresholds.VaRWarning:
		return Alert{
			Severity: SeverityWarning,
			Type:     "VaR Elevated",
			Message: fmt.Sprintf("VaR at %.2f%% exceeds warning threshold (%.2f%%)",
				value*100, e.thresholds.VaRWarning*100),
		}, true
	default:
		return Alert{}, false
	}
}

// CheckBeta evaluates benchmark sensitivity
func (e *Evaluator) CheckBeta(value float64) (Alert, bool) {
	switch {
	case value > e.thresholds.BetaHigh:
		return Alert{
			Severity: SeverityCritical,
			Type:     "High Beta",
			Message: fmt.Sprintf("Beta at %.2f exceeds high threshold (%.2f)",
				value, e.thresholds.BetaHigh),
		}, true
	case value > e.thresholds.BetaWarning:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Elevated Beta",
			Message: fmt.Sprintf("Beta at %.2f exceeds warning threshold (%.2f)",
				value, e.thresholds.BetaWarning),
		}, true
	default:
		return Alert{}, false
	}
}

// CheckVolatility evaluates annualized volatility
func (e *Evaluator) CheckVolatility(value float64) (Alert, bool) {
	if value > e.thresholds.VolatilityHigh {
		return Alert{
			Severity: SeverityWarning,
			Type:     "High Volatility",
			Message: fmt.Sprintf("Portfolio volatility at %.2f%% exceeds threshold (%.2f%%)",
				value*100, e.thresholds.VolatilityHigh*100),
		}, true
	}
	return Alert{}, false
}

// CheckSharpePersistence flags a Sharpe ratio that has been negative
// for a sustained stretch. The history is ordered oldest first; fewer
// than SharpeNegativeDays entries is not enough to assess persistence.
func (e *Evaluator) CheckSharpePersistence(sharpeHistory []float64) (Alert, bool) {
	n := e.thresholds.SharpeNegativeDays
	if len(sharpeHistory) < n {
		return Alert{}, false
	}

	recent := sharpeHistory[len(sharpeHistory)-n:]
	negativeDays := 0
	for _, v := range recent {
		if v < 0 {
			negativeDays++
		}
	}

	switch {
	case negativeDays >= n:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Persistent Negative Sharpe",
			Message:  fmt.Sprintf("Sharpe ratio negative for %d of last %d days", negativeDays, n),
		}, true
	case float64(negativeDays) >= float64(n)*0.7:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Declining Sharpe",
			Message:  fmt.Sprintf("Sharpe ratio negative for %d of last %d days", negativeDays, n),
		}, true
	default:
		return Alert{}, false
	}
}

// Evaluate runs every check against a metric record plus the trailing
// Sharpe history (oldest first), returning triggered alerts sorted
// critical first.
func (e *Evaluator) Evaluate(rec *metrics.Record, sharpeHistory []float64) []Alert {
	if rec == nil {
		return nil
	}

	var triggered []Alert
	if a, ok := e.CheckVaR(rec.VaR95); ok {
		triggered = append(triggered, a)
	}
	if a, ok := e.CheckBeta(rec.Beta); ok {
		triggered = append(triggered, a)
	}
	if a, ok := e.CheckVolatility(rec.PortfolioVolatility); ok {
		triggered = append(triggered, a)
	}
	if a, ok := e.CheckSharpePersistence(sharpeHistory); ok {
		triggered = append(triggered, a)
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		return severityRank(triggered[i].Severity) < severityRank(triggered[j].Severity)
	})

	return triggered
}

// Flags reduces a record and Sharpe history to the boolean flags
// published to the cache hash. Every flag is always present so readers
// can distinguish "checked and clear" from "never checked".
func (e *Evaluator) Flags(rec *metrics.Record, sharpeHistory []float64) map[string]bool {
	if rec == nil {
		return nil
	}

	_, varHit := e.CheckVaR(rec.VaR95)
	_, betaHit := e.CheckBeta(rec.Beta)
	_, volHit := e.CheckVolatility(rec.PortfolioVolatility)
	_, sharpeHit := e.CheckSharpePersistence(sharpeHistory)

	return map[string]bool{
		FlagVaRBreach:      varHit,
		FlagBetaHigh:       betaHit,
		FlagVolatilityHigh: volHit,
		FlagSharpeNegative: sharpeHit,
	}
}

func severityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}
