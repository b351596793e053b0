package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
)

func TestCheckVaRSeverityBands(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	tests := []struct {
		name     string
		value    float64
		severity string
		hit      bool
	}{
		{"critical breach", -0.025, SeverityCritical, true},
		{"warning breach", -0.017, SeverityWarning, true},
		{"exactly at warning threshold is clear", -0.015, "", false},
		{"healthy", -0.005, "", false},
		{"positive return day", 0.01, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, hit := e.CheckVaR(tt.value)
			assert.Equal(t, tt.hit, hit)
			if tt.hit {
				assert.Equal(t, tt.severity, alert.Severity)
				assert.NotEmpty(t, alert.Message)
			}
		})
	}
}

func TestCheckBetaSeverityBands(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	alert, hit := e.CheckBeta(1.6)
	require.True(t, hit)
	assert.Equal(t, SeverityCritical, alert.Severity)

	alert, hit = e.CheckBeta(1.35)
	require.True(t, hit)
	assert.Equal(t, SeverityWarning, alert.Severity)

	_, hit = e.CheckBeta(1.0)
	assert.False(t, hit)

	// Boundary: exactly at the warning threshold does not trigger
	_, hit = e.CheckBeta(1.3)
	assert.False(t, hit)
}

func TestCheckVolatility(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	alert, hit := e.CheckVolatility(0.35)
	require.True(t, hit)
	assert.Equal(t, SeverityWarning, alert.Severity)

	_, hit = e.CheckVolatility(0.20)
	assert.False(t, hit)
}

func TestCheckSharpePersistence(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	t.Run("too little history does not trigger", func(t *testing.T) {
		_, hit := e.CheckSharpePersistence([]float64{-1, -1, -1})
		assert.False(t, hit)
	})

	t.Run("all negative for the full window", func(t *testing.T) {
		history := make([]float64, 10)
		for i := range history {
			history[i] = -0.5
		}
		alert, hit := e.CheckSharpePersistence(history)
		require.True(t, hit)
		assert.Equal(t, "Persistent Negative Sharpe", alert.Type)
	})

	t.Run("seven of ten negative triggers declining", func(t *testing.T) {
		history := []float64{-1, -1, -1, -1, -1, -1, -1, 1, 1, 1}
		alert, hit := e.CheckSharpePersistence(history)
		require.True(t, hit)
		assert.Equal(t, "Declining Sharpe", alert.Type)
	})

	t.Run("mostly positive is clear", func(t *testing.T) {
		history := []float64{1, 1, 1, 1, 1, 1, 1, 1, -1, -1}
		_, hit := e.CheckSharpePersistence(history)
		assert.False(t, hit)
	})

	t.Run("only the trailing window counts", func(t *testing.T) {
		// Old negative stretch followed by a healthy recent window
		history := append(make([]float64, 0, 20),
			-1, -1, -1, -1, -1, -1, -1, -1, -1, -1,
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
		_, hit := e.CheckSharpePersistence(history)
		assert.False(t, hit)
	})
}

func TestEvaluateSortsCriticalFirst(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	rec := &metrics.Record{
		VaR95:               -0.016, // warning
		Beta:                1.7,    // critical
		PortfolioVolatility: 0.35,   // warning
	}

	result := e.Evaluate(rec, nil)
	require.Len(t, result, 3)
	assert.Equal(t, SeverityCritical, result[0].Severity)
	assert.Equal(t, "High Beta", result[0].Type)
	assert.Equal(t, SeverityWarning, result[1].Severity)
	assert.Equal(t, SeverityWarning, result[2].Severity)
}

func TestEvaluateNilRecord(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	assert.Nil(t, e.Evaluate(nil, nil))
}

func TestEvaluateHealthyRecordHasNoAlerts(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	rec := &metrics.Record{
		VaR95:               -0.005,
		Beta:                0.9,
		PortfolioVolatility: 0.15,
		SharpeRatio:         1.2,
	}

	assert.Empty(t, e.Evaluate(rec, []float64{1, 1, 1}))
}

func TestFlagsAlwaysPresent(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	rec := &metrics.Record{
		VaR95:               -0.03,
		Beta:                1.0,
		PortfolioVolatility: 0.10,
	}

	flags := e.Flags(rec, nil)
	require.Len(t, flags, 4)
	assert.True(t, flags[FlagVaRBreach])
	assert.False(t, flags[FlagBetaHigh])
	assert.False(t, flags[FlagVolatilityHigh])
	assert.False(t, flags[FlagSharpeNegative])
}
