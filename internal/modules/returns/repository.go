// Package returns assembles aligned daily return series from stored
// close prices.
package returns

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Price is a single stored close price
type Price struct {
	Ticker string
	Date   time.Time
	Close  float64
}

// Repository reads and writes the price history store
type Repository struct {
	historyDB *sql.DB
	log       zerolog.Logger
}

// NewRepository creates a new price repository
func NewRepository(historyDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		historyDB: historyDB,
		log:       log.With().Str("repo", "prices").Logger(),
	}
}

// UpsertPrices writes close prices, replacing any existing (ticker, date) rows
func (r *Repository) UpsertPrices(prices []Price) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := r.historyDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO prices (ticker, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET close = excluded.close`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.Exec(p.Ticker, p.Date.UTC().Format(dateLayout), p.Close); err != nil {
			return fmt.Errorf("failed to upsert price %s/%s: %w", p.Ticker, p.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	return nil
}

// ReturnsWindow assembles the daily return series for all tickers with
// prices in the lookback window ending at endDate (inclusive).
//
// Prices are pivoted into a date-by-ticker table; the daily return is
// (close_t - close_{t-1}) / close_{t-1} against the previous trading
// day in the window. Gaps are forward-filled at the price level; a
// return that cannot be computed (leading gap) is 0.0. The first row
// of the window has no prior close and is dropped.
func (r *Repository) ReturnsWindow(endDate time.Time, lookbackDays int) (*Series, error) {
	startDate := endDate.AddDate(0, 0, -lookbackDays)

	rows, err := r.historyDB.Query(
		`SELECT ticker, date, close FROM prices
		 WHERE date >= ? AND date <= ?
		 ORDER BY date ASC`,
		startDate.UTC().Format(dateLayout),
		endDate.UTC().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	// Pivot: ticker -> date -> close
	closes := make(map[string]map[string]float64)
	dateSet := make(map[string]struct{})

	for rows.Next() {
		var ticker, date string
		var close float64
		if err := rows.Scan(&ticker, &date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if closes[ticker] == nil {
			closes[ticker] = make(map[string]float64)
		}
		closes[ticker][date] = close
		dateSet[date] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	if len(dateSet) < 2 {
		r.log.Warn().
			Time("start", startDate).
			Time("end", endDate).
			Int("dates", len(dateSet)).
			Msg("Not enough price data in window")
		return NewSeries(), nil
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	series := NewSeries()
	series.Dates = make([]time.Time, 0, len(dates)-1)
	for _, d := range dates[1:] {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in price store: %w", d, err)
		}
		series.Dates = append(series.Dates, t.UTC())
	}

	for ticker, byDate := range closes {
		col := make([]float64, 0, len(dates)-1)
		prev := math.NaN()
		if c, ok := byDate[dates[0]]; ok {
			prev = c
		}
		for _, d := range dates[1:] {
			close, ok := byDate[d]
			if !ok {
				// Forward-fill the price through the gap; zero return
				col = append(col, 0.0)
				continue
			}
			if math.IsNaN(prev) || prev == 0 {
				col = append(col, 0.0)
			} else {
				col = append(col, (close-prev)/prev)
			}
			prev = close
		}
		series.Columns[ticker] = col
	}

	r.log.Debug().
		Int("days", series.Len()).
		Int("tickers", len(series.Columns)).
		Time("start", startDate).
		Time("end", endDate).
		Msg("Assembled return series")

	return series, nil
}
