package metrics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/database"
)

const dateLayout = "2006-01-02"

// Repository handles risk metric record storage
type Repository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a new metric record repository
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "risk_metrics").Logger(),
	}
}

// UpsertBatch writes a batch of records in a single transaction: the
// batch either fully commits or leaves the store untouched. Existing
// (portfolio_id, date) records are superseded.
func (r *Repository) UpsertBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	err := database.WithTransaction(r.portfolioDB, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO risk_metrics
			(portfolio_id, date, var_95, expected_shortfall, sharpe_ratio, beta,
			 portfolio_volatility, confidence_level, n_simulations, window, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (portfolio_id, date) DO UPDATE SET
				var_95 = excluded.var_95,
				expected_shortfall = excluded.expected_shortfall,
				sharpe_ratio = excluded.sharpe_ratio,
				beta = excluded.beta,
				portfolio_volatility = excluded.portfolio_volatility,
				confidence_level = excluded.confidence_level,
				n_simulations = excluded.n_simulations,
				window = excluded.window,
				computed_at = excluded.computed_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare metric upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			_, err := stmt.Exec(
				rec.PortfolioID,
				rec.Date.UTC().Format(dateLayout),
				rec.VaR95,
				rec.ExpectedShortfall,
				rec.SharpeRatio,
				rec.Beta,
				rec.PortfolioVolatility,
				rec.Params.ConfidenceLevel,
				rec.Params.Simulations,
				rec.Params.Window,
				rec.ComputedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert metrics for %s/%s: %w",
					rec.PortfolioID, rec.Date.Format(dateLayout), err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("count", len(records)).Msg("Upserted metric records")
	return nil
}

// Latest returns the most recent record for a portfolio, or nil when
// none exists. Served by the (portfolio_id, date DESC) index.
func (r *Repository) Latest(portfolioID string) (*Record, error) {
	row := r.portfolioDB.QueryRow(
		`SELECT portfolio_id, date, var_95, expected_shortfall, sharpe_ratio, beta,
			portfolio_volatility, confidence_level, n_simulations, window, computed_at
		 FROM risk_metrics
		 WHERE portfolio_id = ?
		 ORDER BY date DESC
		 LIMIT 1`,
		portfolioID,
	)

	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// History returns records for a portfolio over the trailing number of
// days, oldest first.
func (r *Repository) History(portfolioID string, days int) ([]Record, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(dateLayout)

	rows, err := r.portfolioDB.Query(
		`SELECT portfolio_id, date, var_95, expected_shortfall, sharpe_ratio, beta,
			portfolio_volatility, confidence_level, n_simulations, window, computed_at
		 FROM risk_metrics
		 WHERE portfolio_id = ? AND date >= ?
		 ORDER BY date ASC`,
		portfolioID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric history: %w", err)
	}

	return records, nil
}

// Count returns the number of records for a portfolio ("" for all)
func (r *Repository) Count(portfolioID string) (int, error) {
	query := `SELECT COUNT(*) FROM risk_metrics`
	var args []interface{}
	if portfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}

	var count int
	if err := r.portfolioDB.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count metric records: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var dateStr, computedAtStr string

	err := row.Scan(
		&rec.PortfolioID,
		&dateStr,
		&rec.VaR95,
		&rec.ExpectedShortfall,
		&rec.SharpeRatio,
		&rec.Beta,
		&rec.PortfolioVolatility,
		&rec.Params.ConfidenceLevel,
		&rec.Params.Simulations,
		&rec.Params.Window,
		&computedAtStr,
	)
	if err != nil {
		return nil, err
	}

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid metric date %q: %w", dateStr, err)
	}
	computedAt, err := time.Parse(time.RFC3339, computedAtStr)
	if err != nil {
		return nil, fmt.Errorf("invalid computed_at %q: %w", computedAtStr, err)
	}

	rec.Date = date.UTC()
	rec.ComputedAt = computedAt.UTC()
	return &rec, nil
}
