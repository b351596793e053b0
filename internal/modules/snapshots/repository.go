package snapshots

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Repository handles portfolio snapshot storage
type Repository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert stores a snapshot. Snapshots are immutable: a second insert
// for the same (portfolio_id, date) is ignored, not overwritten.
func (r *Repository) Insert(s *Snapshot) error {
	if len(s.Assets) == 0 {
		return fmt.Errorf("snapshot %s/%s has no assets", s.PortfolioID, s.Date.Format(dateLayout))
	}
	if !s.ValidWeights() {
		return fmt.Errorf("snapshot %s/%s weights do not sum to 1.0", s.PortfolioID, s.Date.Format(dateLayout))
	}

	assetsJSON, err := json.Marshal(s.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot assets: %w", err)
	}

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.portfolioDB.Exec(
		`INSERT INTO portfolio_snapshots (portfolio_id, date, assets, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (portfolio_id, date) DO NOTHING`,
		s.PortfolioID,
		s.Date.UTC().Format(dateLayout),
		string(assetsJSON),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// ListKeys returns every (portfolio_id, date) pair in ascending
// portfolio then date order, optionally filtered to one portfolio.
// This is the orchestrator's sweep ordering.
func (r *Repository) ListKeys(portfolioID string) ([]Key, error) {
	query := `SELECT portfolio_id, date FROM portfolio_snapshots`
	var args []interface{}
	if portfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}
	query += ` ORDER BY portfolio_id ASC, date ASC`

	rows, err := r.portfolioDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot key: %w", err)
		}
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot date %q: %w", date, err)
		}
		keys = append(keys, Key{PortfolioID: id, Date: t.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot keys: %w", err)
	}

	return keys, nil
}

// Get returns a single snapshot, or nil when none exists
func (r *Repository) Get(portfolioID string, date time.Time) (*Snapshot, error) {
	row := r.portfolioDB.QueryRow(
		`SELECT portfolio_id, date, assets, created_at
		 FROM portfolio_snapshots
		 WHERE portfolio_id = ? AND date = ?`,
		portfolioID, date.UTC().Format(dateLayout),
	)

	var id, dateStr, assetsJSON, createdAtStr string
	if err := row.Scan(&id, &dateStr, &assetsJSON, &createdAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	var assets []Asset
	if err := json.Unmarshal([]byte(assetsJSON), &assets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot assets: %w", err)
	}

	t, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot date %q: %w", dateStr, err)
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot created_at %q: %w", createdAtStr, err)
	}

	return &Snapshot{
		PortfolioID: id,
		Date:        t.UTC(),
		Assets:      assets,
		CreatedAt:   createdAt,
	}, nil
}

// Weights returns the holdings weights for a snapshot
func (r *Repository) Weights(portfolioID string, date time.Time) (map[string]float64, error) {
	snapshot, err := r.Get(portfolioID, date)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("no holdings found for %s on %s", portfolioID, date.Format(dateLayout))
	}
	return snapshot.Weights(), nil
}

// Portfolios returns the distinct portfolio identifiers in the store
func (r *Repository) Portfolios() ([]string, error) {
	rows, err := r.portfolioDB.Query(
		`SELECT DISTINCT portfolio_id FROM portfolio_snapshots ORDER BY portfolio_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return ids, nil
}
