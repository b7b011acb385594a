package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("experiment name already exists")
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    start_date INTEGER,
    end_date INTEGER,
    variants TEXT NOT NULL,
    target_audience TEXT,
    goals TEXT,
    winner TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);
CREATE INDEX IF NOT EXISTS idx_experiments_type ON experiments(type);

CREATE TABLE IF NOT EXISTS experiment_results (
    experiment_id TEXT NOT NULL,
    metric TEXT NOT NULL,
    variant TEXT NOT NULL,
    value REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (experiment_id, metric, variant)
);

CREATE TABLE IF NOT EXISTS assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    engagements INTEGER NOT NULL DEFAULT 0,
    last_activity INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_user ON assignments(experiment_id, user_id);
CREATE INDEX IF NOT EXISTS idx_assignments_variant ON assignments(experiment_id, variant);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, audienceJSON, goalsJSON, err := marshalExperimentBlobs(exp)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, name, type, status, start_date, end_date, variants, target_audience, goals, winner, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, string(exp.Type), string(exp.Status),
		nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		variantsJSON, audienceJSON, goalsJSON, nullableString(exp.Winner),
		exp.CreatedAt.Unix(), exp.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueNameViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	for _, m := range Metrics {
		for _, v := range exp.Variants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO experiment_results (experiment_id, metric, variant, value) VALUES (?, ?, ?, 0)`,
				exp.ID, string(m), v.Name,
			); err != nil {
				return fmt.Errorf("failed to initialize result counters: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experiment: %w", err)
	}
	return nil
}

const experimentColumns = `id, name, type, status, start_date, end_date, variants, target_audience, goals, winner, created_at, updated_at`

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	exp, err := scanExperiment(row)
	if err != nil {
		return nil, err
	}
	if exp.Results, err = s.GetResults(ctx, exp.ID); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLiteStore) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
	exp, err := scanExperiment(row)
	if err != nil {
		return nil, err
	}
	if exp.Results, err = s.GetResults(ctx, exp.ID); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, filter Filter) ([]*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments`
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan experiments: %w", err)
	}

	for _, exp := range experiments {
		if exp.Results, err = s.GetResults(ctx, exp.ID); err != nil {
			return nil, err
		}
	}

	return experiments, nil
}

func (s *SQLiteStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, audienceJSON, goalsJSON, err := marshalExperimentBlobs(exp)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments
		 SET name = ?, type = ?, status = ?, start_date = ?, end_date = ?,
		     variants = ?, target_audience = ?, goals = ?, winner = ?, updated_at = ?
		 WHERE id = ?`,
		exp.Name, string(exp.Type), string(exp.Status),
		nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		variantsJSON, audienceJSON, goalsJSON, nullableString(exp.Winner),
		exp.UpdatedAt.Unix(), exp.ID,
	)
	if err != nil {
		if isUniqueNameViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	// Variants can be added by an update; make sure every metric/variant
	// counter row exists so increments and reads see zeros, not gaps.
	for _, m := range Metrics {
		for _, v := range exp.Variants {
			if _, err := s.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO experiment_results (experiment_id, metric, variant, value) VALUES (?, ?, ?, 0)`,
				exp.ID, string(m), v.Name,
			); err != nil {
				return fmt.Errorf("failed to backfill result counters: %w", err)
			}
		}
	}

	return nil
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Cascade: assignments and denormalized counters go with the experiment.
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM experiment_results WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete result counters: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	var a Assignment
	var lastActivity, createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, user_id, variant, impressions, conversions, revenue, engagements, last_activity, created_at
		 FROM assignments WHERE experiment_id = ? AND user_id = ?`,
		experimentID, userID,
	).Scan(&a.ID, &a.ExperimentID, &a.UserID, &a.Variant,
		&a.Impressions, &a.Conversions, &a.Revenue, &a.Engagements,
		&lastActivity, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	a.LastActivity = time.Unix(lastActivity, 0)
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

func (s *SQLiteStore) InsertAssignment(ctx context.Context, a *Assignment) (bool, error) {
	// INSERT OR IGNORE plus the unique (experiment_id, user_id) index makes
	// concurrent first-time assignment converge: the loser sees zero rows
	// affected and must re-read the winner's row.
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (experiment_id, user_id, variant, impressions, conversions, revenue, engagements, last_activity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ExperimentID, a.UserID, a.Variant,
		a.Impressions, a.Conversions, a.Revenue, a.Engagements,
		a.LastActivity.Unix(), a.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return true, nil
}

func (s *SQLiteStore) IncrementAssignmentMetric(ctx context.Context, experimentID, userID string, metric Metric, delta float64, at time.Time) error {
	column, err := metricColumn(metric)
	if err != nil {
		return err
	}

	// The increment happens in SQL, never read-modify-write in Go, so
	// concurrent events from the same user cannot lose updates.
	var value interface{} = delta
	if metric != MetricRevenue {
		value = int64(delta)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET `+column+` = `+column+` + ?, last_activity = ?
		 WHERE experiment_id = ? AND user_id = ?`,
		value, at.Unix(), experimentID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) IncrementResultCounter(ctx context.Context, experimentID string, metric Metric, variant string, delta float64) error {
	if _, err := metricColumn(metric); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_results (experiment_id, metric, variant, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(experiment_id, metric, variant) DO UPDATE SET value = value + excluded.value`,
		experimentID, string(metric), variant, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to increment result counter: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResults(ctx context.Context, experimentID string) (Results, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, variant, value FROM experiment_results WHERE experiment_id = ?`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := make(Results)
	for rows.Next() {
		var metric, variant string
		var value float64
		if err := rows.Scan(&metric, &variant, &value); err != nil {
			return nil, fmt.Errorf("failed to scan result counter: %w", err)
		}
		byVariant := results[Metric(metric)]
		if byVariant == nil {
			byVariant = make(map[string]float64)
			results[Metric(metric)] = byVariant
		}
		byVariant[variant] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan result counters: %w", err)
	}
	return results, nil
}

func (s *SQLiteStore) VariantTotals(ctx context.Context, experimentID string) ([]VariantTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant,
			COUNT(*) as users,
			COALESCE(SUM(impressions), 0),
			COALESCE(SUM(conversions), 0),
			COALESCE(SUM(revenue), 0),
			COALESCE(SUM(engagements), 0)
		FROM assignments
		WHERE experiment_id = ?
		GROUP BY variant
		ORDER BY variant
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant totals: %w", err)
	}
	defer rows.Close()

	var totals []VariantTotals
	for rows.Next() {
		var t VariantTotals
		if err := rows.Scan(&t.Variant, &t.Users, &t.Impressions, &t.Conversions, &t.Revenue, &t.Engagements); err != nil {
			return nil, fmt.Errorf("failed to scan variant totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan variant totals: %w", err)
	}
	return totals, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var expType, status string
	var startDate, endDate sql.NullInt64
	var variantsJSON string
	var audienceJSON, goalsJSON, winner sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &expType, &status, &startDate, &endDate,
		&variantsJSON, &audienceJSON, &goalsJSON, &winner, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	exp.Type = ExperimentType(expType)
	exp.Status = ExperimentStatus(status)

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if audienceJSON.Valid && audienceJSON.String != "" {
		if err := json.Unmarshal([]byte(audienceJSON.String), &exp.TargetAudience); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target audience: %w", err)
		}
	}
	if goalsJSON.Valid && goalsJSON.String != "" {
		if err := json.Unmarshal([]byte(goalsJSON.String), &exp.Goals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal goals: %w", err)
		}
	}
	if winner.Valid {
		w := winner.String
		exp.Winner = &w
	}
	if startDate.Valid {
		t := time.Unix(startDate.Int64, 0)
		exp.StartDate = &t
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func marshalExperimentBlobs(exp *Experiment) (variants, audience, goals string, err error) {
	v, err := json.Marshal(exp.Variants)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal variants: %w", err)
	}
	a, err := json.Marshal(exp.TargetAudience)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal target audience: %w", err)
	}
	g, err := json.Marshal(exp.Goals)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal goals: %w", err)
	}
	return string(v), string(a), string(g), nil
}

func metricColumn(metric Metric) (string, error) {
	switch metric {
	case MetricImpressions:
		return "impressions", nil
	case MetricConversions:
		return "conversions", nil
	case MetricRevenue:
		return "revenue", nil
	case MetricEngagements:
		return "engagements", nil
	default:
		return "", fmt.Errorf("unknown metric: %s", metric)
	}
}

func isUniqueNameViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "experiments.name")
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
