package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	domain "github.com/oshokin/breathe-tracking/internal/domain/incident"
)

//nolint:gochecknoglobals // Statements run in order by EnsureSchema.
var schema = []string{`
CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	sensor_id   TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	resolved    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS incidents_sensor_created_idx ON incidents (sensor_id, created_at DESC)`,
}

const selectColumns = `id, sensor_id, title, message, location, status, created_at, resolved_at`

// PostgresRepository persists incidents in PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects to url through the pgx driver and makes sure the schema exists.
func OpenPostgres(ctx context.Context, url string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := NewPostgresRepository(db)
	if err = repo.EnsureSchema(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return repo, nil
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the incidents table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create incidents schema: %w", err)
		}
	}

	return nil
}

// Insert implements Repository.
func (r *PostgresRepository) Insert(ctx context.Context, inc *domain.Incident) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO incidents (id, sensor_id, title, message, location, status, resolved, created_at, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.ID, inc.SensorID, inc.Title, inc.Message, inc.Location,
		string(inc.Status), inc.Resolved(), inc.CreatedAt, nullTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}

	return nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM incidents WHERE id = $1`, id)

	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}

		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}

	return inc, nil
}

// ListBySensor implements Repository.
func (r *PostgresRepository) ListBySensor(ctx context.Context, sensorID string, limit int) ([]*domain.Incident, error) {
	query := `SELECT ` + selectColumns + ` FROM incidents WHERE sensor_id = $1 ORDER BY created_at DESC, id`
	args := []any{sensorID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents of %s: %w", sensorID, err)
	}
	defer rows.Close()

	var result []*domain.Incident

	for rows.Next() {
		inc, scanErr := scanIncident(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan incident: %w", scanErr)
		}

		result = append(result, inc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents of %s: %w", sensorID, err)
	}

	return result, nil
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, inc *domain.Incident) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE incidents
SET title = $2, message = $3, location = $4, status = $5, resolved = $6, resolved_at = $7
WHERE id = $1`,
		inc.ID, inc.Title, inc.Message, inc.Location,
		string(inc.Status), inc.Resolved(), nullTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("update incident %s: %w", inc.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident %s: %w", inc.ID, err)
	}

	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Close implements Repository.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*domain.Incident, error) {
	var (
		inc        domain.Incident
		status     string
		resolvedAt sql.NullTime
	)

	err := row.Scan(&inc.ID, &inc.SensorID, &inc.Title, &inc.Message, &inc.Location,
		&status, &inc.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if inc.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		inc.ResolvedAt = resolvedAt.Time
	}

	return &inc, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
