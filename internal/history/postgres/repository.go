// Package postgres provides the PostgreSQL implementation of the delivery
// journal.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"moodle-herald/internal/history"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository implements history.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL journal repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Migrate applies the embedded journal schema migrations.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, pgxURL(databaseURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// pgxURL rewrites a postgres:// URL to the scheme registered by the
// migrate pgx/v5 driver.
func pgxURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if len(databaseURL) > len(prefix) && databaseURL[:len(prefix)] == prefix {
			return "pgx5://" + databaseURL[len(prefix):]
		}
	}
	return databaseURL
}

// RecordDelivery appends a journal entry.
func (r *Repository) RecordDelivery(ctx context.Context, d *history.Delivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deliveries (id, notification_id, subject, verdict, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query,
		d.ID,
		d.NotificationID,
		d.Subject,
		d.Verdict,
		d.Channels,
		d.CreatedAt,
	); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// ListRecent returns the newest deliveries, most recent first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]history.Delivery, error) {
	query := `
		SELECT id, notification_id, subject, verdict, channels, created_at
		FROM deliveries
		ORDER BY created_at DESC, notification_id DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []history.Delivery
	for rows.Next() {
		var d history.Delivery
		if err := rows.Scan(
			&d.ID,
			&d.NotificationID,
			&d.Subject,
			&d.Verdict,
			&d.Channels,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return deliveries, nil
}
