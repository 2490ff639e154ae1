package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"camera-alert-service/internal/models"
)

// CreateAlert inserts a new alert and fills in its generated id and created_at.
// The unique index on event_id enforces the one-alert-per-event invariant at
// the storage level.
func (d *DB) CreateAlert(ctx context.Context, alert *models.Alert) error {
	query := `
        INSERT INTO alerts (event_id, severity, description, user_id)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	err := d.Pool.QueryRow(ctx, query,
		alert.EventID,
		alert.Severity,
		alert.Description,
		alert.UserID,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert for event %d: %w", alert.EventID, err)
	}
	return nil
}

// GetAlertByEventID fetches the alert derived from one event.
// Returns ErrNotFound when no alert exists yet.
func (d *DB) GetAlertByEventID(ctx context.Context, eventID int64) (models.Alert, error) {
	query := `
        SELECT id, event_id, severity, description, created_at, user_id
        FROM alerts
        WHERE event_id = $1`

	var a models.Alert
	err := d.Pool.QueryRow(ctx, query, eventID).Scan(
		&a.ID,
		&a.EventID,
		&a.Severity,
		&a.Description,
		&a.CreatedAt,
		&a.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Alert{}, ErrNotFound
		}
		return models.Alert{}, fmt.Errorf("failed to get alert for event %d: %w", eventID, err)
	}
	return a, nil
}

// GetAlertsByUserID fetches a user's alerts newest-first with pagination and
// an optional severity filter ("" means all severities).
func (d *DB) GetAlertsByUserID(ctx context.Context, userID int64, severity string, limit, offset int) ([]models.Alert, error) {
	query := `
        SELECT id, event_id, severity, description, created_at, user_id
        FROM alerts
        WHERE user_id = $1`

	args := []interface{}{userID}
	if severity != "" {
		query += " AND severity = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
		args = append(args, severity, limit, offset)
	} else {
		query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		var a models.Alert
		err := rows.Scan(&a.ID, &a.EventID, &a.Severity, &a.Description, &a.CreatedAt, &a.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	return list, nil
}
