package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"camera-alert-service/internal/models"
)

// CreateEvent inserts a new event and fills in its generated id and timestamp.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
        INSERT INTO events (device_id, event_type, confidence, raw_data, timestamp, user_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, timestamp`

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	err := d.Pool.QueryRow(ctx, query,
		event.DeviceID,
		event.EventType,
		event.Confidence,
		event.RawData,
		ts,
		event.UserID,
	).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEventByID fetches one event. Returns ErrNotFound if it does not exist.
func (d *DB) GetEventByID(ctx context.Context, id int64) (models.Event, error) {
	query := `
        SELECT id, device_id, event_type, confidence, raw_data, timestamp, user_id
        FROM events
        WHERE id = $1`

	var ev models.Event
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&ev.ID,
		&ev.DeviceID,
		&ev.EventType,
		&ev.Confidence,
		&ev.RawData,
		&ev.Timestamp,
		&ev.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, ErrNotFound
		}
		return models.Event{}, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return ev, nil
}
