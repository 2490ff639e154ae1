package models

import "time"

// Alert severity values assigned by the decision function.
const (
	SeverityCritical = "critical"
	SeverityNormal   = "normal"
)

// Event is a single camera observation. Events are immutable once stored.
type Event struct {
	ID         int64                  `json:"id"`
	DeviceID   string                 `json:"device_id"`
	EventType  string                 `json:"event_type"`
	Confidence float64                `json:"confidence"`
	RawData    map[string]interface{} `json:"raw_data"`
	Timestamp  time.Time              `json:"timestamp"`
	UserID     int64                  `json:"user_id"`
}

// EventCreate is the ingestion request body. Confidence is a pointer so a
// legitimate 0.0 survives the required check.
type EventCreate struct {
	DeviceID   string                 `json:"device_id" binding:"required"`
	EventType  string                 `json:"event_type" binding:"required"`
	Confidence *float64               `json:"confidence" binding:"required,gte=0,lte=1"`
	RawData    map[string]interface{} `json:"raw_data" binding:"required"`
}

// Alert is the outcome of evaluating one Event. Each Event yields at most one
// Alert; UserID is copied from the Event at creation time.
type Alert struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      int64     `json:"user_id"`
}

// Task is the queued reference to an Event awaiting processing.
type Task struct {
	EventID int64 `json:"event_id"`
}
