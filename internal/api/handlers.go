package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"camera-alert-service/internal/auth"
	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/models"
)

// EventStore persists ingested events. *db.DB satisfies it.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
}

// AlertStore serves the alert query boundary. *db.DB satisfies it.
type AlertStore interface {
	GetAlertsByUserID(ctx context.Context, userID int64, severity string, limit, offset int) ([]models.Alert, error)
}

// Enqueuer submits tasks to the work queue. *queue.Producer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, task models.Task) error
}

type Handler struct {
	events   EventStore
	alerts   AlertStore
	queue    Enqueuer
	verifier auth.Verifier
	hub      Registry
	logger   *logging.Logger

	enqueueTimeout time.Duration
}

func NewHandler(events EventStore, alerts AlertStore, queue Enqueuer, verifier auth.Verifier, hub Registry, logger *logging.Logger, enqueueTimeout time.Duration) *Handler {
	return &Handler{
		events:         events,
		alerts:         alerts,
		queue:          queue,
		verifier:       verifier,
		hub:            hub,
		logger:         logger,
		enqueueTimeout: enqueueTimeout,
	}
}

// CreateEvent admits a new event: validate, persist, then best-effort
// enqueue. The response never waits on or fails because of the queue; once
// the write succeeded the caller gets the stored event back.
func (h *Handler) CreateEvent(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication"})
		return
	}

	var req models.EventCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid event payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := models.Event{
		DeviceID:   req.DeviceID,
		EventType:  req.EventType,
		Confidence: *req.Confidence,
		RawData:    req.RawData,
		UserID:     userID,
	}

	if err := h.events.CreateEvent(c.Request.Context(), &event); err != nil {
		h.logger.Errorf("Failed to create event for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}

	// Detached from the request context so a client disconnect cannot cancel
	// the submission; bounded so a hung broker cannot stall the response.
	ctx, cancel := context.WithTimeout(context.Background(), h.enqueueTimeout)
	defer cancel()
	if err := h.queue.Enqueue(ctx, models.Task{EventID: event.ID}); err != nil {
		// The event is already persisted; processing is deferred, not the
		// caller's problem.
		h.logger.Errorf("Failed to enqueue task for event %d: %v", event.ID, err)
	} else {
		h.logger.Infof("Queued task for event %d", event.ID)
	}

	c.JSON(http.StatusCreated, event)
}

// GetAlerts returns the caller's alerts newest-first, optionally filtered by
// severity, paginated by skip/limit.
func (h *Handler) GetAlerts(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication"})
		return
	}

	severity := c.Query("severity")
	if severity != "" && severity != models.SeverityCritical && severity != models.SeverityNormal {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be critical or normal"})
		return
	}

	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	alerts, err := h.alerts.GetAlertsByUserID(c.Request.Context(), userID, severity, limit, skip)
	if err != nil {
		h.logger.Errorf("Failed to get alerts for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	h.logger.Infof("Retrieved %d alerts for user %d", len(alerts), userID)
	c.JSON(http.StatusOK, alerts)
}
