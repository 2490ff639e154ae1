// Package worker runs the task processing loops: dequeue a task, load the
// referenced event, derive an alert, persist it, and publish it to live
// subscribers. Redelivered tasks are made safe by an idempotence check
// against the alert store.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"camera-alert-service/internal/db"
	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/models"
	"camera-alert-service/internal/queue"
	"camera-alert-service/internal/utils"
)

// EventStore loads ingested events. *db.DB satisfies it.
type EventStore interface {
	GetEventByID(ctx context.Context, id int64) (models.Event, error)
}

// AlertStore persists and looks up derived alerts. *db.DB satisfies it.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlertByEventID(ctx context.Context, eventID int64) (models.Alert, error)
}

// Publisher fans a freshly created alert out to live subscribers.
type Publisher interface {
	Publish(alert models.Alert)
}

// Notifier is an optional side-channel for critical alerts.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// Source is the dequeue side of the work queue. *queue.Consumer satisfies it.
type Source interface {
	Fetch(ctx context.Context) (models.Task, kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// DeadLetter receives tasks that exhausted their retries.
type DeadLetter interface {
	Enqueue(ctx context.Context, task models.Task) error
}

// Service processes tasks. One Service drives any number of Run loops.
type Service struct {
	events     EventStore
	alerts     AlertStore
	hub        Publisher
	classifier Classifier
	deadLetter DeadLetter
	notifier   Notifier // nil when no side-channel is configured
	logger     *logging.Logger

	maxAttempts int
	retryDelay  time.Duration
}

func New(events EventStore, alerts AlertStore, hub Publisher, classifier Classifier, deadLetter DeadLetter, notifier Notifier, logger *logging.Logger, maxAttempts int, retryDelay time.Duration) *Service {
	return &Service{
		events:      events,
		alerts:      alerts,
		hub:         hub,
		classifier:  classifier,
		deadLetter:  deadLetter,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Run consumes tasks from source until ctx is cancelled. A task is committed
// only after processing succeeds, so a crash mid-processing redelivers it.
// Failures are confined to the task at hand; the loop never stops on one bad
// task.
func (s *Service) Run(ctx context.Context, id int, source Source, wg *sync.WaitGroup) {
	defer wg.Done()
	s.logger.Infof("Worker %d started", id)

	for {
		task, msg, err := source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infof("Worker %d stopped", id)
				return
			}
			if errors.Is(err, queue.ErrBadTask) {
				s.logger.Errorf("Worker %d dropping malformed task: %v", id, err)
				if err := source.Commit(ctx, msg); err != nil {
					s.logger.Errorf("Worker %d commit failed: %v", id, err)
				}
				continue
			}
			s.logger.Errorf("Worker %d fetch failed: %v", id, err)
			select {
			case <-ctx.Done():
				s.logger.Infof("Worker %d stopped", id)
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		err = utils.Retry(ctx, s.logger, s.maxAttempts, s.retryDelay, func() error {
			return s.processTask(ctx, task)
		})
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infof("Worker %d stopped", id)
				return
			}
			s.logger.Errorf("Task for event %d failed after %d attempts: %v", task.EventID, s.maxAttempts, err)
			// Commits advance the group offset for the whole partition, so
			// fetching past this task would let a later commit acknowledge it
			// unprocessed. Park here until the dead-letter write lands.
			if !s.moveToDeadLetter(ctx, task) {
				s.logger.Infof("Worker %d stopped", id)
				return
			}
			s.logger.Warnf("Task for event %d moved to dead letter", task.EventID)
		}

		if err := source.Commit(ctx, msg); err != nil {
			s.logger.Errorf("Worker %d commit failed for event %d: %v", id, task.EventID, err)
		}
	}
}

// moveToDeadLetter retries the dead-letter write with doubling delay until it
// succeeds, reporting false when ctx is cancelled first. The caller keeps the
// task's offset uncommitted in that case, so the queue redelivers it.
func (s *Service) moveToDeadLetter(ctx context.Context, task models.Task) bool {
	delay := s.retryDelay
	for {
		err := s.deadLetter.Enqueue(ctx, task)
		if err == nil {
			return true
		}
		s.logger.Errorf("Dead-letter enqueue failed for event %d: %v", task.EventID, err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

// processTask derives and persists the alert for one task. A nil return
// means the task is finished (including the drop and already-processed
// cases); any error is transient and eligible for retry.
func (s *Service) processTask(ctx context.Context, task models.Task) error {
	event, err := s.events.GetEventByID(ctx, task.EventID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.logger.Warnf("Event %d not found, dropping task", task.EventID)
			return nil
		}
		return err
	}

	// Idempotence check: at-least-once delivery means the same task can
	// arrive again after a crash. An existing alert ends processing here,
	// with no second write and no second publish.
	if existing, err := s.alerts.GetAlertByEventID(ctx, task.EventID); err == nil {
		s.logger.Infof("Alert %d already exists for event %d, skipping", existing.ID, task.EventID)
		return nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	severity, description := s.classifier.Classify(event)
	alert := models.Alert{
		EventID:     event.ID,
		Severity:    severity,
		Description: description,
		UserID:      event.UserID,
	}

	if err := s.alerts.CreateAlert(ctx, &alert); err != nil {
		return err
	}

	s.hub.Publish(alert)
	if s.notifier != nil && severity == models.SeverityCritical {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.logger.Errorf("Side-channel notify failed for alert %d: %v", alert.ID, err)
		}
	}

	s.logger.Infof("Created %s alert %d for event %d", severity, alert.ID, event.ID)
	return nil
}
