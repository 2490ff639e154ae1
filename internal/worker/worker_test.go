package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-alert-service/internal/db"
	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/models"
)

type fakeEvents struct {
	events map[int64]models.Event
	err    error
}

func (f *fakeEvents) GetEventByID(ctx context.Context, id int64) (models.Event, error) {
	if f.err != nil {
		return models.Event{}, f.err
	}
	ev, ok := f.events[id]
	if !ok {
		return models.Event{}, db.ErrNotFound
	}
	return ev, nil
}

type fakeAlerts struct {
	mu          sync.Mutex
	byEventID   map[int64]models.Alert
	nextID      int64
	failCreates int
	failEventID int64
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{byEventID: make(map[int64]models.Alert)}
}

func (f *fakeAlerts) CreateAlert(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("store unavailable")
	}
	if f.failEventID != 0 && alert.EventID == f.failEventID {
		return errors.New("store unavailable")
	}
	f.nextID++
	alert.ID = f.nextID
	alert.CreatedAt = time.Now().UTC()
	f.byEventID[alert.EventID] = *alert
	return nil
}

func (f *fakeAlerts) GetAlertByEventID(ctx context.Context, eventID int64) (models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byEventID[eventID]
	if !ok {
		return models.Alert{}, db.ErrNotFound
	}
	return a, nil
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEventID)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Alert
}

func (f *fakePublisher) Publish(alert models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, alert)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeDeadLetter struct {
	mu       sync.Mutex
	tasks    []models.Task
	err      error
	failures int // fail this many enqueues before succeeding
}

func (f *fakeDeadLetter) Enqueue(ctx context.Context, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("broker down")
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeDeadLetter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

// fakeSource feeds tasks from a channel and records fetches and commits.
type fakeSource struct {
	tasks    chan models.Task
	fetchErr error
	mu       sync.Mutex
	fetches  int
	commits  int
}

func (f *fakeSource) Fetch(ctx context.Context) (models.Task, kafka.Message, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetchErr != nil {
		return models.Task{}, kafka.Message{}, f.fetchErr
	}
	select {
	case task := <-f.tasks:
		return task, kafka.Message{}, nil
	case <-ctx.Done():
		return models.Task{}, kafka.Message{}, ctx.Err()
	}
}

func (f *fakeSource) fetched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) Commit(ctx context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeSource) committed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(t.TempDir(), "error")
	require.NoError(t, err)
	return logger
}

func testEvent(id int64) models.Event {
	return models.Event{
		ID:         id,
		DeviceID:   "camera_001",
		EventType:  "motion_detected",
		Confidence: 0.9,
		RawData:    map[string]interface{}{"zone": "entrance"},
		Timestamp:  time.Now().UTC(),
		UserID:     42,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessTaskCreatesAlert(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1)}}
	alerts := newFakeAlerts()
	pub := &fakePublisher{}
	notify := &fakeNotifier{}
	svc := New(events, alerts, pub, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, notify, testLogger(t), 3, time.Millisecond)

	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 1}))

	require.Equal(t, 1, alerts.count())
	created := alerts.byEventID[1]
	assert.Equal(t, int64(1), created.EventID)
	assert.Equal(t, models.SeverityCritical, created.Severity)
	assert.Equal(t, "Processed motion_detected event from device camera_001", created.Description)
	assert.Equal(t, int64(42), created.UserID, "alert owner copied from the event")

	require.Equal(t, 1, pub.count())
	assert.Equal(t, created.ID, pub.published[0].ID)
	assert.Len(t, notify.alerts, 1, "critical alert reaches the side-channel")
}

func TestProcessTaskNormalSeveritySkipsNotifier(t *testing.T) {
	ev := testEvent(1)
	ev.Confidence = 0.2
	events := &fakeEvents{events: map[int64]models.Event{1: ev}}
	alerts := newFakeAlerts()
	notify := &fakeNotifier{}
	svc := New(events, alerts, &fakePublisher{}, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, notify, testLogger(t), 3, time.Millisecond)

	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 1}))

	assert.Equal(t, models.SeverityNormal, alerts.byEventID[1].Severity)
	assert.Empty(t, notify.alerts)
}

func TestProcessTaskIdempotentUnderRedelivery(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1)}}
	alerts := newFakeAlerts()
	pub := &fakePublisher{}
	svc := New(events, alerts, pub, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, nil, testLogger(t), 3, time.Millisecond)

	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 1}))
	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 1}))

	assert.Equal(t, 1, alerts.count(), "redelivery must not create a second alert")
	assert.Equal(t, 1, pub.count(), "redelivery must not publish a second time")
}

func TestProcessTaskMissingEventDropsTask(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{}}
	alerts := newFakeAlerts()
	pub := &fakePublisher{}
	svc := New(events, alerts, pub, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, nil, testLogger(t), 3, time.Millisecond)

	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 99}))
	assert.Equal(t, 0, alerts.count())
	assert.Equal(t, 0, pub.count())
}

func TestProcessTaskTransientStoreError(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1)}}
	alerts := newFakeAlerts()
	alerts.failCreates = 1
	svc := New(events, alerts, &fakePublisher{}, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, nil, testLogger(t), 3, time.Millisecond)

	require.Error(t, svc.processTask(context.Background(), models.Task{EventID: 1}))
	// Second attempt (simulated redelivery) succeeds.
	require.NoError(t, svc.processTask(context.Background(), models.Task{EventID: 1}))
	assert.Equal(t, 1, alerts.count())
}

func TestRunCommitsAfterProcessing(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1)}}
	alerts := newFakeAlerts()
	pub := &fakePublisher{}
	svc := New(events, alerts, pub, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, nil, testLogger(t), 3, time.Millisecond)

	source := &fakeSource{tasks: make(chan models.Task, 2)}
	source.tasks <- models.Task{EventID: 1}
	source.tasks <- models.Task{EventID: 1} // simulated redelivery

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, 0, source, &wg)

	waitFor(t, func() bool { return source.committed() == 2 })
	cancel()
	wg.Wait()

	assert.Equal(t, 1, alerts.count())
	assert.Equal(t, 1, pub.count())
}

func TestRunRetriesThenDeadLetters(t *testing.T) {
	// Alert store never recovers: the task must end up on the dead-letter
	// queue and still be committed so the partition is not blocked.
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1)}}
	alerts := newFakeAlerts()
	alerts.failCreates = 100
	dlq := &fakeDeadLetter{}
	svc := New(events, alerts, &fakePublisher{}, NewThresholdClassifier(0.8, ""), dlq, nil, testLogger(t), 2, time.Millisecond)

	source := &fakeSource{tasks: make(chan models.Task, 1)}
	source.tasks <- models.Task{EventID: 1}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, 0, source, &wg)

	waitFor(t, func() bool { return dlq.count() == 1 && source.committed() == 1 })
	cancel()
	wg.Wait()

	assert.Equal(t, models.Task{EventID: 1}, dlq.tasks[0])
	assert.Equal(t, 0, alerts.count())
}

func TestRunFailedDeadLetterLeavesTaskUncommitted(t *testing.T) {
	events := &fakeEvents{err: errors.New("db down")}
	alerts := newFakeAlerts()
	dlq := &fakeDeadLetter{err: errors.New("broker down")}
	svc := New(events, alerts, &fakePublisher{}, NewThresholdClassifier(0.8, ""), dlq, nil, testLogger(t), 2, time.Millisecond)

	source := &fakeSource{tasks: make(chan models.Task, 2)}
	source.tasks <- models.Task{EventID: 1}
	source.tasks <- models.Task{EventID: 2}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, 0, source, &wg)

	// Give the loop time to exhaust retries and attempt the dead letter.
	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, 0, source.committed(), "task must stay uncommitted for redelivery")
	// A commit acknowledges every earlier offset on the partition, so the
	// loop must not move on to the next task while one is unresolved.
	assert.Len(t, source.tasks, 1, "loop must not fetch past the unresolved task")
}

func TestRunRetriesDeadLetterInsteadOfSkipping(t *testing.T) {
	// The first task fails permanently and its dead-letter write fails twice
	// before succeeding. The task must land on the dead-letter queue, not be
	// swallowed by the commit of the task behind it.
	events := &fakeEvents{events: map[int64]models.Event{1: testEvent(1), 2: testEvent(2)}}
	alerts := newFakeAlerts()
	alerts.failEventID = 1
	dlq := &fakeDeadLetter{failures: 2}
	pub := &fakePublisher{}
	svc := New(events, alerts, pub, NewThresholdClassifier(0.8, ""), dlq, nil, testLogger(t), 2, time.Millisecond)

	source := &fakeSource{tasks: make(chan models.Task, 2)}
	source.tasks <- models.Task{EventID: 1}
	source.tasks <- models.Task{EventID: 2}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, 0, source, &wg)

	waitFor(t, func() bool { return source.committed() == 2 })
	cancel()
	wg.Wait()

	require.Equal(t, 1, dlq.count())
	assert.Equal(t, models.Task{EventID: 1}, dlq.tasks[0])
	assert.Equal(t, 1, alerts.count())
	assert.Equal(t, 1, pub.count(), "second task processed normally")
}

func TestRunFetchErrorBacksOff(t *testing.T) {
	events := &fakeEvents{events: map[int64]models.Event{}}
	delay := 10 * time.Millisecond
	svc := New(events, newFakeAlerts(), &fakePublisher{}, NewThresholdClassifier(0.8, ""), &fakeDeadLetter{}, nil, testLogger(t), 2, delay)

	source := &fakeSource{fetchErr: errors.New("broker down")}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, 0, source, &wg)

	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()

	fetched := source.fetched()
	assert.GreaterOrEqual(t, fetched, 1)
	assert.Less(t, fetched, 20, "fetch failures must wait out the retry delay, not spin")
}
