package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/memstore"
)

func sampleEvent(kind alerts.EventKind) alerts.Event {
	return alerts.Event{
		Kind: kind,
		Key:  "al-1:admins",
		Alert: alerts.Alert{
			ID:           "al-1",
			ProductID:    "P-1",
			CurrentStock: 7,
			Threshold:    10,
			Status:       alerts.LevelLowStock,
			CreatedAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestEventTaskRoundTrip(t *testing.T) {
	task, err := NewEventTask(sampleEvent(alerts.EventNotifyAdmins))
	require.NoError(t, err)
	require.Equal(t, TaskAlertNotifyAdmins, task.Type())

	event, err := DecodeEvent(task)
	require.NoError(t, err)
	require.Equal(t, alerts.EventNotifyAdmins, event.Kind)
	require.Equal(t, "al-1", event.Alert.ID)

	reorder := alerts.Event{Kind: alerts.EventReorder, Key: "reorder:P-1:x", Reorder: alerts.ReorderRequest{ProductID: "P-1", CrossingKey: "P-1:x", Stock: 4}}
	task, err = NewEventTask(reorder)
	require.NoError(t, err)
	require.Equal(t, TaskReorderRequest, task.Type())
	event, err = DecodeEvent(task)
	require.NoError(t, err)
	require.Equal(t, "P-1:x", event.Reorder.CrossingKey)
}

func TestDecodeEventRejectsMissingBody(t *testing.T) {
	_, err := DecodeEvent(asynq.NewTask(TaskReorderRequest, []byte(`{"key":"k"}`)))
	require.Error(t, err)
	_, err = DecodeEvent(asynq.NewTask("mail:send", []byte(`{}`)))
	require.Error(t, err)
}

type recordingEnqueuer struct {
	opts []asynq.Option
	err  error
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, _ *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.opts = opts
	return &asynq.TaskInfo{}, e.err
}

func (e *recordingEnqueuer) Close() error { return nil }

func TestDispatchUsesEventKeyAsTaskID(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := &Client{client: enq, maxRetry: 5, retention: time.Hour}

	require.NoError(t, client.Dispatch(context.Background(), sampleEvent(alerts.EventNotifyAdmins)))
	var taskID string
	for _, opt := range enq.opts {
		if opt.Type() == asynq.TaskIDOpt {
			taskID = opt.Value().(string)
		}
	}
	require.Equal(t, "al-1:admins", taskID)
}

func TestDispatchTreatsConflictAsDelivered(t *testing.T) {
	client := &Client{client: &recordingEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, client.Dispatch(context.Background(), sampleEvent(alerts.EventNotifyAdmins)))

	boom := errors.New("redis down")
	client = &Client{client: &recordingEnqueuer{err: boom}}
	require.ErrorIs(t, client.Dispatch(context.Background(), sampleEvent(alerts.EventNotifyAdmins)), boom)
}

func TestDispatchDeduplicatesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Dispatch(ctx, sampleEvent(alerts.EventNotifyAdmins)))
	require.NoError(t, client.Dispatch(ctx, sampleEvent(alerts.EventNotifyAdmins)))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

type countingNotifier struct {
	admins int
	err    error
}

func (n *countingNotifier) NotifyAdmins(context.Context, alerts.Alert) error {
	if n.err != nil {
		return n.err
	}
	n.admins++
	return nil
}

func (n *countingNotifier) NotifySupplier(context.Context, alerts.Alert) error { return nil }

func TestAlertJobDeliversOncePerKey(t *testing.T) {
	notifier := &countingNotifier{}
	job := &AlertJob{Notifier: notifier, Guard: memstore.New().Idempotency()}
	task, err := NewEventTask(sampleEvent(alerts.EventNotifyAdmins))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, notifier.admins)
}

func TestAlertJobReleasesKeyOnFailure(t *testing.T) {
	notifier := &countingNotifier{err: errors.New("smtp down")}
	job := &AlertJob{Notifier: notifier, Guard: memstore.New().Idempotency()}
	task, err := NewEventTask(sampleEvent(alerts.EventNotifyAdmins))
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
	notifier.err = nil
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, notifier.admins)
}

func TestAlertJobSkipsRetryOnMalformedPayload(t *testing.T) {
	job := &AlertJob{}
	err := job.Handle(context.Background(), asynq.NewTask(TaskAlertNotifyAdmins, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubReevaluator struct {
	calls int
	err   error
}

func (s *stubReevaluator) ReevaluateAll(context.Context) (int, error) {
	s.calls++
	return 3, s.err
}

func TestAlertSweepJob(t *testing.T) {
	ledger := &stubReevaluator{}
	job := NewAlertSweepJob(ledger, nil, nil)

	task, err := NewAlertSweepTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskInventoryAlertSweep, nil)))
	require.Equal(t, 2, ledger.calls)

	ledger.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 1, body.Failed)

	router = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("down")}, nil).MountRoutes(router)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type stubPruner struct {
	olderThan time.Duration
	err       error
}

func (s *stubPruner) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 2, s.err
}

func TestAlertSweepJobPrunesKeys(t *testing.T) {
	pruner := &stubPruner{}
	job := NewAlertSweepJob(&stubReevaluator{}, nil, nil)
	job.Keys = pruner

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskInventoryAlertSweep, nil)))
	require.Equal(t, DefaultKeyRetention, pruner.olderThan)

	job.KeyRetention = time.Hour
	pruner.err = errors.New("db down")
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskInventoryAlertSweep, nil)))
	require.Equal(t, time.Hour, pruner.olderThan)
}
