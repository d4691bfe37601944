package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/messaging"
	"github.com/chris40461/scam-or-safe/internal/mocks"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/service"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
)

func TestHandle_StartsGeneration(t *testing.T) {
	svc := mocks.NewMockScenarioService(t)
	h := NewTaskHandler(svc, zap.NewNop())
	before := testutil.ToFloat64(tasksReceived)

	svc.On("StartGeneration", mock.Anything, service.GenerateRequest{TaskID: "t1", PhishingType: "보이스피싱", Difficulty: "easy", SeedInfo: "검찰"}).
		Return(&model.GenerationTask{ID: "t1", Status: model.TaskStatusPending, PhishingType: "보이스피싱", Difficulty: model.DifficultyEasy}, nil).Once()

	err := h.Handle(context.Background(), messaging.GenerationTaskPayload{TaskID: "t1", PhishingType: "보이스피싱", Difficulty: "easy", SeedInfo: "검찰"})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(tasksReceived))
}

func TestHandle_ErrorMapping(t *testing.T) {
	svc := mocks.NewMockScenarioService(t)
	h := NewTaskHandler(svc, zap.NewNop())

	svc.On("StartGeneration", mock.Anything, mock.MatchedBy(func(r service.GenerateRequest) bool { return r.TaskID == "busy" })).
		Return(nil, taskmanager.ErrTooManyTasks).Once()
	svc.On("StartGeneration", mock.Anything, mock.MatchedBy(func(r service.GenerateRequest) bool { return r.TaskID == "bad" })).
		Return(nil, service.ErrInvalidRequest).Once()

	invalidBefore := testutil.ToFloat64(tasksFailed.WithLabelValues("invalid_request"))

	err := h.Handle(context.Background(), messaging.GenerationTaskPayload{TaskID: "busy", PhishingType: "x"})
	assert.ErrorIs(t, err, messaging.ErrRequeue)

	err = h.Handle(context.Background(), messaging.GenerationTaskPayload{TaskID: "bad"})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	assert.NotErrorIs(t, err, messaging.ErrRequeue)
	assert.Equal(t, invalidBefore+1, testutil.ToFloat64(tasksFailed.WithLabelValues("invalid_request")))
}

func TestNotifyOnFinish(t *testing.T) {
	notifier := mocks.NewMockNotifier(t)
	cb := NotifyOnFinish(notifier, zap.NewNop())
	succeededBefore := testutil.ToFloat64(tasksSucceeded)
	now := time.Now()

	notifier.On("Notify", mock.Anything, messaging.NotificationPayload{TaskID: "t1", Status: messaging.NotificationStatusSuccess, ScenarioID: "scenario_1"}).
		Return(nil).Once()
	notifier.On("Notify", mock.Anything, messaging.NotificationPayload{TaskID: "t2", Status: messaging.NotificationStatusError, Error: "cancelled"}).
		Return(errors.New("channel closed")).Once()

	cb(model.GenerationTask{ID: "t1", Status: model.TaskStatusCompleted, ScenarioID: "scenario_1", CreatedAt: now.Add(-time.Minute), UpdatedAt: now})
	cb(model.GenerationTask{ID: "t2", Status: model.TaskStatusFailed, Error: "cancelled", CreatedAt: now, UpdatedAt: now})

	assert.Equal(t, succeededBefore+1, testutil.ToFloat64(tasksSucceeded))
}

func TestNotifyOnFinish_NilNotifier(t *testing.T) {
	cb := NotifyOnFinish(nil, zap.NewNop())
	assert.NotPanics(t, func() {
		cb(model.GenerationTask{ID: "t3", Status: model.TaskStatusCompleted})
	})
}

func TestMetricsPusher(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewMetricsPusher(srv.URL, zap.NewNop())
	require.NoError(t, p.Push())
	p.Cleanup()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0], "PUT /metrics/job/"+jobName+"/instance/"))
	assert.True(t, strings.HasPrefix(calls[1], "DELETE /metrics/job/"+jobName))
}
