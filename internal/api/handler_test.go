package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/api"
	"github.com/chris40461/scam-or-safe/internal/mocks"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
	"github.com/chris40461/scam-or-safe/internal/service"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *mocks.MockScenarioService, string) {
	svc := mocks.NewMockScenarioService(t)
	imageDir := t.TempDir()
	h := api.NewHandler(svc, imageDir, zap.NewNop())
	return api.NewRouter(h, api.RouterConfig{}, zap.NewNop()), svc, imageDir
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGenerate_Accepted(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("StartGeneration", mock.Anything, service.GenerateRequest{PhishingType: "스미싱", Difficulty: "easy", SeedInfo: "택배"}).
		Return(&model.GenerationTask{ID: "task-1", Status: model.TaskStatusPending}, nil).Once()

	rec := doRequest(router, http.MethodPost, "/api/v1/scenarios/generate", `{"phishing_type":"스미싱","difficulty":"easy","seed_info":"택배"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"task_id":"task-1","status":"started"}`, rec.Body.String())
}

func TestGenerate_Errors(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/scenarios/generate", `{"difficulty":"easy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.On("StartGeneration", mock.Anything, mock.MatchedBy(func(r service.GenerateRequest) bool { return r.Difficulty == "extreme" })).
		Return(nil, service.ErrInvalidRequest).Once()
	rec = doRequest(router, http.MethodPost, "/api/v1/scenarios/generate", `{"phishing_type":"스미싱","difficulty":"extreme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeBadRequest, decodeError(t, rec).Code)

	svc.On("StartGeneration", mock.Anything, mock.MatchedBy(func(r service.GenerateRequest) bool { return r.PhishingType == "busy" })).
		Return(nil, taskmanager.ErrTooManyTasks).Once()
	rec = doRequest(router, http.MethodPost, "/api/v1/scenarios/generate", `{"phishing_type":"busy"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetTask(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("Task", mock.Anything, "task-1").
		Return(&model.GenerationTask{ID: "task-1", Status: model.TaskStatusGenerating, Progress: 35, Phase: "expand"}, nil).Once()
	svc.On("Task", mock.Anything, "missing").Return(nil, model.ErrNotFound).Once()

	rec := doRequest(router, http.MethodGet, "/api/v1/scenarios/tasks/task-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var task model.GenerationTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, model.TaskStatusGenerating, task.Status)
	assert.Equal(t, 35, task.Progress)

	rec = doRequest(router, http.MethodGet, "/api/v1/scenarios/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTask(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("CancelTask", "task-1").Return(nil).Once()
	svc.On("CancelTask", "done").Return(taskmanager.ErrTaskNotActive).Once()

	assert.Equal(t, http.StatusAccepted, doRequest(router, http.MethodDelete, "/api/v1/scenarios/tasks/task-1", "").Code)
	assert.Equal(t, http.StatusConflict, doRequest(router, http.MethodDelete, "/api/v1/scenarios/tasks/done", "").Code)
}

func TestListScenarios_EmptyIsArray(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("List", mock.Anything).Return(nil, nil).Once()

	rec := doRequest(router, http.MethodGet, "/api/v1/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPlayScenario_HidesDanger(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	tree := &model.ScenarioTree{
		ID:         "scenario_0000beef",
		Title:      "택배 문자",
		RootNodeID: "node_001",
		Nodes: map[string]*model.ScenarioNode{
			"node_001": {ID: "node_001", Type: model.NodeTypeNarrative, Text: "문자가 왔습니다.", Choices: []*model.Choice{
				{ID: "node_001_c1", Text: "링크를 누른다", IsDangerous: true, NextNodeID: "node_002"},
			}},
			"node_002": {ID: "node_002", Type: model.NodeTypeEndingBad, Text: "피해를 입었습니다.", Depth: 1},
		},
	}
	svc.On("PlayerView", mock.Anything, tree.ID).Return(tree.PlayerView(), nil).Once()
	svc.On("Get", mock.Anything, tree.ID).Return(tree, nil).Once()

	rec := doRequest(router, http.MethodGet, "/api/v1/scenarios/"+tree.ID+"/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "is_dangerous")

	rec = doRequest(router, http.MethodGet, "/api/v1/scenarios/"+tree.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_dangerous":true`)
}

func TestRegenerateImages(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("RegenerateImages", mock.Anything, "scenario_1", []string{"node_002"}).
		Return(&pipeline.ImageReport{Requested: 1, Generated: 0, Failed: []string{"node_002"}}, nil).Once()
	svc.On("RegenerateImages", mock.Anything, "scenario_1", []string(nil)).
		Return(nil, service.ErrImagesDisabled).Once()

	rec := doRequest(router, http.MethodPost, "/api/v1/scenarios/scenario_1/images/regenerate", `{"node_ids":["node_002"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scenario_id":"scenario_1","requested":1,"generated":0,"failed":["node_002"]}`, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/api/v1/scenarios/scenario_1/images/regenerate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServeImage(t *testing.T) {
	router, _, imageDir := newTestRouter(t)
	require.NoError(t, os.MkdirAll(filepath.Join(imageDir, "scenario_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "scenario_1", "node_001.png"), []byte("png-bytes"), 0o644))

	rec := doRequest(router, http.MethodGet, "/api/v1/images/scenario_1/node_001.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, doRequest(router, http.MethodGet, "/api/v1/images/scenario_1/node_009.png", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(router, http.MethodGet, "/api/v1/images/scenario.1/node_001.png", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(router, http.MethodGet, "/api/v1/images/scenario_1/node_001.txt", "").Code)
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
