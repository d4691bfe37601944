// Package api HTTP API сервиса сценариев.
package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/service"
)

var (
	safeSegment   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	safeImageFile = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}\.png$`)
)

// GenerateRequest тело POST /scenarios/generate.
type GenerateRequest struct {
	PhishingType string `json:"phishing_type" binding:"required"`
	Difficulty   string `json:"difficulty"`
	SeedInfo     string `json:"seed_info"`
}

// GenerateResponse ответ на постановку задачи.
type GenerateResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// RegenerateImagesRequest необязательное тело перегенерации картинок.
type RegenerateImagesRequest struct {
	NodeIDs []string `json:"node_ids"`
}

// RegenerateImagesResponse итог перегенерации.
type RegenerateImagesResponse struct {
	ScenarioID string   `json:"scenario_id"`
	Requested  int      `json:"requested"`
	Generated  int      `json:"generated"`
	Failed     []string `json:"failed,omitempty"`
}

// Handler обрабатывает HTTP запросы к сценариям.
type Handler struct {
	svc      service.ScenarioService
	imageDir string
	logger   *zap.Logger
}

// NewHandler imageDir каталог, куда генератор картинок сохраняет файлы.
func NewHandler(svc service.ScenarioService, imageDir string, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, imageDir: imageDir, logger: logger.Named("ScenarioHandler")}
}

// RegisterRoutes регистрирует маршруты /api/v1.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	scenarios := v1.Group("/scenarios")
	{
		scenarios.POST("/generate", h.generate)
		scenarios.GET("/tasks/:task_id", h.getTask)
		scenarios.DELETE("/tasks/:task_id", h.cancelTask)
		scenarios.GET("", h.listScenarios)
		scenarios.GET("/:id", h.getScenario)
		scenarios.GET("/:id/play", h.playScenario)
		scenarios.POST("/:id/images/regenerate", h.regenerateImages)
	}

	v1.GET("/images/:scenario_id/:file", h.serveImage)
}

func (h *Handler) generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phishing_type is required")
		return
	}

	task, err := h.svc.StartGeneration(c.Request.Context(), service.GenerateRequest{
		PhishingType: req.PhishingType,
		Difficulty:   req.Difficulty,
		SeedInfo:     req.SeedInfo,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenerateResponse{TaskID: task.ID, Status: "started"})
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.svc.Task(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.svc.CancelTask(c.Param("task_id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) listScenarios(c *gin.Context) {
	summaries, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if summaries == nil {
		summaries = []model.Summary{}
	}
	c.JSON(http.StatusOK, summaries)
}

// getScenario полное дерево, включая is_dangerous; для админки.
func (h *Handler) getScenario(c *gin.Context) {
	tree, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (h *Handler) playScenario(c *gin.Context) {
	view, err := h.svc.PlayerView(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) regenerateImages(c *gin.Context) {
	var req RegenerateImagesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	id := c.Param("id")
	report, err := h.svc.RegenerateImages(c.Request.Context(), id, req.NodeIDs)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, RegenerateImagesResponse{
		ScenarioID: id,
		Requested:  report.Requested,
		Generated:  report.Generated,
		Failed:     report.Failed,
	})
}

func (h *Handler) serveImage(c *gin.Context) {
	scenarioID, file := c.Param("scenario_id"), c.Param("file")
	if !safeSegment.MatchString(scenarioID) || !safeImageFile.MatchString(file) {
		badRequest(c, "invalid image path")
		return
	}

	path := filepath.Join(h.imageDir, scenarioID, file)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.handleServiceError(c, model.ErrNotFound)
			return
		}
		h.handleServiceError(c, err)
		return
	}
	c.File(path)
}
