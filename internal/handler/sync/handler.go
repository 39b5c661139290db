package sync

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
)

// Runner is one pipeline that can be triggered on demand.
type Runner interface {
	Run(ctx context.Context) model.RunResult
}

// Handler exposes manual pipeline triggers and the run history.
type Handler struct {
	fetch     Runner
	reconcile Runner
	runs      repository.RunHistoryRepository

	// One run of each type at a time; a trigger during an active run is
	// rejected rather than queued.
	fetchMu     sync.Mutex
	reconcileMu sync.Mutex
}

func NewHandler(fetch, reconcile Runner, runs repository.RunHistoryRepository) *Handler {
	return &Handler{
		fetch:     fetch,
		reconcile: reconcile,
		runs:      runs,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sync := r.Group("/sync")
	{
		sync.POST("/fetch", h.TriggerFetch)
		sync.POST("/reconcile", h.TriggerReconcile)
		sync.GET("/runs", h.ListRuns)
	}
}

func (h *Handler) TriggerFetch(c *gin.Context) {
	h.trigger(c, &h.fetchMu, h.fetch)
}

func (h *Handler) TriggerReconcile(c *gin.Context) {
	h.trigger(c, &h.reconcileMu, h.reconcile)
}

func (h *Handler) trigger(c *gin.Context, mu *sync.Mutex, runner Runner) {
	if !mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "run already in progress"})
		return
	}
	defer mu.Unlock()

	result := runner.Run(c.Request.Context())

	status := http.StatusOK
	if result.Status == model.RunError {
		status = http.StatusInternalServerError
	}
	c.JSON(status, result)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runType := c.Query("type")
	if runType != "" && runType != model.RunTypeFetch && runType != model.RunTypeReconcile {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run type"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := h.runs.List(c.Request.Context(), runType, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
