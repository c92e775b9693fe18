package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/api/middleware"
	"github.com/dvloznov/teller-ledger/internal/jobs"
	"github.com/dvloznov/teller-ledger/internal/jobs/inmemory"
)

// InterestHandler exposes the interest scheduler and its run history.
type InterestHandler struct {
	runner    InterestRunner
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewInterestHandler creates a new interest handler. With a nil publisher, runs triggered
// over HTTP execute synchronously.
func NewInterestHandler(runner InterestRunner, publisher jobs.Publisher, log zerolog.Logger) *InterestHandler {
	return &InterestHandler{runner: runner, publisher: publisher, log: log}
}

// Status handles GET /api/interest/scheduler
func (h *InterestHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":  h.runner.State(),
		"period": h.runner.Period().String(),
	})
}

// Trigger handles POST /api/interest/runs
func (h *InterestHandler) Trigger(c *gin.Context) {
	var req AccrualRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.WriteBadRequest(c, "Invalid request body")
			return
		}
	}
	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	ctx := c.Request.Context()

	if h.publisher != nil {
		run := &jobs.InterestRun{Trigger: jobs.TriggerManual, AsOf: asOf}
		if err := h.publisher.PublishInterestRun(ctx, run); err != nil {
			h.log.Error().Err(err).Msg("Failed to enqueue interest run")
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": run.JobID,
			"status": run.Status,
		})
		return
	}

	if asOf.IsZero() {
		asOf = time.Now()
	}
	run, err := h.runner.RunOnce(ctx, asOf)
	if err != nil && run == nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List handles GET /api/interest/runs?status=&trigger=&limit=&offset=
func (h *InterestHandler) List(c *gin.Context) {
	filter := jobs.RunFilter{
		Status:  jobs.JobStatus(c.Query("status")),
		Trigger: jobs.Trigger(c.Query("trigger")),
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit", 50); err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		middleware.WriteBadRequest(c, err.Error())
		return
	}

	runs, err := h.runner.Runs(c.Request.Context(), filter)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get handles GET /api/interest/runs/:id
func (h *InterestHandler) Get(c *gin.Context) {
	run, err := h.runner.Run(c.Request.Context(), c.Param("id"))
	if errors.Is(err, inmemory.ErrRunNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, middleware.ErrorResponse{
			Error:     err.Error(),
			RequestID: middleware.RequestIDFrom(c.Request.Context()),
		})
		return
	}
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
