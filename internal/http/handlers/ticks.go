package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/salesdock/automation/internal/reminder"
	"github.com/salesdock/automation/internal/trigger"
)

// TickHandler runs evaluator and scheduler passes on demand. These endpoints
// are what an external cron process calls on its cadence; both ticks are
// idempotent, so an overlapping or repeated call is harmless.
type TickHandler struct {
	evaluator *trigger.Evaluator
	scheduler *reminder.Scheduler
}

// NewTickHandler constructs a TickHandler.
func NewTickHandler(evaluator *trigger.Evaluator, scheduler *reminder.Scheduler) *TickHandler {
	return &TickHandler{evaluator: evaluator, scheduler: scheduler}
}

// Trigger runs one trigger evaluator pass and returns its summary.
func (h *TickHandler) Trigger(c *gin.Context) {
	if h.evaluator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trigger evaluator not running"})
		return
	}
	summary, errTick := h.evaluator.Tick(c.Request.Context())
	if errTick != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errTick.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Reminders runs one reminder scheduler pass and returns its summary.
func (h *TickHandler) Reminders(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminder scheduler not running"})
		return
	}
	summary, errTick := h.scheduler.Tick(c.Request.Context())
	if errTick != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errTick.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
