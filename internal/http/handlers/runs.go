package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/salesdock/automation/internal/models"
	"gorm.io/gorm"
)

// RunHandler serves read-only workflow run listings.
type RunHandler struct {
	db *gorm.DB
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(conn *gorm.DB) *RunHandler {
	return &RunHandler{db: conn}
}

// listRunsQuery defines query parameters for listing runs.
type listRunsQuery struct {
	Page     int    `form:"page,default=1"`
	Limit    int    `form:"limit,default=20"`
	RuleID   uint64 `form:"rule_id"`
	TenantID uint64 `form:"tenant_id"`
	Kind     string `form:"kind"`
}

// List returns a paginated list of workflow runs, newest first.
func (h *RunHandler) List(c *gin.Context) {
	var q listRunsQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.WorkflowRun{})
	if q.RuleID != 0 {
		query = query.Where("rule_id = ?", q.RuleID)
	}
	if q.TenantID != 0 {
		query = query.Where("tenant_id = ?", q.TenantID)
	}
	if q.Kind != "" {
		query = query.Where("trigger_kind = ?", q.Kind)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	var rows []models.WorkflowRun
	offset := (q.Page - 1) * q.Limit
	if errFind := query.Order("created_at DESC").Offset(offset).Limit(q.Limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":               row.ID,
			"rule_id":          row.RuleID,
			"tenant_id":        row.TenantID,
			"idempotency_key":  row.IdempotencyKey,
			"trigger_kind":     row.TriggerKind,
			"trigger_event_id": row.TriggerEventID,
			"metadata":         row.Metadata,
			"created_at":       row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  out,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}
