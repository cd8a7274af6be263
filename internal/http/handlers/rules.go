package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/salesdock/automation/internal/db"
	"github.com/salesdock/automation/internal/models"
	"gorm.io/gorm"
)

// RuleHandler serves read-only trigger rule listings.
type RuleHandler struct {
	db *gorm.DB
}

// NewRuleHandler constructs a RuleHandler.
func NewRuleHandler(conn *gorm.DB) *RuleHandler {
	return &RuleHandler{db: conn}
}

// listRulesQuery defines query parameters for listing rules.
type listRulesQuery struct {
	Page     int    `form:"page,default=1"`
	Limit    int    `form:"limit,default=20"`
	Search   string `form:"search"`
	Kind     string `form:"kind"`
	TenantID uint64 `form:"tenant_id"`
}

// List returns a paginated list of trigger rules.
func (h *RuleHandler) List(c *gin.Context) {
	var q listRulesQuery
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

	query := h.db.WithContext(c.Request.Context()).Model(&models.TriggerRule{})
	if q.TenantID != 0 {
		query = query.Where("tenant_id = ?", q.TenantID)
	}
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.Search != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+q.Search+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	var rows []models.TriggerRule
	offset := (q.Page - 1) * q.Limit
	if errFind := query.Order("id ASC").Offset(offset).Limit(q.Limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, serializeRule(&row))
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": out,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

func serializeRule(rule *models.TriggerRule) gin.H {
	out := gin.H{
		"id":         rule.ID,
		"tenant_id":  rule.TenantID,
		"name":       rule.Name,
		"kind":       rule.Kind,
		"is_active":  rule.IsActive,
		"created_by": rule.CreatedBy,
		"created_at": rule.CreatedAt.Format(time.RFC3339),
	}
	switch rule.Kind {
	case models.TriggerKindScheduled:
		out["cron_expr"] = rule.CronExpr
		out["timezone"] = rule.Timezone
	case models.TriggerKindDataCondition:
		out["condition_spec"] = rule.ConditionSpec
	}
	if rule.LastRunAt != nil {
		out["last_run_at"] = rule.LastRunAt.UTC().Format(time.RFC3339)
	}
	if rule.NextRunAt != nil {
		out["next_run_at"] = rule.NextRunAt.UTC().Format(time.RFC3339)
	}
	return out
}
