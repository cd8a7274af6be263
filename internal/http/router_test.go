package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/salesdock/automation/internal/models"
	"gorm.io/gorm"
)

func setupRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := conn.AutoMigrate(&models.TriggerRule{}, &models.WorkflowRun{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestHealthz(t *testing.T) {
	conn := setupRouterTestDB(t)
	router := NewRouter(conn, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTickEndpointsUnavailableWithoutComponents(t *testing.T) {
	conn := setupRouterTestDB(t)
	router := NewRouter(conn, nil, nil)

	for _, path := range []string{"/v0/ticks/trigger", "/v0/ticks/reminders"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("POST %s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestListRulesFiltersAndPaginates(t *testing.T) {
	conn := setupRouterTestDB(t)
	for i := 0; i < 3; i++ {
		rule := models.TriggerRule{
			TenantID: 7,
			Name:     fmt.Sprintf("Weekly Digest %d", i),
			Kind:     models.TriggerKindScheduled,
			CronExpr: "0 9 * * MON",
			Timezone: "UTC",
			IsActive: true,
		}
		if errCreate := conn.Create(&rule).Error; errCreate != nil {
			t.Fatalf("create rule: %v", errCreate)
		}
	}
	other := models.TriggerRule{
		TenantID:      9,
		Name:          "Stalled Deals",
		Kind:          models.TriggerKindDataCondition,
		ConditionSpec: []byte(`{"column":"stage"}`),
		IsActive:      true,
	}
	if errCreate := conn.Create(&other).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}

	router := NewRouter(conn, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/rules?tenant_id=7&limit=2&search=digest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Rules []map[string]any `json:"rules"`
		Total int64            `json:"total"`
		Page  int              `json:"page"`
		Limit int              `json:"limit"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if out.Total != 3 || out.Limit != 2 || len(out.Rules) != 2 {
		t.Fatalf("unexpected page: total=%d limit=%d rules=%d", out.Total, out.Limit, len(out.Rules))
	}
	if _, hasCron := out.Rules[0]["cron_expr"]; !hasCron {
		t.Fatalf("expected cron_expr on scheduled rule, got %v", out.Rules[0])
	}
}

func TestListRunsFiltersByKind(t *testing.T) {
	conn := setupRouterTestDB(t)
	for i, kind := range []models.TriggerKind{models.TriggerKindScheduled, models.TriggerKindDataCondition} {
		run := models.WorkflowRun{
			RuleID:         uint64(i + 1),
			TenantID:       7,
			TriggerKind:    kind,
			TriggerEventID: fmt.Sprintf("event-%d", i),
			IdempotencyKey: fmt.Sprintf("%d:%s:event-%d", i+1, kind, i),
		}
		if errCreate := conn.Create(&run).Error; errCreate != nil {
			t.Fatalf("create run: %v", errCreate)
		}
	}

	router := NewRouter(conn, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/runs?kind=data_condition", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Runs  []map[string]any `json:"runs"`
		Total int64            `json:"total"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if out.Total != 1 || len(out.Runs) != 1 {
		t.Fatalf("expected one data_condition run, got total=%d", out.Total)
	}
	if out.Runs[0]["trigger_kind"] != "data_condition" {
		t.Fatalf("unexpected run: %v", out.Runs[0])
	}
}
