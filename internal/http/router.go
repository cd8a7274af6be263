// Package http exposes the operational surface: the tick endpoints the
// external periodic driver hits, and read-only listings for rules and runs.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/salesdock/automation/internal/http/handlers"
	"github.com/salesdock/automation/internal/reminder"
	"github.com/salesdock/automation/internal/trigger"
	"gorm.io/gorm"
)

// NewRouter builds the gin engine with all operational routes registered.
func NewRouter(db *gorm.DB, evaluator *trigger.Evaluator, scheduler *reminder.Scheduler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ticks := handlers.NewTickHandler(evaluator, scheduler)
	rules := handlers.NewRuleHandler(db)
	runs := handlers.NewRunHandler(db)

	v0 := engine.Group("/v0")
	{
		v0.POST("/ticks/trigger", ticks.Trigger)
		v0.POST("/ticks/reminders", ticks.Reminders)
		v0.GET("/rules", rules.List)
		v0.GET("/runs", runs.List)
	}

	return engine
}
