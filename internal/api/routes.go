package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/control"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, controller *control.Controller, gov *governor.Governor, logger *logger.Logger, cfg *config.Config) {
	h := NewHandlers(db, controller, gov, logger, cfg)

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.ProcessStatus)
		api.GET("/stats", h.AnalysisStats)
		api.GET("/governor", h.GovernorStatus)

		// process control
		api.POST("/processes/:type/start-forced", h.StartForcedProcess)
		api.POST("/processes/:type/stop", h.StopProcess)

		// tracked cases
		api.GET("/cases", h.ListCases)
		api.POST("/cases", h.CreateCase)
		api.GET("/cases/:id/rulings", h.CaseRulings)
		api.GET("/cases/:id/creditors", h.CaseCreditors)
	}
}
