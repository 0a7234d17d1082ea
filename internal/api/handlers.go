package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/control"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	controller *control.Controller
	gov        *governor.Governor
	logger     *logger.Logger
	cfg        *config.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, controller *control.Controller, gov *governor.Governor, logger *logger.Logger, cfg *config.Config) *Handlers {
	return &Handlers{
		db:         db,
		controller: controller,
		gov:        gov,
		logger:     logger,
		cfg:        cfg,
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	var count int64
	dbHealthy := h.db.Model(&database.TrackedCase{}).Count(&count).Error == nil

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealthy,
		"time":     time.Now().Unix(),
	})
}

// ProcessStatus lists the state of every pipeline process
func (h *Handlers) ProcessStatus(c *gin.Context) {
	controls, err := h.controller.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processes": controls,
	})
}

// AnalysisStats returns pipeline statistics: search and extraction
// progress plus the deduplication counters.
func (h *Handlers) AnalysisStats(c *gin.Context) {
	var dedup database.DedupStats
	err := h.db.First(&dedup).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	var totalCases, searchedCases, foundCases int64
	h.db.Model(&database.TrackedCase{}).Count(&totalCases)
	h.db.Model(&database.TrackedCase{}).
		Where("search_status = ?", database.SearchCompleted).Count(&searchedCases)
	h.db.Model(&database.TrackedCase{}).
		Where("search_status = ? AND rulings_count > 0", database.SearchCompleted).Count(&foundCases)

	var totalRulings, extractedRulings, triggeredRulings int64
	h.db.Model(&database.TrackedRuling{}).Count(&totalRulings)
	h.db.Model(&database.TrackedRuling{}).Where("extracted_at IS NOT NULL").Count(&extractedRulings)
	h.db.Model(&database.TrackedRuling{}).Where("triggered = ?", true).Count(&triggeredRulings)

	searchPct, extractPct, triggerPct := 0.0, 0.0, 0.0
	if totalCases > 0 {
		searchPct = float64(searchedCases) / float64(totalCases) * 100
	}
	if totalRulings > 0 {
		extractPct = float64(extractedRulings) / float64(totalRulings) * 100
		triggerPct = float64(triggeredRulings) / float64(totalRulings) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"search": gin.H{
			"total_cases":    totalCases,
			"searched_cases": searchedCases,
			"found_cases":    foundCases,
			"pending_cases":  totalCases - searchedCases,
			"searched_pct":   searchPct,
		},
		"extraction": gin.H{
			"total_rulings":     totalRulings,
			"extracted_rulings": extractedRulings,
			"triggered_rulings": triggeredRulings,
			"extracted_pct":     extractPct,
			"triggered_pct":     triggerPct,
		},
		"stats": dedup,
	})
}

// GovernorStatus reports resource usage
func (h *Handlers) GovernorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"governor": h.gov.Status(),
	})
}

// StartForcedProcess gives one process exclusive execution
func (h *Handlers) StartForcedProcess(c *gin.Context) {
	processType := c.Param("type")
	if err := h.controller.StartForced(processType); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, control.ErrConflict) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"process_type": processType,
		"status":       database.StatusForcedRunning,
	})
}

// StopProcess stops one process and resumes anything paused for it
func (h *Handlers) StopProcess(c *gin.Context) {
	processType := c.Param("type")
	if err := h.controller.Stop(processType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"process_type": processType,
		"status":       database.StatusIdle,
	})
}

// ListCases returns tracked cases with pagination
func (h *Handlers) ListCases(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	h.db.Model(&database.TrackedCase{}).Count(&total)

	var cases []database.TrackedCase
	h.db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&cases)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cases,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateCase registers a new case for tracking
func (h *Handlers) CreateCase(c *gin.Context) {
	var req struct {
		CaseNumber string `json:"case_number" binding:"required"`
		ClientName string `json:"client_name"`
		DebtorName string `json:"debtor_name"`
		Notes      string `json:"notes"`
		Priority   int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	tc := database.TrackedCase{
		CaseNumber:   req.CaseNumber,
		ClientName:   req.ClientName,
		DebtorName:   req.DebtorName,
		Notes:        req.Notes,
		Priority:     req.Priority,
		SearchStatus: database.SearchPending,
	}
	if err := h.db.Create(&tc).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "case already tracked or invalid: " + err.Error(),
		})
		return
	}

	h.logger.Info("case registered", "case_number", tc.CaseNumber)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    tc,
	})
}

// CaseRulings lists the rulings found for one case
func (h *Handlers) CaseRulings(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid case ID",
		})
		return
	}

	var tc database.TrackedCase
	if err := h.db.First(&tc, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "case not found",
		})
		return
	}

	var rulings []database.TrackedRuling
	h.db.Where("tracked_case_id = ?", tc.ID).
		Order("adjudication_date DESC").
		Find(&rulings)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"case":    tc,
		"rulings": rulings,
	})
}

// CaseCreditors lists the deduplicated claim register for one case
func (h *Handlers) CaseCreditors(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid case ID",
		})
		return
	}

	// creditors are global, so join through the case's claims
	var creditors []database.Creditor
	if err := h.db.Preload("Claims", "tracked_case_id = ?", id).
		Joins("JOIN creditor_claims ON creditor_claims.creditor_id = creditors.id").
		Where("creditor_claims.tracked_case_id = ? AND creditor_claims.deleted_at IS NULL", id).
		Order("creditors.total_amount DESC").
		Find(&creditors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"creditors": creditors,
	})
}
