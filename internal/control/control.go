// Package control enforces mutual exclusion between pipeline processes.
package control

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// ErrConflict is returned when a process cannot start because another
// one holds forced execution.
var ErrConflict = errors.New("another process holds forced execution")

// ProcessTypes lists every process the controller manages
var ProcessTypes = []string{
	database.ProcessCourtSearch,
	database.ProcessClauseExtraction,
	database.ProcessClaimAnalysis,
}

// Controller persists process state so every pipeline entry point and
// the HTTP surface see the same picture.
type Controller struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Controller {
	return &Controller{db: db, log: log}
}

// EnsureProcesses creates the control row for every known process type
func (c *Controller) EnsureProcesses() error {
	for _, pt := range ProcessTypes {
		pc := database.ProcessControl{ProcessType: pt, Status: database.StatusIdle}
		err := c.db.Where("process_type = ?", pt).FirstOrCreate(&pc).Error
		if err != nil {
			return fmt.Errorf("failed to ensure process %s: %w", pt, err)
		}
	}
	return nil
}

func validType(processType string) bool {
	for _, pt := range ProcessTypes {
		if pt == processType {
			return true
		}
	}
	return false
}

// Start moves a process to running. It refuses while any process holds
// forced execution.
func (c *Controller) Start(processType string) error {
	if !validType(processType) {
		return fmt.Errorf("unknown process type %q", processType)
	}
	return c.db.Transaction(func(tx *gorm.DB) error {
		var forced database.ProcessControl
		err := tx.Where("status = ? AND process_type <> ?", database.StatusForcedRunning, processType).
			First(&forced).Error
		if err == nil {
			return fmt.Errorf("%w: %s", ErrConflict, forced.ProcessType)
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		now := time.Now()
		return tx.Model(&database.ProcessControl{}).
			Where("process_type = ?", processType).
			Updates(map[string]interface{}{
				"status":           database.StatusRunning,
				"is_forced":        false,
				"started_at":       now,
				"stopped_at":       nil,
				"progress_current": 0,
				"progress_total":   0,
				"progress_message": "",
			}).Error
	})
}

// StartForced pauses every other active process and takes exclusive
// execution. At most one process can hold forced execution; a second
// request fails with ErrConflict.
func (c *Controller) StartForced(processType string) error {
	if !validType(processType) {
		return fmt.Errorf("unknown process type %q", processType)
	}
	err := c.db.Transaction(func(tx *gorm.DB) error {
		var forced database.ProcessControl
		err := tx.Where("status = ? AND process_type <> ?", database.StatusForcedRunning, processType).
			First(&forced).Error
		if err == nil {
			return fmt.Errorf("%w: %s", ErrConflict, forced.ProcessType)
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		// park everything else that is active
		if err := tx.Model(&database.ProcessControl{}).
			Where("process_type <> ? AND status = ?", processType, database.StatusRunning).
			Updates(map[string]interface{}{
				"status":    database.StatusPaused,
				"is_forced": false,
			}).Error; err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&database.ProcessControl{}).
			Where("process_type = ?", processType).
			Updates(map[string]interface{}{
				"status":           database.StatusForcedRunning,
				"is_forced":        true,
				"started_at":       now,
				"stopped_at":       nil,
				"progress_current": 0,
				"progress_total":   0,
				"progress_message": "",
			}).Error
	})
	if err != nil {
		return err
	}
	c.log.Info("process took forced execution", "process_type", processType)
	return nil
}

// Stop returns a process to idle, clears its progress and resumes
// anything that was paused for it.
func (c *Controller) Stop(processType string) error {
	if !validType(processType) {
		return fmt.Errorf("unknown process type %q", processType)
	}
	err := c.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&database.ProcessControl{}).
			Where("process_type = ?", processType).
			Updates(map[string]interface{}{
				"status":           database.StatusIdle,
				"is_forced":        false,
				"stopped_at":       now,
				"progress_current": 0,
				"progress_total":   0,
				"progress_message": "",
			}).Error; err != nil {
			return err
		}

		return tx.Model(&database.ProcessControl{}).
			Where("status = ?", database.StatusPaused).
			Update("status", database.StatusIdle).Error
	})
	if err != nil {
		return err
	}
	c.log.Info("process stopped", "process_type", processType)
	return nil
}

// MarkError records a failed run
func (c *Controller) MarkError(processType, message string) error {
	now := time.Now()
	return c.db.Model(&database.ProcessControl{}).
		Where("process_type = ?", processType).
		Updates(map[string]interface{}{
			"status":           database.StatusError,
			"is_forced":        false,
			"stopped_at":       now,
			"progress_message": message,
		}).Error
}

// UpdateProgress publishes progress for pollers and beats the heartbeat
func (c *Controller) UpdateProgress(processType string, current, total int, message string) error {
	now := time.Now()
	return c.db.Model(&database.ProcessControl{}).
		Where("process_type = ?", processType).
		Updates(map[string]interface{}{
			"progress_current": current,
			"progress_total":   total,
			"progress_message": message,
			"heartbeat":        now,
		}).Error
}

// ShouldStop reports whether a running process was asked to yield
func (c *Controller) ShouldStop(processType string) bool {
	var pc database.ProcessControl
	if err := c.db.Where("process_type = ?", processType).First(&pc).Error; err != nil {
		return false
	}
	return pc.Status == database.StatusStopped || pc.Status == database.StatusPaused ||
		pc.Status == database.StatusIdle
}

// Status lists the state of every managed process
func (c *Controller) Status() ([]database.ProcessControl, error) {
	var controls []database.ProcessControl
	if err := c.db.Order("process_type ASC").Find(&controls).Error; err != nil {
		return nil, fmt.Errorf("failed to load process status: %w", err)
	}
	return controls, nil
}
