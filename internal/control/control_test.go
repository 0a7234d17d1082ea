package control

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

func setupController(t *testing.T) *Controller {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	log, err := logger.NewLogger("error", "text")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	c := New(db, log)
	if err := c.EnsureProcesses(); err != nil {
		t.Fatalf("failed to ensure processes: %v", err)
	}
	return c
}

func statusOf(t *testing.T, c *Controller, processType string) database.ProcessControl {
	t.Helper()
	controls, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, pc := range controls {
		if pc.ProcessType == processType {
			return pc
		}
	}
	t.Fatalf("process %s not found", processType)
	return database.ProcessControl{}
}

func TestStartForcedPausesRunning(t *testing.T) {
	c := setupController(t)

	if err := c.Start(database.ProcessCourtSearch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.StartForced(database.ProcessClaimAnalysis); err != nil {
		t.Fatalf("StartForced failed: %v", err)
	}

	search := statusOf(t, c, database.ProcessCourtSearch)
	if search.Status != database.StatusPaused {
		t.Errorf("search status = %s, want paused", search.Status)
	}
	if search.IsForced {
		t.Error("paused process must not keep the forced flag")
	}

	analysis := statusOf(t, c, database.ProcessClaimAnalysis)
	if analysis.Status != database.StatusForcedRunning || !analysis.IsForced {
		t.Errorf("analysis status = %s forced=%v, want forced_running", analysis.Status, analysis.IsForced)
	}
}

func TestStartForcedConflict(t *testing.T) {
	c := setupController(t)

	if err := c.StartForced(database.ProcessCourtSearch); err != nil {
		t.Fatalf("first StartForced failed: %v", err)
	}

	err := c.StartForced(database.ProcessClaimAnalysis)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// loser's state is untouched
	analysis := statusOf(t, c, database.ProcessClaimAnalysis)
	if analysis.Status != database.StatusIdle {
		t.Errorf("analysis status = %s, want idle", analysis.Status)
	}
}

func TestStartRefusedDuringForcedRun(t *testing.T) {
	c := setupController(t)

	if err := c.StartForced(database.ProcessCourtSearch); err != nil {
		t.Fatalf("StartForced failed: %v", err)
	}
	if err := c.Start(database.ProcessClauseExtraction); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestStopRestoresPaused(t *testing.T) {
	c := setupController(t)

	if err := c.Start(database.ProcessCourtSearch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.StartForced(database.ProcessClaimAnalysis); err != nil {
		t.Fatalf("StartForced failed: %v", err)
	}
	if err := c.UpdateProgress(database.ProcessClaimAnalysis, 5, 10, "halfway"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := c.Stop(database.ProcessClaimAnalysis); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	analysis := statusOf(t, c, database.ProcessClaimAnalysis)
	if analysis.Status != database.StatusIdle {
		t.Errorf("analysis status = %s, want idle", analysis.Status)
	}
	if analysis.ProgressCurrent != 0 || analysis.ProgressTotal != 0 || analysis.ProgressMessage != "" {
		t.Errorf("progress not reset: %+v", analysis)
	}

	search := statusOf(t, c, database.ProcessCourtSearch)
	if search.Status != database.StatusIdle {
		t.Errorf("paused search not restored, status = %s", search.Status)
	}
}

func TestUpdateProgressIsPollable(t *testing.T) {
	c := setupController(t)

	if err := c.Start(database.ProcessCourtSearch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.UpdateProgress(database.ProcessCourtSearch, 3, 20, "searching 756/1/23"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	search := statusOf(t, c, database.ProcessCourtSearch)
	if search.ProgressCurrent != 3 || search.ProgressTotal != 20 {
		t.Errorf("progress = %d/%d, want 3/20", search.ProgressCurrent, search.ProgressTotal)
	}
	if search.ProgressMessage != "searching 756/1/23" {
		t.Errorf("message = %q", search.ProgressMessage)
	}
	if search.Heartbeat == nil {
		t.Error("heartbeat not set")
	}
}

func TestShouldStop(t *testing.T) {
	c := setupController(t)

	if c.ShouldStop(database.ProcessCourtSearch) != true {
		t.Error("idle process should report stop")
	}
	if err := c.Start(database.ProcessCourtSearch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.ShouldStop(database.ProcessCourtSearch) {
		t.Error("running process should not report stop")
	}
	if err := c.Stop(database.ProcessCourtSearch); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !c.ShouldStop(database.ProcessCourtSearch) {
		t.Error("stopped process should report stop")
	}
}
