package trigger

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

func newClassifier() *Classifier {
	return NewClassifier("визнати", "грошові вимоги")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		clause    string
		triggered bool
	}{
		{
			name:      "both phrases in one sentence",
			clause:    "Визнати грошові вимоги Банку до Боржника.",
			triggered: true,
		},
		{
			name:      "phrases in separate sentences",
			clause:    "Визнати вимоги. Окремо йдуть грошові вимоги.",
			triggered: false,
		},
		{
			name:      "case insensitive match",
			clause:    "ВИЗНАТИ ГРОШОВІ ВИМОГИ кредитора.",
			triggered: true,
		},
		{
			name:      "phrases split by question mark",
			clause:    "Чи визнати? Грошові вимоги розглянуто.",
			triggered: false,
		},
		{
			name:      "second sentence carries both phrases",
			clause:    "Відкрити провадження. Визнати грошові вимоги ТОВ Ромашка.",
			triggered: true,
		},
		{
			name:      "only one phrase present",
			clause:    "Визнати вимоги кредитора обґрунтованими.",
			triggered: false,
		},
		{
			name:      "empty clause",
			clause:    "",
			triggered: false,
		},
	}

	c := newClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.clause)
			if result.Triggered != tt.triggered {
				t.Errorf("Classify(%q).Triggered = %v, want %v", tt.clause, result.Triggered, tt.triggered)
			}
			if tt.triggered {
				if !result.IsCritical {
					t.Error("triggered clause should be critical")
				}
				if len(result.FoundTriggers) != 2 {
					t.Errorf("expected both phrases recorded, got %v", result.FoundTriggers)
				}
				if len(result.TriggerTypes) != 1 || result.TriggerTypes[0] != CombinedResolutionSameSentence {
					t.Errorf("unexpected trigger types: %v", result.TriggerTypes)
				}
			}
		})
	}
}

func setupDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestUpdaterRun(t *testing.T) {
	db := setupDB(t)
	log, err := logger.NewLogger("error", "text")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	rulings := []database.TrackedRuling{
		{DocID: "1", ResolutionClause: "Визнати грошові вимоги Банку до Боржника."},
		{DocID: "2", ResolutionClause: "Відкрити провадження у справі."},
		{DocID: "3", ResolutionClause: "Резолютивна частина не знайдена"},
		{DocID: "4", ResolutionClause: ""},
	}
	for i := range rulings {
		if err := db.Create(&rulings[i]).Error; err != nil {
			t.Fatalf("failed to create ruling: %v", err)
		}
	}

	u := NewUpdater(db, newClassifier(), log)
	stats, err := u.Run(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Checked != 2 {
		t.Errorf("expected 2 checked, got %d", stats.Checked)
	}
	if stats.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", stats.Triggered)
	}

	var triggered database.TrackedRuling
	db.Where("doc_id = ?", "1").First(&triggered)
	if !triggered.Triggered || !triggered.IsCritical {
		t.Error("expected ruling 1 to be triggered and critical")
	}
	if triggered.CheckedAt == nil {
		t.Error("expected checked_at to be set")
	}

	var plain database.TrackedRuling
	db.Where("doc_id = ?", "2").First(&plain)
	if plain.Triggered {
		t.Error("ruling 2 should not be triggered")
	}
	if plain.CheckedAt == nil {
		t.Error("expected checked_at to be set after check")
	}

	var sentinel database.TrackedRuling
	db.Where("doc_id = ?", "3").First(&sentinel)
	if sentinel.CheckedAt != nil {
		t.Error("sentinel clause should not be classified")
	}

	// second run has nothing left to do
	stats, err = u.Run(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if stats.Checked != 0 {
		t.Errorf("expected 0 checked on repeat run, got %d", stats.Checked)
	}
}
