package database

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func f(v float64) *float64 { return &v }

func TestClaimTotalRecomputedOnSave(t *testing.T) {
	db := setupDB(t)

	claim := CreditorClaim{
		TrackedCaseID: 1,
		CreditorID:    1,
		Queue1:        f(1000),
		Queue4:        f(2500.50),
	}
	if err := db.Create(&claim).Error; err != nil {
		t.Fatalf("failed to create claim: %v", err)
	}
	if claim.TotalAmount != 3500.50 {
		t.Errorf("total = %v, want 3500.50", claim.TotalAmount)
	}

	claim.Queue6 = f(100)
	if err := db.Save(&claim).Error; err != nil {
		t.Fatalf("failed to save claim: %v", err)
	}
	if claim.TotalAmount != 3600.50 {
		t.Errorf("total after update = %v, want 3600.50", claim.TotalAmount)
	}
}

func TestRulingUniquePerCaseAndDoc(t *testing.T) {
	db := setupDB(t)

	first := TrackedRuling{TrackedCaseID: 1, DocID: "111"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("failed to create ruling: %v", err)
	}

	dup := TrackedRuling{TrackedCaseID: 1, DocID: "111"}
	if err := db.Create(&dup).Error; err == nil {
		t.Error("expected unique constraint violation for same case and doc")
	}

	// same doc in another case is a distinct ruling
	other := TrackedRuling{TrackedCaseID: 2, DocID: "111"}
	if err := db.Create(&other).Error; err != nil {
		t.Errorf("same doc in another case should be allowed: %v", err)
	}
}

func TestCaseNumberUnique(t *testing.T) {
	db := setupDB(t)

	if err := db.Create(&TrackedCase{CaseNumber: "756/1/23"}).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}
	if err := db.Create(&TrackedCase{CaseNumber: "756/1/23"}).Error; err == nil {
		t.Error("expected unique constraint violation for duplicate case number")
	}
}
