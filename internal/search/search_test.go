package search

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

func TestTablesForYear(t *testing.T) {
	available := []int{2025, 2024, 2023, 2022, 2021, 2020, 2019, 2018}

	tests := []struct {
		name     string
		caseYear int
		limit    int
		want     []string
	}{
		{
			name:     "case year with neighbors and recent shards",
			caseYear: 2020,
			limit:    8,
			want: []string{
				"court_decisions_2020",
				"court_decisions_2018",
				"court_decisions_2019",
				"court_decisions_2021",
				"court_decisions_2022",
				"court_decisions_2025",
				"court_decisions_2024",
				"court_decisions_2023",
			},
		},
		{
			name:     "recent case year overlaps recent shards",
			caseYear: 2024,
			limit:    8,
			want: []string{
				"court_decisions_2024",
				"court_decisions_2022",
				"court_decisions_2023",
				"court_decisions_2025",
			},
		},
		{
			name:     "unknown year falls back to newest shards",
			caseYear: 0,
			limit:    8,
			want: []string{
				"court_decisions_2025",
				"court_decisions_2024",
				"court_decisions_2023",
				"court_decisions_2022",
				"court_decisions_2021",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TablesForYear(available, tt.caseYear, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TablesForYear(%d) = %v, want %v", tt.caseYear, got, tt.want)
			}
		})
	}
}

func setupRegistry(t *testing.T, years ...int) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open registry database: %v", err)
	}
	for _, year := range years {
		stmt := fmt.Sprintf(`CREATE TABLE %s (
			doc_id TEXT, court_code TEXT, judgment_code TEXT, judge TEXT,
			cause_num TEXT, adjudication_date TEXT, doc_url TEXT, status TEXT
		)`, TableName(year))
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create shard table: %v", err)
		}
	}
	return NewRegistry(db)
}

func insertDecision(t *testing.T, r *Registry, year int, d Decision) {
	t.Helper()
	stmt := fmt.Sprintf(
		`INSERT INTO %s (doc_id, court_code, judgment_code, judge, cause_num, adjudication_date, doc_url, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, TableName(year))
	err := r.DB().Exec(stmt,
		d.DocID, d.CourtCode, d.JudgmentCode, d.Judge,
		d.CauseNum, d.AdjudicationDate, d.DocURL, d.Status).Error
	if err != nil {
		t.Fatalf("failed to insert decision: %v", err)
	}
}

func setupAppDB(t *testing.T) *gorm.DB {
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

func testEngine(t *testing.T, db *gorm.DB, registry *Registry) *Engine {
	t.Helper()
	log, err := logger.NewLogger("error", "text")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	cfg := &config.Config{
		SearchWorkers:    4,
		SearchBatchSize:  50,
		SearchHitLimit:   50,
		SearchShardLimit: 8,
	}
	return NewEngine(db, registry, governor.New(10, 4), cfg, log)
}

func TestSearchCaseFindsBothVariants(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)
	insertDecision(t, registry, 2023, Decision{
		DocID: "111", CauseNum: "756/16936/23",
		AdjudicationDate: "2023-05-10", DocURL: "http://example.com/111.rtf",
	})
	insertDecision(t, registry, 2024, Decision{
		DocID: "222", CauseNum: "756/16936/2023",
		AdjudicationDate: "2024-02-01", DocURL: "http://example.com/222.rtf",
	})

	db := setupAppDB(t)
	tc := database.TrackedCase{CaseNumber: "756/16936/23", SearchStatus: "pending"}
	if err := db.Create(&tc).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}

	engine := testEngine(t, db, registry)
	added, err := engine.SearchCase(context.Background(), &tc)
	if err != nil {
		t.Fatalf("SearchCase failed: %v", err)
	}
	if added != 2 {
		t.Errorf("expected 2 new rulings, got %d", added)
	}
	if tc.SearchStatus != database.SearchCompleted {
		t.Errorf("expected status completed, got %s", tc.SearchStatus)
	}
	if tc.RulingsCount != 2 {
		t.Errorf("expected rulings count 2, got %d", tc.RulingsCount)
	}
	if tc.SearchedAt == nil {
		t.Error("expected searched_at to be set")
	}
}

func TestSearchCaseIsIdempotent(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)
	insertDecision(t, registry, 2023, Decision{
		DocID: "111", CauseNum: "756/16936/23", AdjudicationDate: "2023-05-10",
	})

	db := setupAppDB(t)
	tc := database.TrackedCase{CaseNumber: "756/16936/23", SearchStatus: "pending"}
	if err := db.Create(&tc).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}

	engine := testEngine(t, db, registry)
	if _, err := engine.SearchCase(context.Background(), &tc); err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	added, err := engine.SearchCase(context.Background(), &tc)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if added != 0 {
		t.Errorf("expected no new rulings on repeat search, got %d", added)
	}

	var count int64
	db.Model(&database.TrackedRuling{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 ruling, got %d", count)
	}
}

func TestSearchCaseNotFound(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)

	db := setupAppDB(t)
	tc := database.TrackedCase{CaseNumber: "999/1/23", SearchStatus: "pending"}
	if err := db.Create(&tc).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}

	engine := testEngine(t, db, registry)
	added, err := engine.SearchCase(context.Background(), &tc)
	if err != nil {
		t.Fatalf("SearchCase failed: %v", err)
	}
	if added != 0 {
		t.Errorf("expected no rulings, got %d", added)
	}
	if tc.SearchStatus != database.SearchCompleted {
		t.Errorf("expected status completed, got %s", tc.SearchStatus)
	}
	if tc.RulingsCount != 0 {
		t.Errorf("expected rulings count 0, got %d", tc.RulingsCount)
	}
}

func TestSearchBatchContinuesAfterBadCase(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)
	insertDecision(t, registry, 2023, Decision{
		DocID: "111", CauseNum: "756/16936/23", AdjudicationDate: "2023-05-10",
	})

	db := setupAppDB(t)
	bad := database.TrackedCase{CaseNumber: "---", SearchStatus: "pending"}
	good := database.TrackedCase{CaseNumber: "756/16936/23", SearchStatus: "pending"}
	if err := db.Create(&bad).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}
	if err := db.Create(&good).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}

	engine := testEngine(t, db, registry)

	stats, err := engine.SearchBatch(context.Background(), 0, nil, nil)
	if err != nil {
		t.Fatalf("SearchBatch failed: %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if stats.CasesSearched != 1 || stats.CasesFound != 1 {
		t.Errorf("expected 1 searched and found, got %+v", stats)
	}

	// the bad case is marked failed and stays eligible for the next run
	var reloaded database.TrackedCase
	if err := db.First(&reloaded, bad.ID).Error; err != nil {
		t.Fatalf("failed to reload case: %v", err)
	}
	if reloaded.SearchStatus != database.SearchFailed {
		t.Errorf("expected bad case to be failed, got %s", reloaded.SearchStatus)
	}
	if !reloaded.NeedsSearch() {
		t.Error("expected failed case to remain eligible for search")
	}
}

func TestSearchBatchPriorityAndSelection(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)

	db := setupAppDB(t)
	searched := database.TrackedCase{
		CaseNumber:   "100/1/23",
		SearchStatus: database.SearchCompleted,
		RulingsCount: 3,
	}
	empty := database.TrackedCase{
		CaseNumber:   "100/2/23",
		SearchStatus: database.SearchCompleted,
		RulingsCount: 0,
	}
	failed := database.TrackedCase{
		CaseNumber:   "100/3/23",
		SearchStatus: database.SearchFailed,
		Priority:     5,
	}
	fresh := database.TrackedCase{
		CaseNumber:   "100/4/23",
		SearchStatus: database.SearchPending,
		Priority:     10,
	}
	for _, tc := range []*database.TrackedCase{&searched, &empty, &failed, &fresh} {
		if err := db.Create(tc).Error; err != nil {
			t.Fatalf("failed to create case: %v", err)
		}
	}

	engine := testEngine(t, db, registry)

	var order []string
	progress := func(current, total int, message string) {
		order = append(order, message)
	}
	stats, err := engine.SearchBatch(context.Background(), 0, progress, nil)
	if err != nil {
		t.Fatalf("SearchBatch failed: %v", err)
	}

	// completed case with rulings is skipped, the rest run by priority
	if stats.CasesSearched != 3 {
		t.Fatalf("expected 3 cases searched, got %d", stats.CasesSearched)
	}
	want := []string{
		"searching 100/4/23",
		"searching 100/3/23",
		"searching 100/2/23",
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}

	var untouched database.TrackedCase
	if err := db.First(&untouched, searched.ID).Error; err != nil {
		t.Fatalf("failed to reload case: %v", err)
	}
	if untouched.SearchedAt != nil {
		t.Error("expected completed case with rulings to be left alone")
	}
}

func TestSearchCaseReleasesGovernorSlots(t *testing.T) {
	registry := setupRegistry(t, 2021, 2022, 2023, 2024, 2025)
	insertDecision(t, registry, 2023, Decision{
		DocID: "111", CauseNum: "756/16936/23", AdjudicationDate: "2023-05-10",
	})
	insertDecision(t, registry, 2024, Decision{
		DocID: "222", CauseNum: "756/16936/2023", AdjudicationDate: "2024-02-01",
	})

	db := setupAppDB(t)
	tc := database.TrackedCase{CaseNumber: "756/16936/23", SearchStatus: database.SearchPending}
	if err := db.Create(&tc).Error; err != nil {
		t.Fatalf("failed to create case: %v", err)
	}

	log, err := logger.NewLogger("error", "text")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	cfg := &config.Config{
		SearchWorkers:    4,
		SearchBatchSize:  50,
		SearchHitLimit:   50,
		SearchShardLimit: 8,
	}
	// a single worker slot serializes the shard queries but must not
	// starve or leak
	gov := governor.New(2, 1)
	engine := NewEngine(db, registry, gov, cfg, log)

	added, err := engine.SearchCase(context.Background(), &tc)
	if err != nil {
		t.Fatalf("SearchCase failed: %v", err)
	}
	if added != 2 {
		t.Errorf("expected 2 rulings, got %d", added)
	}

	status := gov.Status()
	if status.WorkersInUse != 0 || status.ConnectionsInUse != 0 {
		t.Errorf("expected all governor slots released, got %+v", status)
	}
}

func TestSearchBatchHonorsStop(t *testing.T) {
	registry := setupRegistry(t, 2023, 2024, 2025)

	db := setupAppDB(t)
	for _, num := range []string{"200/1/23", "200/2/23", "200/3/23"} {
		tc := database.TrackedCase{CaseNumber: num, SearchStatus: database.SearchPending}
		if err := db.Create(&tc).Error; err != nil {
			t.Fatalf("failed to create case: %v", err)
		}
	}

	engine := testEngine(t, db, registry)

	calls := 0
	stop := func() bool {
		calls++
		return calls > 1
	}
	stats, err := engine.SearchBatch(context.Background(), 0, nil, stop)
	if err != nil {
		t.Fatalf("SearchBatch failed: %v", err)
	}
	if stats.CasesSearched != 1 {
		t.Errorf("expected 1 case searched before stop, got %d", stats.CasesSearched)
	}

	var pending int64
	db.Model(&database.TrackedCase{}).
		Where("search_status = ?", database.SearchPending).
		Count(&pending)
	if pending != 2 {
		t.Errorf("expected 2 cases left pending, got %d", pending)
	}
}
