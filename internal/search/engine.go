package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/casenum"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// Per-shard result cap, generous enough for any single case
const perShardLimit = 100

// Decision is one row from a registry shard
type Decision struct {
	DocID            string `gorm:"column:doc_id"`
	CourtCode        string `gorm:"column:court_code"`
	JudgmentCode     string `gorm:"column:judgment_code"`
	Judge            string `gorm:"column:judge"`
	CauseNum         string `gorm:"column:cause_num"`
	AdjudicationDate string `gorm:"column:adjudication_date"`
	DocURL           string `gorm:"column:doc_url"`
	Status           string `gorm:"column:status"`
}

// BatchStats summarizes one search run
type BatchStats struct {
	CasesSearched int `json:"cases_searched"`
	CasesFound    int `json:"cases_found"`
	RulingsAdded  int `json:"rulings_added"`
	Errors        int `json:"errors"`
}

// ProgressFunc reports batch progress to the process controller
type ProgressFunc func(current, total int, message string)

// StopFunc is polled between cases; returning true aborts the batch
type StopFunc func() bool

// Engine searches registry shards for rulings on tracked cases
type Engine struct {
	db       *gorm.DB
	registry *Registry
	gov      *governor.Governor
	log      *logger.Logger
	cfg      *config.Config
}

func NewEngine(db *gorm.DB, registry *Registry, gov *governor.Governor, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{db: db, registry: registry, gov: gov, log: log, cfg: cfg}
}

// SearchCase queries the relevant shards for one case and persists any
// decisions found. Shards are queried concurrently; once enough hits
// accumulate the remaining shard queries are cancelled.
func (e *Engine) SearchCase(ctx context.Context, tc *database.TrackedCase) (int, error) {
	variants := casenum.Variants(tc.CaseNumber)
	if len(variants) == 0 {
		return 0, fmt.Errorf("case %d has no usable case number", tc.ID)
	}

	e.db.Model(tc).Update("search_status", database.SearchRunning)

	years, err := e.registry.ShardYears()
	if err != nil {
		return 0, err
	}
	tables := TablesForYear(years, casenum.Year(tc.CaseNumber), e.cfg.SearchShardLimit)
	if len(tables) == 0 {
		return 0, fmt.Errorf("no decision shards available")
	}

	decisions := e.queryShards(ctx, tables, variants)

	added, err := e.persist(tc, decisions)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	tc.SearchedAt = &now
	tc.SearchStatus = database.SearchCompleted
	var count int64
	e.db.Model(&database.TrackedRuling{}).Where("tracked_case_id = ?", tc.ID).Count(&count)
	tc.RulingsCount = int(count)
	if err := e.db.Save(tc).Error; err != nil {
		return added, fmt.Errorf("failed to update case %s: %w", tc.CaseNumber, err)
	}

	e.log.Info("case searched",
		"case_number", tc.CaseNumber,
		"shards", len(tables),
		"decisions", len(decisions),
		"new_rulings", added)
	return added, nil
}

// queryShards fans the variant lookup out over the shard tables and
// merges the results, keeping the first row seen per doc_id.
func (e *Engine) queryShards(ctx context.Context, tables, variants []string) []Decision {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan []Decision, len(tables))
	semaphore := make(chan struct{}, e.cfg.SearchWorkers)
	var wg sync.WaitGroup

	for _, table := range tables {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}

			var rows []Decision
			err := e.gov.WithWorker(ctx, func() error {
				return e.gov.WithConnection(ctx, func() error {
					query := fmt.Sprintf(
						`SELECT doc_id, court_code, judgment_code, judge, cause_num,
						        adjudication_date, doc_url, status
						 FROM %s WHERE cause_num IN ?
						 ORDER BY adjudication_date DESC LIMIT %d`,
						table, perShardLimit)
					return e.registry.DB().WithContext(ctx).Raw(query, variants).Scan(&rows).Error
				})
			})
			if err != nil {
				if ctx.Err() == nil {
					e.log.Warn("shard query failed", "table", table, "error", err)
				}
				return
			}
			results <- rows
		}(table)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var merged []Decision
	seen := make(map[string]bool)
	for rows := range results {
		for _, d := range rows {
			if d.DocID == "" || seen[d.DocID] {
				continue
			}
			seen[d.DocID] = true
			merged = append(merged, d)
		}
		if len(merged) >= e.cfg.SearchHitLimit {
			cancel()
		}
	}
	return merged
}

func (e *Engine) persist(tc *database.TrackedCase, decisions []Decision) (int, error) {
	added := 0
	for _, d := range decisions {
		ruling := database.TrackedRuling{
			TrackedCaseID:    tc.ID,
			DocID:            d.DocID,
			CourtCode:        d.CourtCode,
			JudgmentCode:     d.JudgmentCode,
			Judge:            d.Judge,
			CauseNum:         d.CauseNum,
			AdjudicationDate: d.AdjudicationDate,
			DocURL:           d.DocURL,
			DocStatus:        d.Status,
		}
		result := e.db.Where(
			"tracked_case_id = ? AND doc_id = ?", tc.ID, d.DocID,
		).FirstOrCreate(&ruling)
		if result.Error != nil {
			return added, fmt.Errorf("failed to save ruling %s: %w", d.DocID, result.Error)
		}
		if result.RowsAffected > 0 {
			added++
		}
	}
	return added, nil
}

// SearchBatch runs the search over every case due for one: pending or
// failed, or completed without a single ruling so it gets retried.
// Higher priority cases go first, newest next. A failing case is marked
// failed and the batch continues with the rest.
func (e *Engine) SearchBatch(ctx context.Context, limit int, progress ProgressFunc, stop StopFunc) (*BatchStats, error) {
	if limit <= 0 {
		limit = e.cfg.SearchBatchSize
	}

	var cases []database.TrackedCase
	err := e.db.Where(
		"search_status IN ? OR (search_status = ? AND rulings_count = 0)",
		[]string{database.SearchPending, database.SearchFailed},
		database.SearchCompleted,
	).Order("priority DESC, created_at DESC").Limit(limit).Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}

	stats := &BatchStats{}
	for i := range cases {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if stop != nil && stop() {
			e.log.Info("search batch stopped", "processed", stats.CasesSearched)
			return stats, nil
		}
		if progress != nil {
			progress(i+1, len(cases), fmt.Sprintf("searching %s", cases[i].CaseNumber))
		}

		added, err := e.SearchCase(ctx, &cases[i])
		if err != nil {
			e.log.Error("case search failed", "case_number", cases[i].CaseNumber, "error", err)
			e.db.Model(&cases[i]).Update("search_status", database.SearchFailed)
			stats.Errors++
			continue
		}
		stats.CasesSearched++
		stats.RulingsAdded += added
		if cases[i].RulingsCount > 0 {
			stats.CasesFound++
		}
	}

	e.log.Info("search batch finished",
		"cases", stats.CasesSearched,
		"found", stats.CasesFound,
		"rulings", stats.RulingsAdded,
		"errors", stats.Errors)
	return stats, nil
}
