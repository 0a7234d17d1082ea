// Package analysis turns triggered resolution clauses into deduplicated
// creditor claims.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/llm"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// ProgressFunc reports batch progress to the process controller
type ProgressFunc func(current, total int, message string)

// StopFunc is polled between rulings; true aborts the run
type StopFunc func() bool

// Analyzer extracts creditor claims from triggered rulings and merges
// them into the per-case claim register.
type Analyzer struct {
	db      *gorm.DB
	gov     *governor.Governor
	backend llm.Backend
	cfg     *config.Config
	log     *logger.Logger
}

func New(db *gorm.DB, gov *governor.Governor, backend llm.Backend, cfg *config.Config, log *logger.Logger) *Analyzer {
	return &Analyzer{db: db, gov: gov, backend: backend, cfg: cfg, log: log}
}

// Run analyzes every triggered ruling that has not been analyzed yet.
// A failed ruling stays unanalyzed and the run continues; aggregate
// counters and the last error are kept in the stats row.
func (a *Analyzer) Run(ctx context.Context, limit int, progress ProgressFunc, stop StopFunc) (*database.DedupStats, error) {
	stats, err := a.loadStats()
	if err != nil {
		return nil, err
	}
	stats.IsRunning = true
	if err := a.db.Save(stats).Error; err != nil {
		return nil, fmt.Errorf("failed to mark analysis running: %w", err)
	}
	defer func() {
		now := time.Now()
		stats.IsRunning = false
		stats.LastRunAt = &now
		if err := a.db.Save(stats).Error; err != nil {
			a.log.Error("failed to persist analysis stats", "error", err)
		}
	}()

	var rulings []database.TrackedRuling
	query := a.db.Where(
		"triggered = ? AND analyzed = ? AND resolution_clause <> ''",
		true, false,
	).Order("tracked_case_id ASC, adjudication_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rulings).Error; err != nil {
		return nil, fmt.Errorf("failed to load rulings: %w", err)
	}

	processedCases := make(map[uint]bool)
	for i := range rulings {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if stop != nil && stop() {
			a.log.Info("analysis stopped by request", "processed", i)
			return stats, nil
		}
		if progress != nil {
			progress(i+1, len(rulings), fmt.Sprintf("analyzing ruling %s", rulings[i].DocID))
		}

		err := a.gov.WithWorker(ctx, func() error {
			return a.processRuling(ctx, &rulings[i], stats)
		})
		if err != nil {
			a.recordError(stats, err)
			a.log.Error("ruling analysis failed", "doc_id", rulings[i].DocID, "error", err)
			continue
		}
		if !processedCases[rulings[i].TrackedCaseID] {
			processedCases[rulings[i].TrackedCaseID] = true
			stats.CasesProcessed++
			a.logOperation(rulings[i].TrackedCaseID, rulings[i].ID, "", database.OpCaseProcessed, "", 0, 0, "")
		}
	}

	a.log.Info("analysis run finished",
		"rulings", len(rulings),
		"cases", len(processedCases),
		"creditors_added", stats.CreditorsAdded,
		"duplicates_removed", stats.DuplicatesRemoved,
		"claims_updated", stats.ClaimsUpdated)
	return stats, nil
}

func (a *Analyzer) processRuling(ctx context.Context, r *database.TrackedRuling, stats *database.DedupStats) error {
	start := time.Now()

	resp, err := a.backend.Analyze(ctx, r.ResolutionClause)
	if err != nil {
		a.logStage(r.ID, false, err.Error(), time.Since(start))
		return err
	}

	docType := resolveDocType(resp.DocumentType, r.ResolutionClause)
	switch docType {
	case database.DocTypeInitial:
		stats.InitialDocs++
	case database.DocTypeFull:
		stats.FullDocs++
	case database.DocTypeSummary:
		stats.SummaryDocs++
	default:
		stats.UnknownDocs++
	}

	err = a.gov.WithConnection(ctx, func() error {
		return a.db.Transaction(func(tx *gorm.DB) error {
			for _, entry := range resp.Creditors {
				if err := a.applyEntry(tx, r, entry, docType, resp.Confidence, stats); err != nil {
					return err
				}
			}
			now := time.Now()
			return tx.Model(r).Updates(map[string]interface{}{
				"analyzed":      true,
				"analyzed_at":   now,
				"document_type": docType,
			}).Error
		})
	})
	if err != nil {
		a.logStage(r.ID, false, err.Error(), time.Since(start))
		return fmt.Errorf("database merge failed: %w", err)
	}

	a.logStage(r.ID, true, "", time.Since(start))
	return nil
}

// applyEntry merges one recognized creditor into the case register.
// A brand new creditor is added with its claim; an exact restatement
// is dropped as a duplicate; otherwise the larger amount wins per
// queue and the claim is updated.
func (a *Analyzer) applyEntry(tx *gorm.DB, r *database.TrackedRuling, entry llm.CreditorEntry, docType string, confidence float64, stats *database.DedupStats) error {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return nil
	}
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil
	}

	// creditors are global; the same bank across two cases is one row
	var creditor database.Creditor
	err := tx.Where("normalized_name = ?", normalized).First(&creditor).Error
	if err == gorm.ErrRecordNotFound {
		creditor = database.Creditor{
			Name:           name,
			NormalizedName: normalized,
		}
		if err := tx.Create(&creditor).Error; err != nil {
			return fmt.Errorf("failed to create creditor %s: %w", name, err)
		}

		claim := database.CreditorClaim{
			TrackedCaseID:  r.TrackedCaseID,
			CreditorID:     creditor.ID,
			Confidence:     confidence,
			SourceRulingID: r.ID,
			DocumentType:   docType,
		}
		mergeAmounts(&claim, entry.Amounts)
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("failed to create claim for %s: %w", name, err)
		}

		stats.CreditorsAdded++
		a.logOperationTx(tx, r.TrackedCaseID, r.ID, name, database.OpCreditorAdded, docType, 0, claim.TotalAmount, "")
		return a.refreshCreditor(tx, &creditor)
	}
	if err != nil {
		return fmt.Errorf("failed to look up creditor %s: %w", name, err)
	}

	var claim database.CreditorClaim
	err = tx.Where(
		"tracked_case_id = ? AND creditor_id = ?", r.TrackedCaseID, creditor.ID,
	).First(&claim).Error
	if err == gorm.ErrRecordNotFound {
		claim = database.CreditorClaim{
			TrackedCaseID:  r.TrackedCaseID,
			CreditorID:     creditor.ID,
			Confidence:     confidence,
			SourceRulingID: r.ID,
			DocumentType:   docType,
		}
		mergeAmounts(&claim, entry.Amounts)
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("failed to create claim for %s: %w", name, err)
		}
		stats.CreditorsAdded++
		a.logOperationTx(tx, r.TrackedCaseID, r.ID, name, database.OpCreditorAdded, docType, 0, claim.TotalAmount, "")
		return a.refreshCreditor(tx, &creditor)
	}
	if err != nil {
		return fmt.Errorf("failed to look up claim for %s: %w", name, err)
	}

	oldTotal := claim.TotalAmount

	if isDuplicate(&claim, entry.Amounts, a.cfg.DedupTolerance) {
		stats.DuplicatesRemoved++
		a.logOperationTx(tx, r.TrackedCaseID, r.ID, name, database.OpDuplicateRemoved, docType,
			oldTotal, oldTotal, "amounts match existing claim")
		return nil
	}

	if !mergeAmounts(&claim, entry.Amounts) {
		// differs but nothing exceeds what is already recognized
		stats.DuplicatesRemoved++
		a.logOperationTx(tx, r.TrackedCaseID, r.ID, name, database.OpDuplicateRemoved, docType,
			oldTotal, oldTotal, "no queue exceeds existing amounts")
		return nil
	}

	claim.SourceRulingID = r.ID
	claim.DocumentType = docType
	if confidence > claim.Confidence {
		claim.Confidence = confidence
	}
	if err := tx.Save(&claim).Error; err != nil {
		return fmt.Errorf("failed to update claim for %s: %w", name, err)
	}

	stats.ClaimsUpdated++
	a.logOperationTx(tx, r.TrackedCaseID, r.ID, name, database.OpClaimUpdated, docType,
		oldTotal, claim.TotalAmount, "")
	return a.refreshCreditor(tx, &creditor)
}

// refreshCreditor recomputes a creditor's per-queue aggregates over its
// claims in every case
func (a *Analyzer) refreshCreditor(tx *gorm.DB, creditor *database.Creditor) error {
	var claims []database.CreditorClaim
	if err := tx.Where("creditor_id = ?", creditor.ID).Find(&claims).Error; err != nil {
		return err
	}

	var queues [6]float64
	total := 0.0
	cases := make(map[uint]bool)
	for _, c := range claims {
		for i, q := range c.Queues() {
			queues[i] += queueValue(q)
		}
		total += c.TotalAmount
		cases[c.TrackedCaseID] = true
	}

	return tx.Model(creditor).Updates(map[string]interface{}{
		"total_queue_1": queues[0],
		"total_queue_2": queues[1],
		"total_queue_3": queues[2],
		"total_queue_4": queues[3],
		"total_queue_5": queues[4],
		"total_queue_6": queues[5],
		"total_amount":  total,
		"total_cases":   len(cases),
		"claims_count":  len(claims),
	}).Error
}

func resolveDocType(fromModel, clause string) string {
	switch fromModel {
	case database.DocTypeInitial, database.DocTypeFull, database.DocTypeSummary:
		return fromModel
	case "":
		return ClassifyDocument(clause)
	default:
		return database.DocTypeUnknown
	}
}

func (a *Analyzer) loadStats() (*database.DedupStats, error) {
	var stats database.DedupStats
	if err := a.db.FirstOrCreate(&stats, database.DedupStats{}).Error; err != nil {
		return nil, fmt.Errorf("failed to load analysis stats: %w", err)
	}
	return &stats, nil
}

// recordError classifies a failure into the matching stats counter
func (a *Analyzer) recordError(stats *database.DedupStats, err error) {
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "api") || strings.Contains(lowered, "429") ||
		strings.Contains(lowered, "rate limit"):
		stats.APIErrors++
	case strings.Contains(lowered, "json") || strings.Contains(lowered, "parse"):
		stats.ParsingErrors++
	default:
		stats.DatabaseErrors++
	}
	stats.LastError = msg
}

func (a *Analyzer) logOperation(caseID, rulingID uint, creditor, op, docType string, oldTotal, newTotal float64, details string) {
	a.logOperationTx(a.db, caseID, rulingID, creditor, op, docType, oldTotal, newTotal, details)
}

func (a *Analyzer) logOperationTx(tx *gorm.DB, caseID, rulingID uint, creditor, op, docType string, oldTotal, newTotal float64, details string) {
	entry := database.DeduplicationLog{
		TrackedCaseID: caseID,
		RulingID:      rulingID,
		CreditorName:  creditor,
		Operation:     op,
		DocumentType:  docType,
		OldTotal:      oldTotal,
		NewTotal:      newTotal,
		Details:       details,
	}
	if err := tx.Create(&entry).Error; err != nil {
		a.log.Error("failed to write dedup log", "operation", op, "error", err)
	}
}

func (a *Analyzer) logStage(rulingID uint, success bool, errMsg string, elapsed time.Duration) {
	entry := database.AnalysisLog{
		TrackedRulingID: rulingID,
		Stage:           database.ProcessClaimAnalysis,
		Success:         success,
		ErrorMessage:    errMsg,
		DurationMS:      elapsed.Milliseconds(),
	}
	if err := a.db.Create(&entry).Error; err != nil {
		a.log.Error("failed to write analysis log", "error", err)
	}
}
