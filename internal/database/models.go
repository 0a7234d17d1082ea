package database

import (
	"time"

	"gorm.io/gorm"
)

// Process statuses for ProcessControl
const (
	StatusIdle          = "idle"
	StatusRunning       = "running"
	StatusForcedRunning = "forced_running"
	StatusPaused        = "paused"
	StatusStopped       = "stopped"
	StatusError         = "error"
)

// Process types managed by the exclusivity controller
const (
	ProcessCourtSearch      = "court_search"
	ProcessClauseExtraction = "clause_extraction"
	ProcessClaimAnalysis    = "claim_analysis"
)

// Document types recognized by the claim analyzer
const (
	DocTypeInitial = "initial"
	DocTypeFull    = "full"
	DocTypeSummary = "summary"
	DocTypeUnknown = "unknown"
)

// Search statuses for TrackedCase
const (
	SearchPending   = "pending"
	SearchRunning   = "running"
	SearchCompleted = "completed"
	SearchFailed    = "failed"
)

// Deduplication log operations
const (
	OpCreditorAdded    = "creditor_added"
	OpDuplicateRemoved = "duplicate_removed"
	OpClaimUpdated     = "claim_updated"
	OpCaseProcessed    = "case_processed"
)

// TrackedCase is a bankruptcy case monitored for new rulings.
// Higher priority cases are searched first.
type TrackedCase struct {
	gorm.Model
	CaseNumber   string     `json:"case_number" gorm:"uniqueIndex;not null"`
	ClientName   string     `json:"client_name"`
	DebtorName   string     `json:"debtor_name"`
	Notes        string     `json:"notes" gorm:"type:text"`
	Priority     int        `json:"priority" gorm:"index"`
	SearchStatus string     `json:"search_status" gorm:"default:pending;index"`
	SearchedAt   *time.Time `json:"searched_at"`
	RulingsCount int        `json:"rulings_count"`

	Rulings []TrackedRuling `json:"rulings,omitempty" gorm:"foreignKey:TrackedCaseID"`
}

// NeedsSearch reports whether the case should be picked up by a search batch:
// never searched, failed, or completed without a single ruling.
func (c *TrackedCase) NeedsSearch() bool {
	if c.SearchStatus == SearchPending || c.SearchStatus == SearchFailed {
		return true
	}
	return c.SearchStatus == SearchCompleted && c.RulingsCount == 0
}

// TrackedRuling is a court decision found for a tracked case
type TrackedRuling struct {
	gorm.Model
	TrackedCaseID    uint   `json:"tracked_case_id" gorm:"uniqueIndex:idx_ruling_case_doc"`
	DocID            string `json:"doc_id" gorm:"uniqueIndex:idx_ruling_case_doc;index"`
	CourtCode        string `json:"court_code"`
	JudgmentCode     string `json:"judgment_code"`
	Judge            string `json:"judge"`
	CauseNum         string `json:"cause_num" gorm:"index"`
	AdjudicationDate string `json:"adjudication_date"`
	DocURL           string `json:"doc_url"`
	DocStatus        string `json:"doc_status"`

	ResolutionClause string     `json:"resolution_clause" gorm:"type:text"`
	ExtractedAt      *time.Time `json:"extracted_at"`

	Triggered     bool       `json:"triggered"`
	FoundTriggers string     `json:"found_triggers" gorm:"type:text"`
	TriggerTypes  string     `json:"trigger_types" gorm:"type:text"`
	IsCritical    bool       `json:"is_critical"`
	CheckedAt     *time.Time `json:"checked_at"`

	Analyzed     bool       `json:"analyzed"`
	AnalyzedAt   *time.Time `json:"analyzed_at"`
	DocumentType string     `json:"document_type"`
}

// Creditor is a claimant entity shared across cases, grouped by normalized
// name. Per-queue totals aggregate its claims over every tracked case.
type Creditor struct {
	gorm.Model
	Name           string  `json:"name" gorm:"uniqueIndex:idx_creditor_name;index"`
	NormalizedName string  `json:"normalized_name" gorm:"uniqueIndex:idx_creditor_name;index"`
	TotalCases     int     `json:"total_cases"`
	TotalQueue1    float64 `json:"total_queue_1" gorm:"column:total_queue_1"`
	TotalQueue2    float64 `json:"total_queue_2" gorm:"column:total_queue_2"`
	TotalQueue3    float64 `json:"total_queue_3" gorm:"column:total_queue_3"`
	TotalQueue4    float64 `json:"total_queue_4" gorm:"column:total_queue_4"`
	TotalQueue5    float64 `json:"total_queue_5" gorm:"column:total_queue_5"`
	TotalQueue6    float64 `json:"total_queue_6" gorm:"column:total_queue_6"`
	TotalAmount    float64 `json:"total_amount"`
	ClaimsCount    int     `json:"claims_count"`

	Claims []CreditorClaim `json:"claims,omitempty" gorm:"foreignKey:CreditorID"`
}

// CreditorClaim holds per-queue recognized amounts for a creditor in a case.
// Queue amounts are nullable so that an absent queue is distinct from zero.
type CreditorClaim struct {
	gorm.Model
	TrackedCaseID  uint     `json:"tracked_case_id" gorm:"uniqueIndex:idx_claim_case_creditor"`
	CreditorID     uint     `json:"creditor_id" gorm:"uniqueIndex:idx_claim_case_creditor"`
	Queue1         *float64 `json:"queue_1"`
	Queue2         *float64 `json:"queue_2"`
	Queue3         *float64 `json:"queue_3"`
	Queue4         *float64 `json:"queue_4"`
	Queue5         *float64 `json:"queue_5"`
	Queue6         *float64 `json:"queue_6"`
	TotalAmount    float64  `json:"total_amount"`
	Confidence     float64  `json:"confidence"`
	SourceRulingID uint     `json:"source_ruling_id"`
	DocumentType   string   `json:"document_type"`
}

// Queues returns the claim queue amounts in order
func (c *CreditorClaim) Queues() []*float64 {
	return []*float64{c.Queue1, c.Queue2, c.Queue3, c.Queue4, c.Queue5, c.Queue6}
}

// BeforeSave recomputes the claim total from non-null queue amounts
func (c *CreditorClaim) BeforeSave(tx *gorm.DB) error {
	total := 0.0
	for _, q := range c.Queues() {
		if q != nil {
			total += *q
		}
	}
	c.TotalAmount = total
	return nil
}

// ProcessControl tracks the state of one pipeline process type
type ProcessControl struct {
	gorm.Model
	ProcessType     string     `json:"process_type" gorm:"uniqueIndex;not null"`
	Status          string     `json:"status" gorm:"default:idle"`
	IsForced        bool       `json:"is_forced"`
	ProgressCurrent int        `json:"progress_current"`
	ProgressTotal   int        `json:"progress_total"`
	ProgressMessage string     `json:"progress_message"`
	StartedAt       *time.Time `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
	Heartbeat       *time.Time `json:"heartbeat"`
}

// DeduplicationLog records one merge decision made by the claim analyzer
type DeduplicationLog struct {
	gorm.Model
	TrackedCaseID uint    `json:"tracked_case_id" gorm:"index"`
	RulingID      uint    `json:"ruling_id"`
	CreditorName  string  `json:"creditor_name"`
	Operation     string  `json:"operation" gorm:"index"`
	DocumentType  string  `json:"document_type"`
	OldTotal      float64 `json:"old_total"`
	NewTotal      float64 `json:"new_total"`
	Details       string  `json:"details" gorm:"type:text"`
}

// DedupStats is a single-row aggregate of analyzer activity
type DedupStats struct {
	gorm.Model
	CasesProcessed    int        `json:"cases_processed"`
	CreditorsAdded    int        `json:"creditors_added"`
	DuplicatesRemoved int        `json:"duplicates_removed"`
	ClaimsUpdated     int        `json:"claims_updated"`
	InitialDocs       int        `json:"initial_docs"`
	FullDocs          int        `json:"full_docs"`
	SummaryDocs       int        `json:"summary_docs"`
	UnknownDocs       int        `json:"unknown_docs"`
	APIErrors         int        `json:"api_errors"`
	ParsingErrors     int        `json:"parsing_errors"`
	DatabaseErrors    int        `json:"database_errors"`
	LastError         string     `json:"last_error" gorm:"type:text"`
	IsRunning         bool       `json:"is_running"`
	LastRunAt         *time.Time `json:"last_run_at"`
}

// AnalysisLog records the outcome of one pipeline stage for a ruling
type AnalysisLog struct {
	gorm.Model
	TrackedRulingID uint   `json:"tracked_ruling_id" gorm:"index"`
	Stage           string `json:"stage"`
	Success         bool   `json:"success"`
	ErrorMessage    string `json:"error_message" gorm:"type:text"`
	DurationMS      int64  `json:"duration_ms"`
}

func (TrackedCase) TableName() string {
	return "tracked_cases"
}

func (TrackedRuling) TableName() string {
	return "tracked_rulings"
}

func (Creditor) TableName() string {
	return "creditors"
}

func (CreditorClaim) TableName() string {
	return "creditor_claims"
}

func (ProcessControl) TableName() string {
	return "process_controls"
}

func (DeduplicationLog) TableName() string {
	return "deduplication_logs"
}

func (DedupStats) TableName() string {
	return "dedup_stats"
}

func (AnalysisLog) TableName() string {
	return "analysis_logs"
}
