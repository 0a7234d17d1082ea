// Package trigger flags resolution clauses that recognize monetary
// claims against a debtor.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// TriggerType recorded when both phrases land in one sentence
const CombinedResolutionSameSentence = "combined_resolution_same_sentence"

var sentenceSplitRe = regexp.MustCompile(`[.!?]`)

// Result is the outcome of classifying one clause
type Result struct {
	Triggered     bool     `json:"triggered"`
	FoundTriggers []string `json:"found_triggers"`
	TriggerTypes  []string `json:"trigger_types"`
	IsCritical    bool     `json:"is_critical"`
}

// Classifier detects claim-recognition language in clauses. A clause
// triggers only when the recognition verb and the monetary-claims
// phrase occur in the same sentence; mentions in separate sentences
// are routine references, not recognitions.
type Classifier struct {
	primary   string
	secondary string
}

func NewClassifier(primaryPhrase, secondaryPhrase string) *Classifier {
	return &Classifier{
		primary:   strings.ToLower(primaryPhrase),
		secondary: strings.ToLower(secondaryPhrase),
	}
}

// Classify checks a resolution clause for the trigger combination
func (c *Classifier) Classify(clause string) Result {
	lowered := strings.ToLower(clause)
	for _, sentence := range sentenceSplitRe.Split(lowered, -1) {
		if strings.Contains(sentence, c.primary) && strings.Contains(sentence, c.secondary) {
			return Result{
				Triggered:     true,
				FoundTriggers: []string{c.primary, c.secondary},
				TriggerTypes:  []string{CombinedResolutionSameSentence},
				IsCritical:    true,
			}
		}
	}
	return Result{}
}

// Stats summarizes one classification run
type Stats struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Errors    int `json:"errors"`
}

// ProgressFunc reports batch progress to the process controller
type ProgressFunc func(current, total int, message string)

// Updater applies the classifier to rulings with an extracted clause
type Updater struct {
	db         *gorm.DB
	classifier *Classifier
	log        *logger.Logger
}

func NewUpdater(db *gorm.DB, classifier *Classifier, log *logger.Logger) *Updater {
	return &Updater{db: db, classifier: classifier, log: log}
}

// Run classifies every unchecked ruling that has a usable clause
func (u *Updater) Run(ctx context.Context, limit int, progress ProgressFunc) (*Stats, error) {
	var rulings []database.TrackedRuling
	query := u.db.Where(
		"checked_at IS NULL AND resolution_clause <> '' AND resolution_clause <> ? AND resolution_clause NOT LIKE ?",
		"Резолютивна частина не знайдена", "Не вдалося завантажити документ%",
	).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rulings).Error; err != nil {
		return nil, fmt.Errorf("failed to load rulings: %w", err)
	}

	stats := &Stats{}
	for i := range rulings {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if progress != nil {
			progress(i+1, len(rulings), fmt.Sprintf("classifying ruling %s", rulings[i].DocID))
		}
		if err := u.classifyRuling(&rulings[i]); err != nil {
			u.log.Error("classification failed", "doc_id", rulings[i].DocID, "error", err)
			stats.Errors++
			continue
		}
		stats.Checked++
		if rulings[i].Triggered {
			stats.Triggered++
		}
	}

	u.log.Info("classification run finished",
		"checked", stats.Checked,
		"triggered", stats.Triggered,
		"errors", stats.Errors)
	return stats, nil
}

func (u *Updater) classifyRuling(r *database.TrackedRuling) error {
	result := u.classifier.Classify(r.ResolutionClause)

	foundJSON, err := json.Marshal(result.FoundTriggers)
	if err != nil {
		return err
	}
	typesJSON, err := json.Marshal(result.TriggerTypes)
	if err != nil {
		return err
	}

	now := time.Now()
	r.Triggered = result.Triggered
	r.IsCritical = result.IsCritical
	return u.db.Model(r).Updates(map[string]interface{}{
		"triggered":      result.Triggered,
		"found_triggers": string(foundJSON),
		"trigger_types":  string(typesJSON),
		"is_critical":    result.IsCritical,
		"checked_at":     now,
	}).Error
}
