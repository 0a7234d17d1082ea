// Package extractor downloads ruling documents and pulls the operative
// part out of each one.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/cache"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// Stats summarizes one extraction run
type Stats struct {
	Processed   int `json:"processed"`
	Extracted   int `json:"extracted"`
	NotFound    int `json:"not_found"`
	Unavailable int `json:"unavailable"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// ProgressFunc reports batch progress to the process controller
type ProgressFunc func(current, total int, message string)

// StopFunc is polled between rulings; true aborts the run
type StopFunc func() bool

// Extractor runs the download-convert-extract pipeline over rulings
// that do not yet have an operative part.
type Extractor struct {
	db         *gorm.DB
	gov        *governor.Governor
	downloader *Downloader
	preload    cache.Cache
	cfg        *config.Config
	log        *logger.Logger

	fileLocks   map[string]*sync.Mutex
	fileLocksMu sync.Mutex
}

func New(db *gorm.DB, gov *governor.Governor, cfg *config.Config, log *logger.Logger) *Extractor {
	x := &Extractor{
		db:         db,
		gov:        gov,
		downloader: NewDownloader(cfg, log),
		preload:    cache.NewCache(cfg.PreloadQueueSize, 10*time.Minute),
		cfg:        cfg,
		log:        log,
		fileLocks:  make(map[string]*sync.Mutex),
	}
	// a preloaded document dropped before any worker claimed it leaves
	// a temp file behind; clean it up on eviction
	x.preload.OnEvicted(func(key string, doc *cache.Document) {
		if doc.Consumed || doc.Path == "" {
			return
		}
		x.removeTempFile(doc.Path)
	})
	return x
}

// pendingRulings lists rulings whose clause is empty or a sentinel.
// Rulings with a real clause are never reprocessed. In missing-only
// mode sentinel rows are not retried either, only rulings that were
// never attempted.
func (x *Extractor) pendingRulings(limit int, missingOnly bool) ([]database.TrackedRuling, error) {
	var rulings []database.TrackedRuling
	var query *gorm.DB
	if missingOnly {
		query = x.db.Where("doc_url <> '' AND resolution_clause = ''")
	} else {
		query = x.db.Where(
			"doc_url <> '' AND (resolution_clause = '' OR resolution_clause = ? OR resolution_clause LIKE ?)",
			ResolutionNotFound, "Не вдалося завантажити документ%",
		)
	}
	query = query.Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rulings).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending rulings: %w", err)
	}
	return rulings, nil
}

// unresolvedCounts returns how many rulings have a document URL at all
// and how many of those still lack a real clause
func (x *Extractor) unresolvedCounts() (eligible, unresolved int64, err error) {
	err = x.db.Model(&database.TrackedRuling{}).
		Where("doc_url <> ''").Count(&eligible).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count rulings: %w", err)
	}
	err = x.db.Model(&database.TrackedRuling{}).
		Where(
			"doc_url <> '' AND (resolution_clause = '' OR resolution_clause = ? OR resolution_clause LIKE ?)",
			ResolutionNotFound, "Не вдалося завантажити документ%",
		).Count(&unresolved).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count unresolved rulings: %w", err)
	}
	return eligible, unresolved, nil
}

// Run processes all pending rulings in sub-batches. Each sub-batch is
// preloaded ahead of the workers so downloads overlap with parsing.
func (x *Extractor) Run(ctx context.Context, limit int, progress ProgressFunc, stop StopFunc) (*Stats, error) {
	return x.run(ctx, limit, false, progress, stop)
}

// RunMissingOnly processes only rulings that were never attempted
func (x *Extractor) RunMissingOnly(ctx context.Context, limit int, progress ProgressFunc, stop StopFunc) (*Stats, error) {
	return x.run(ctx, limit, true, progress, stop)
}

func (x *Extractor) run(ctx context.Context, limit int, missingOnly bool, progress ProgressFunc, stop StopFunc) (*Stats, error) {
	// anything left in the preload queue after the run is an orphaned
	// temp file; Clear routes it through the eviction cleanup
	defer x.preload.Clear()

	// once almost everything is resolved, skip sentinel retries and
	// only pick up rulings that were never attempted
	if !missingOnly {
		eligible, unresolved, err := x.unresolvedCounts()
		if err != nil {
			return nil, err
		}
		if eligible > 0 && float64(unresolved)/float64(eligible) < x.cfg.IncrementalThreshold {
			missingOnly = true
			x.log.Info("switching to incremental extraction",
				"unresolved", unresolved,
				"eligible", eligible)
		}
	}

	rulings, err := x.pendingRulings(limit, missingOnly)
	if err != nil {
		return nil, err
	}
	x.log.Info("extraction run starting",
		"pending", len(rulings),
		"missing_only", missingOnly)

	stats := &Stats{}
	var statsMu sync.Mutex

	batchSize := x.cfg.ExtractSubBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	done := 0
	for start := 0; start < len(rulings); start += batchSize {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if stop != nil && stop() {
			x.log.Info("extraction stopped by request", "processed", done)
			return stats, nil
		}

		end := start + batchSize
		if end > len(rulings) {
			end = len(rulings)
		}
		batch := rulings[start:end]

		go x.preloadBatch(ctx, batch)

		jobs := make(chan *database.TrackedRuling)
		var wg sync.WaitGroup
		for w := 0; w < x.cfg.ExtractWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for r := range jobs {
					result := outcomeError
					if err := x.gov.WithWorker(ctx, func() error {
						result = x.processRuling(ctx, r)
						return nil
					}); err != nil {
						continue
					}
					statsMu.Lock()
					stats.Processed++
					switch result {
					case outcomeExtracted:
						stats.Extracted++
					case outcomeNotFound:
						stats.NotFound++
					case outcomeUnavailable:
						stats.Unavailable++
					case outcomeSkipped:
						stats.Skipped++
					case outcomeError:
						stats.Errors++
					}
					statsMu.Unlock()
				}
			}()
		}

		for i := range batch {
			select {
			case jobs <- &batch[i]:
			case <-ctx.Done():
			}
		}
		close(jobs)
		wg.Wait()

		done = end
		if progress != nil {
			progress(done, len(rulings), fmt.Sprintf("extracted %d of %d rulings", done, len(rulings)))
		}
	}

	x.log.Info("extraction run finished",
		"processed", stats.Processed,
		"extracted", stats.Extracted,
		"not_found", stats.NotFound,
		"unavailable", stats.Unavailable,
		"errors", stats.Errors)
	return stats, nil
}

// preloadBatch downloads the batch's documents ahead of the workers
func (x *Extractor) preloadBatch(ctx context.Context, batch []database.TrackedRuling) {
	for i := range batch {
		r := &batch[i]
		if ctx.Err() != nil {
			return
		}
		key := cache.GenerateCacheKey(r.DocID)
		if _, found := x.preload.Get(key); found {
			continue
		}
		path, err := x.downloader.Fetch(ctx, r.DocID, r.DocURL)
		x.preload.Set(key, &cache.Document{DocID: r.DocID, Path: path, Err: err})
	}
}

type outcome int

const (
	outcomeExtracted outcome = iota
	outcomeNotFound
	outcomeUnavailable
	outcomeSkipped
	outcomeError
)

func (x *Extractor) processRuling(ctx context.Context, r *database.TrackedRuling) outcome {
	if r.ResolutionClause != "" && !IsSentinel(r.ResolutionClause) {
		return outcomeSkipped
	}

	path, err := x.fetchDocument(ctx, r)
	if err != nil {
		if errors.Is(err, ErrDownloadTimeout) {
			if saveErr := x.saveClause(ctx, r, UnavailableSentinel(x.cfg.DownloadMaxRetries)); saveErr != nil {
				x.log.Error("failed to record unavailable document", "doc_id", r.DocID, "error", saveErr)
				return outcomeError
			}
			return outcomeUnavailable
		}
		if ctx.Err() != nil {
			return outcomeError
		}
		// permanent failure, recorded right away so the ruling is not
		// refetched on every incremental run
		x.log.Error("document fetch failed", "doc_id", r.DocID, "error", err)
		if saveErr := x.saveClause(ctx, r, DownloadFailed); saveErr != nil {
			x.log.Error("failed to record download failure", "doc_id", r.DocID, "error", saveErr)
		}
		return outcomeError
	}
	defer x.removeTempFile(path)

	data, err := x.readDocument(path)
	if err != nil {
		x.log.Error("failed to read document", "doc_id", r.DocID, "error", err)
		return outcomeError
	}

	text := RTFToText(data)
	clause, found := ExtractResolution(text)
	if !found {
		if err := x.saveClause(ctx, r, ResolutionNotFound); err != nil {
			x.log.Error("failed to save clause", "doc_id", r.DocID, "error", err)
			return outcomeError
		}
		return outcomeNotFound
	}

	if err := x.saveClause(ctx, r, Sanitize(clause)); err != nil {
		x.log.Error("failed to save clause", "doc_id", r.DocID, "error", err)
		return outcomeError
	}
	return outcomeExtracted
}

func (x *Extractor) fetchDocument(ctx context.Context, r *database.TrackedRuling) (string, error) {
	key := cache.GenerateCacheKey(r.DocID)
	if doc, found := x.preload.Get(key); found {
		// the worker owns the temp file from here on
		doc.Consumed = true
		x.preload.Delete(key)
		return doc.Path, doc.Err
	}
	return x.downloader.Fetch(ctx, r.DocID, r.DocURL)
}

func (x *Extractor) saveClause(ctx context.Context, r *database.TrackedRuling, clause string) error {
	now := time.Now()
	return x.gov.WithConnection(ctx, func() error {
		return x.db.Model(r).Updates(map[string]interface{}{
			"resolution_clause": clause,
			"extracted_at":      now,
		}).Error
	})
}

// lockFor returns the mutex guarding one temp file path
func (x *Extractor) lockFor(path string) *sync.Mutex {
	x.fileLocksMu.Lock()
	defer x.fileLocksMu.Unlock()
	if mu, ok := x.fileLocks[path]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	x.fileLocks[path] = mu
	return mu
}

func (x *Extractor) readDocument(path string) ([]byte, error) {
	mu := x.lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	return os.ReadFile(path)
}

// removeTempFile deletes a document with a few bounded retries, since
// antivirus or indexing can briefly hold the file open.
func (x *Extractor) removeTempFile(path string) {
	if path == "" {
		return
	}
	mu := x.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	x.fileLocksMu.Lock()
	delete(x.fileLocks, path)
	x.fileLocksMu.Unlock()
}
