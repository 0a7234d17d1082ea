// Package search locates court decisions for tracked cases in the
// year-sharded decisions registry.
package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const shardPrefix = "court_decisions_"

// Shard years outside this range come from malformed table names
const (
	minShardYear = 2014
	maxShardYear = 2030
)

// Registry is a read-only connection to the sharded decisions database
type Registry struct {
	db *gorm.DB
}

func OpenRegistry(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path+"?mode=ro"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open decisions registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// NewRegistry wraps an already open database, used by tests
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// DB exposes the underlying connection for shard queries
func (r *Registry) DB() *gorm.DB {
	return r.db
}

// ShardYears lists the years for which a decisions table exists,
// newest first. Tables with an implausible year are skipped.
func (r *Registry) ShardYears() ([]int, error) {
	var names []string
	err := r.db.Raw(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ?`,
		shardPrefix+"%",
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shard tables: %w", err)
	}

	var years []int
	for _, name := range names {
		year, err := strconv.Atoi(strings.TrimPrefix(name, shardPrefix))
		if err != nil || year < minShardYear || year > maxShardYear {
			continue
		}
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

// TableName returns the shard table holding decisions for a year
func TableName(year int) string {
	return fmt.Sprintf("%s%d", shardPrefix, year)
}

// TablesForYear picks the shards worth querying for a case filed in
// caseYear, capped at limit. The case's own year and its neighbors go
// first, then the newest shards, since rulings often land years after
// filing. An unknown year (0) falls back to the newest shards only.
func TablesForYear(available []int, caseYear, limit int) []string {
	if limit <= 0 {
		limit = 8
	}
	have := make(map[int]bool, len(available))
	for _, y := range available {
		have[y] = true
	}

	var years []int
	seen := make(map[int]bool)
	add := func(y int) {
		if have[y] && !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}

	if caseYear == 0 {
		fallback := limit - 3
		if fallback < 1 {
			fallback = 1
		}
		for i := 0; i < len(available) && i < fallback; i++ {
			add(available[i])
		}
	} else {
		add(caseYear)
		for _, offset := range []int{-2, -1, 1, 2} {
			add(caseYear + offset)
		}
		// newest shards catch late rulings in long-running cases
		for i := 0; i < len(available) && i < 3; i++ {
			add(available[i])
		}
	}

	if len(years) > limit {
		years = years[:limit]
	}

	tables := make([]string, len(years))
	for i, y := range years {
		tables[i] = TableName(y)
	}
	return tables
}
