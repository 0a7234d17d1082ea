// Package casenum normalizes Ukrainian court case numbers of the form
// NNN/NNNNN/YY, where the year part may be written with two or four digits.
package casenum

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonNumberRe  = regexp.MustCompile(`[^\d/]`)
)

// Variants returns the cleaned case number together with its alternate
// year spelling, so a lookup matches records stored either way.
// "756/16936/23" yields {"756/16936/23", "756/16936/2023"}.
func Variants(caseNumber string) []string {
	cleaned := Clean(caseNumber)
	if cleaned == "" {
		return nil
	}

	variants := []string{cleaned}

	idx := strings.LastIndex(cleaned, "/")
	if idx < 0 || idx == len(cleaned)-1 {
		return variants
	}
	prefix, yearPart := cleaned[:idx], cleaned[idx+1:]

	switch len(yearPart) {
	case 2:
		yy, err := strconv.Atoi(yearPart)
		if err != nil {
			return variants
		}
		century := "19"
		if yy <= 30 {
			century = "20"
		}
		variants = append(variants, prefix+"/"+century+yearPart)
	case 4:
		variants = append(variants, prefix+"/"+yearPart[2:])
	}

	return variants
}

// Clean strips whitespace and everything but digits and slashes
func Clean(caseNumber string) string {
	s := whitespaceRe.ReplaceAllString(caseNumber, "")
	return nonNumberRe.ReplaceAllString(s, "")
}

// Year returns the four-digit filing year parsed from the case number,
// or 0 when it cannot be determined.
func Year(caseNumber string) int {
	s := whitespaceRe.ReplaceAllString(caseNumber, "")
	idx := strings.LastIndex(s, "/")
	if idx < 0 || idx == len(s)-1 {
		return 0
	}
	yearPart := s[idx+1:]
	if dash := strings.Index(yearPart, "-"); dash >= 0 {
		yearPart = yearPart[:dash]
	}
	yearPart = nonNumberRe.ReplaceAllString(yearPart, "")

	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0
	}
	if year < 100 {
		if year >= 90 {
			year += 1900
		} else {
			year += 2000
		}
	}
	if year < 1990 || year > time.Now().Year()+1 {
		return 0
	}
	return year
}
