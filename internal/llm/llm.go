// Package llm extracts structured creditor claims from resolution
// clauses using a language model.
package llm

import (
	"context"
)

// Amounts holds recognized sums per bankruptcy claim queue. Absent
// queues stay nil so they are distinguishable from zero.
type Amounts struct {
	Queue1 *float64 `json:"1st_queue"`
	Queue2 *float64 `json:"2nd_queue"`
	Queue3 *float64 `json:"3rd_queue"`
	Queue4 *float64 `json:"4th_queue"`
	Queue5 *float64 `json:"5th_queue"`
	Queue6 *float64 `json:"6th_queue"`
}

// CreditorEntry is one creditor recognized in a clause
type CreditorEntry struct {
	Name    string  `json:"name"`
	Amounts Amounts `json:"amounts"`
}

// Response is the structured result of analyzing one clause
type Response struct {
	Creditors    []CreditorEntry `json:"creditors"`
	Confidence   float64         `json:"confidence"`
	DocumentType string          `json:"document_type,omitempty"`
}

// Backend analyzes a resolution clause and returns recognized claims
type Backend interface {
	Analyze(ctx context.Context, clause string) (*Response, error)
}

const systemPrompt = `Ти аналізуєш резолютивні частини ухвал господарських судів України у справах про банкрутство.
Знайди всіх кредиторів, чиї грошові вимоги визнано судом, та суми за чергами задоволення (1-6 черги).
Поверни ЛИШЕ валідний JSON без пояснень у форматі:
{"creditors":[{"name":"назва кредитора","amounts":{"1st_queue":0,"4th_queue":12345.67}}],"confidence":0.95,"document_type":"initial"}
Правила:
- вказуй лише черги, суми за якими прямо названо в тексті
- суми подавай числами без пробілів і валюти
- document_type: "initial" для першої ухвали, "full" для повної версії, "summary" для підсумкової
- confidence від 0 до 1
Якщо вимог не визнано, поверни {"creditors":[],"confidence":1.0}`

func buildPrompt(clause string) string {
	return "Резолютивна частина ухвали:\n\n" + clause
}
