package routing

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"agenthub/internal/domain"
)

// categoryRule holds the static keyword and pattern tables for one category.
// Patterns are stronger signals than keywords and add a fixed bonus per match.
type categoryRule struct {
	keywords []string
	patterns []*regexp.Regexp
}

// categoryRules is keyed by category but always iterated through
// domain.Categories so tie-breaks stay deterministic.
var categoryRules = map[domain.Category]categoryRule{
	domain.CategoryGeneral: {
		keywords: []string{"hello", "hi", "hey", "thanks", "thank you", "help", "question"},
	},
	domain.CategoryCustomerService: {
		keywords: []string{
			"refund", "billing", "invoice", "charge", "cancel", "subscription",
			"account", "complaint", "order", "delivery", "return", "payment",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(refund|chargeback)s?\b`),
			regexp.MustCompile(`cancel (my|the|this) (order|subscription|account)`),
		},
	},
	domain.CategoryTechnical: {
		keywords: []string{
			"error", "bug", "crash", "install", "api", "code", "server",
			"database", "deploy", "configure", "exception", "timeout",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`stack\s*trace`),
			regexp.MustCompile(`error\s+code\s+\d+`),
		},
	},
	domain.CategorySales: {
		keywords: []string{
			"price", "pricing", "quote", "discount", "purchase", "buy",
			"upgrade", "plan", "demo", "license", "trial",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`how much (does|is|would)`),
		},
	},
	domain.CategoryResearch: {
		keywords: []string{
			"research", "analyze", "compare", "summary", "summarize",
			"report", "study", "data", "findings", "sources",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`pros and cons`),
		},
	},
	domain.CategoryScheduling: {
		keywords: []string{
			"schedule", "meeting", "appointment", "calendar", "book",
			"reschedule", "reminder", "availability",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{1,2}:\d{2}\b`),
			regexp.MustCompile(`(tomorrow|next week|on (mon|tues|wednes|thurs|fri|satur|sun)day)`),
		},
	},
}

// agentTypesByCategory maps each category to acceptable agent type tags,
// primary type first. Static configuration, never inferred.
var agentTypesByCategory = map[domain.Category][]string{
	domain.CategoryGeneral:         {"general", "customer_service"},
	domain.CategoryCustomerService: {"customer_service", "general"},
	domain.CategoryTechnical:       {"technical", "general"},
	domain.CategorySales:           {"sales", "customer_service", "general"},
	domain.CategoryResearch:        {"research", "technical", "general"},
	domain.CategoryScheduling:      {"scheduling", "general"},
}

// containsKeyword reports whether the lowercased message contains the keyword.
// Single-word keywords must match on word boundaries so "hi" does not fire
// inside "this"; multi-word keywords use plain substring containment.
func containsKeyword(lower, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(lower, keyword)
	}
	idx := 0
	for {
		i := strings.Index(lower[idx:], keyword)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(keyword)
		beforeOK := start == 0
		if !beforeOK {
			r, _ := utf8.DecodeLastRuneInString(lower[:start])
			beforeOK = !isWordRune(r)
		}
		afterOK := end == len(lower)
		if !afterOK {
			r, _ := utf8.DecodeRuneInString(lower[end:])
			afterOK = !isWordRune(r)
		}
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
