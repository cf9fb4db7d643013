package analysis

import (
	"regexp"
	"strings"
)

type Category string

const (
	CategoryReceipt     Category = "receipt"
	CategoryReservation Category = "reservation"
	CategoryDocument    Category = "document"
	CategoryChat        Category = "chat"
	CategoryStudy       Category = "study"
	CategoryShopping    Category = "shopping"
	CategoryFinance     Category = "finance"
	CategoryMisc        Category = "misc"
)

// Categories перечисляет допустимые категории в порядке хранения.
var Categories = []Category{
	CategoryReceipt,
	CategoryReservation,
	CategoryDocument,
	CategoryChat,
	CategoryStudy,
	CategoryShopping,
	CategoryFinance,
	CategoryMisc,
}

type categoryRule struct {
	category Category
	pattern  *regexp.Regexp
}

// Порядок важен: receipt проверяется раньше finance.
var categoryRules = []categoryRule{
	{CategoryReceipt, regexp.MustCompile(`(?i)(total|subtotal|tax|receipt|thank you|amount due)`)},
	{CategoryReservation, regexp.MustCompile(`(?i)(reservation|booking|check-in|check out|seat|confirmation)`)},
	{CategoryFinance, regexp.MustCompile(`(?i)(invoice|statement|balance|payment|due date|bank|account)`)},
	{CategoryShopping, regexp.MustCompile(`(?i)(order|cart|shipping|delivery|tracking|item)`)},
	{CategoryStudy, regexp.MustCompile(`(?i)(chapter|lesson|course|homework|assignment|quiz)`)},
	{CategoryChat, regexp.MustCompile(`(?i)(chat|message|conversation|dm|reply)`)},
	{CategoryDocument, regexp.MustCompile(`(?i)(report|document|memo|proposal|agenda|minutes)`)},
}

func ClassifyCategory(text string) Category {
	lowered := strings.ToLower(text)
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(lowered) {
			return rule.category
		}
	}
	return CategoryMisc
}

// ParseCategory сообщает, является ли value одной из категорий.
func ParseCategory(value string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == value {
			return c, true
		}
	}
	return "", false
}

// EnsureCategory приводит произвольную строку к категории, по умолчанию misc.
func EnsureCategory(value string) Category {
	if c, ok := ParseCategory(strings.ToLower(value)); ok {
		return c
	}
	return CategoryMisc
}

type Suggestion struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

var suggestionsByCategory = map[Category][]Suggestion{
	CategoryReceipt: {
		{Title: "Log the expense", Reason: "Record the spending right away."},
		{Title: "Check refund/exchange deadline", Reason: "Avoid missing the deadline."},
		{Title: "Monthly spending summary", Reason: "Track totals per category."},
	},
	CategoryReservation: {
		{Title: "Add to calendar", Reason: "Don't forget the time."},
		{Title: "Save place/address", Reason: "Prepare the trip faster."},
		{Title: "Share with companions", Reason: "Share the details they need."},
	},
	CategoryDocument: {
		{Title: "Review key summary", Reason: "Grasp the important points quickly."},
		{Title: "Register next action", Reason: "Make document follow-up explicit."},
		{Title: "Save related links", Reason: "Leads to further material."},
	},
	CategoryChat: {
		{Title: "Write a reply", Reason: "Keep the conversation going."},
		{Title: "Turn into a todo", Reason: "Don't forget the request."},
		{Title: "Save key sentences", Reason: "Keep the important parts of the conversation."},
	},
	CategoryStudy: {
		{Title: "Save study notes", Reason: "Makes review easier."},
		{Title: "Plan next study session", Reason: "Keep up the pace."},
		{Title: "Memorize keywords", Reason: "Remember the key terms."},
	},
	CategoryShopping: {
		{Title: "Check delivery schedule", Reason: "Don't miss the arrival."},
		{Title: "Add to list", Reason: "Makes repeat purchases easier."},
		{Title: "Compare budget", Reason: "Keep spending under control."},
	},
	CategoryFinance: {
		{Title: "Schedule the payment", Reason: "Avoid late fees."},
		{Title: "Classify spending category", Reason: "Understand the money flow."},
		{Title: "Set a reminder", Reason: "Remember important deadlines."},
	},
	CategoryMisc: {
		{Title: "Save as memo", Reason: "Needs further organizing."},
		{Title: "Add related tags", Reason: "Easier to find later."},
		{Title: "Convert to todo", Reason: "Make the next action explicit."},
	},
}

// GenerateActionSuggestions возвращает копию списка, чтобы вызывающий мог его менять.
func GenerateActionSuggestions(category Category) []Suggestion {
	list, ok := suggestionsByCategory[category]
	if !ok {
		list = suggestionsByCategory[CategoryMisc]
	}
	out := make([]Suggestion, len(list))
	copy(out, list)
	return out
}
