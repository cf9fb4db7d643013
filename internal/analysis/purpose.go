package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxInstructionKeywords = 12
	maxPurposeSentences    = 3
	maxChecklistItems      = 6
	checklistClipRunes     = 120
)

var (
	datePattern   = regexp.MustCompile(`\b\d{4}[./-]\d{1,2}[./-]\d{1,2}\b`)
	timePattern   = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	amountPattern = regexp.MustCompile(`[$₩€£]\s?\d[\d,]*(\.\d+)?`)
)

// PurposeProfile описывает цель, по которой организуется снимок.
type PurposeProfile struct {
	Name           string
	Instruction    string
	SampleKeywords []string
}

type PurposeResult struct {
	Summary   string
	Checklist []string
}

func instructionKeywords(instruction string) []string {
	normalized := strings.ToLower(NormalizeText(instruction))
	var out []string
	for _, token := range strings.Split(normalized, " ") {
		if len([]rune(token)) < 2 || IsStopword(token) {
			continue
		}
		out = append(out, token)
		if len(out) == maxInstructionKeywords {
			break
		}
	}
	return out
}

func purposeKeywords(profile PurposeProfile) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}
	for _, k := range profile.SampleKeywords {
		add(strings.ToLower(k))
	}
	for _, k := range instructionKeywords(profile.Instruction) {
		add(k)
	}
	return keywords
}

func containsAny(sentence string, keywords []string) bool {
	lowered := strings.ToLower(sentence)
	for _, k := range keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// OrganizeByPurpose строит сводку и чек-лист по ключевым словам цели.
func OrganizeByPurpose(text string, profile PurposeProfile, fallbackLabel string) PurposeResult {
	cleaned := strings.TrimSpace(text)
	keywords := purposeKeywords(profile)

	var matched []string
	if len(keywords) > 0 {
		for _, sentence := range splitSentences(cleaned) {
			if containsAny(sentence, keywords) {
				matched = append(matched, sentence)
			}
		}
	}

	summary := strings.Join(firstN(matched, maxPurposeSentences), " ")
	if summary == "" {
		summary = GenerateSummary(cleaned, fallbackLabel)
	}

	var checklist []string
	for _, v := range firstN(datePattern.FindAllString(cleaned, -1), 2) {
		checklist = append(checklist, "Check date: "+v)
	}
	for _, v := range firstN(timePattern.FindAllString(cleaned, -1), 2) {
		checklist = append(checklist, "Check time: "+v)
	}
	for _, v := range firstN(amountPattern.FindAllString(cleaned, -1), 2) {
		checklist = append(checklist, "Check amount: "+v)
	}
	for _, sentence := range firstN(matched, maxPurposeSentences) {
		if clipped, cut := clipRunes(sentence, checklistClipRunes); cut {
			sentence = clipped + "..."
		}
		checklist = append(checklist, "Review key sentence: "+sentence)
	}

	if len(checklist) == 0 {
		checklist = append(checklist, fmt.Sprintf("Review the key points for the %s purpose and register follow-up tasks.", profile.Name))
	}

	return PurposeResult{
		Summary:   summary,
		Checklist: firstN(dedupe(checklist), maxChecklistItems),
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
