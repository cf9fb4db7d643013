package analysis

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultTagLimit  = 6
	summarySentences = 2
	summaryMaxRunes  = 400
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "from": {},
	"your": {}, "have": {}, "will": {}, "are": {}, "you": {}, "our": {}, "but": {},
	"not": {}, "was": {}, "were": {}, "has": {}, "had": {}, "into": {}, "about": {},
	"over": {}, "under": {}, "when": {}, "where": {}, "who": {}, "what": {}, "why": {},
	"how": {}, "can": {}, "could": {}, "would": {}, "should": {}, "email": {},
	"phone": {}, "www": {}, "http": {}, "https": {}, "com": {},
}

// IsStopword сообщает, входит ли токен в список стоп-слов.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// NormalizeText убирает диакритику и пунктуацию, оставляя буквы, цифры и одиночные пробелы.
func NormalizeText(input string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), input)
	if err != nil {
		folded = input
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(' ')
	}
	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitSentences режет текст после '.', '!' или '?', за которыми идёт пробел.
func splitSentences(text string) []string {
	collapsed := collapseSpaces(text)
	var sentences []string
	start := 0
	for i := 1; i < len(collapsed); i++ {
		if collapsed[i] != ' ' {
			continue
		}
		switch collapsed[i-1] {
		case '.', '!', '?':
			if part := collapsed[start:i]; part != "" {
				sentences = append(sentences, part)
			}
			start = i + 1
		}
	}
	if start < len(collapsed) {
		sentences = append(sentences, collapsed[start:])
	}
	return sentences
}

func clipRunes(s string, limit int) (string, bool) {
	r := []rune(s)
	if len(r) <= limit {
		return s, false
	}
	return string(r[:limit]), true
}

// GenerateSummary возвращает первые два предложения текста.
func GenerateSummary(text, fallbackLabel string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return fmt.Sprintf("No OCR text found. Source: %s.", fallbackLabel)
	}

	sentences := splitSentences(cleaned)
	if len(sentences) > summarySentences {
		sentences = sentences[:summarySentences]
	}
	summary := strings.Join(sentences, " ")
	if clipped, cut := clipRunes(summary, summaryMaxRunes); cut {
		return clipped + "..."
	}
	return summary
}

// ExtractTags возвращает до maxTags самых частых значимых токенов.
// maxTags <= 0 даёт пустой список, лимит по умолчанию - DefaultTagLimit.
// При равной частоте сохраняется порядок первого появления.
func ExtractTags(text string, maxTags int) []string {
	if maxTags <= 0 {
		return []string{}
	}
	normalized := strings.ToLower(NormalizeText(text))
	if normalized == "" {
		return []string{}
	}

	type tagCount struct {
		word  string
		count int
	}
	var order []*tagCount
	index := make(map[string]*tagCount)
	for _, token := range strings.Split(normalized, " ") {
		if len([]rune(token)) < 3 || IsStopword(token) {
			continue
		}
		if tc, ok := index[token]; ok {
			tc.count++
			continue
		}
		tc := &tagCount{word: token, count: 1}
		index[token] = tc
		order = append(order, tc)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})

	if len(order) > maxTags {
		order = order[:maxTags]
	}
	tags := make([]string, 0, len(order))
	for _, tc := range order {
		tags = append(tags, tc.word)
	}
	return tags
}
