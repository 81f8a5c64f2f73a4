package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Entity types produced by the built-in recognizers.
const (
	EntityEmail         = "EMAIL_ADDRESS"
	EntitySSN           = "US_SSN"
	EntityCreditCard    = "CREDIT_CARD"
	EntityIPAddress     = "IP_ADDRESS"
	EntityPhone         = "PHONE_NUMBER"
	EntityStreetAddress = "STREET_ADDRESS"
	EntityPerson        = "PERSON"
)

// Finding is one detected sensitive span. Start and End are byte offsets into the
// analyzed text.
type Finding struct {
	EntityType string
	Start      int
	End        int
}

type Detector interface {
	Detect(text string) []Finding
}

// Recognizer matches a single entity type. Reject, when set, discards a match; scanning
// then resumes after the first word of the rejected match so a valid match that starts
// inside it is still found.
type Recognizer struct {
	EntityType string
	Pattern    *regexp.Regexp
	Reject     func(match string) bool
}

// Order matters only for ties: at equal start and length the earlier recognizer wins.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{
			EntityType: EntityEmail,
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		},
		{
			EntityType: EntitySSN,
			Pattern:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			EntityType: EntityCreditCard,
			Pattern:    regexp.MustCompile(`\b(?:\d{4}[\- ]?){3}\d{4}\b`),
		},
		{
			EntityType: EntityIPAddress,
			Pattern:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
		},
		{
			EntityType: EntityPhone,
			Pattern:    regexp.MustCompile(`(?:\+?1[\-. ]?)?(?:\(\d{3}\)|\b\d{3})[\-. ]?\d{3}[\-. ]\d{4}\b`),
		},
		{
			EntityType: EntityStreetAddress,
			Pattern: regexp.MustCompile(
				`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`,
			),
		},
		{
			EntityType: EntityPerson,
			Pattern:    regexp.MustCompile(`\b(?:(?:Mr|Mrs|Ms|Dr)\.\s+)?[A-Z][a-z]+(?:\s+[A-Z]\.)?\s+[A-Z][a-z]+\b`),
			Reject:     rejectPerson,
		},
	}
}

// Capitalized pairs that open a sentence or name a document part are not people.
var personStopwords = map[string]struct{}{
	"a": {}, "all": {}, "an": {}, "and": {}, "any": {}, "article": {}, "as": {}, "at": {},
	"but": {}, "by": {}, "each": {}, "for": {}, "from": {}, "he": {}, "her": {}, "his": {},
	"if": {}, "in": {}, "it": {}, "its": {}, "my": {}, "no": {}, "of": {}, "on": {},
	"or": {}, "our": {}, "page": {}, "section": {}, "she": {}, "such": {}, "that": {},
	"the": {}, "their": {}, "these": {}, "they": {}, "this": {}, "those": {}, "to": {},
	"upon": {}, "we": {}, "whereas": {}, "with": {}, "you": {}, "your": {},
}

func rejectPerson(match string) bool {
	fields := strings.Fields(match)
	if len(fields) == 0 {
		return true
	}
	first := strings.ToLower(strings.TrimSuffix(fields[0], "."))
	_, stop := personStopwords[first]
	return stop
}

type RegexDetector struct {
	recognizers []Recognizer
}

// NewRegexDetector enables the built-in recognizers for the given entity types, or all of
// them when none are given.
func NewRegexDetector(entities ...string) (*RegexDetector, error) {
	all := DefaultRecognizers()
	if len(entities) == 0 {
		return &RegexDetector{recognizers: all}, nil
	}

	byType := make(map[string]Recognizer, len(all))
	for _, r := range all {
		byType[r.EntityType] = r
	}
	selected := make([]Recognizer, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, raw := range entities {
		entity := strings.ToUpper(strings.TrimSpace(raw))
		r, ok := byType[entity]
		if !ok {
			return nil, fmt.Errorf("unknown pii entity type %q", raw)
		}
		if _, dup := seen[entity]; dup {
			continue
		}
		seen[entity] = struct{}{}
		selected = append(selected, r)
	}
	// keep the built-in tie-break order regardless of config order
	sort.SliceStable(selected, func(i, j int) bool {
		return recognizerRank(all, selected[i].EntityType) < recognizerRank(all, selected[j].EntityType)
	})
	return &RegexDetector{recognizers: selected}, nil
}

func NewDetector(recognizers ...Recognizer) *RegexDetector {
	return &RegexDetector{recognizers: recognizers}
}

func recognizerRank(all []Recognizer, entity string) int {
	for i, r := range all {
		if r.EntityType == entity {
			return i
		}
	}
	return len(all)
}

// Detect returns non-overlapping findings ordered by start offset. Overlaps are resolved
// by earliest start, then longest span, then recognizer order.
func (d *RegexDetector) Detect(text string) []Finding {
	type candidate struct {
		Finding
		rank int
	}
	var candidates []candidate
	for rank, r := range d.recognizers {
		for _, loc := range findAll(r, text) {
			candidates = append(candidates, candidate{
				Finding: Finding{EntityType: r.EntityType, Start: loc[0], End: loc[1]},
				rank:    rank,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.rank < b.rank
	})

	out := make([]Finding, 0, len(candidates))
	lastEnd := -1
	for _, c := range candidates {
		if c.Start < lastEnd {
			continue
		}
		out = append(out, c.Finding)
		lastEnd = c.End
	}
	return out
}

func findAll(r Recognizer, text string) [][2]int {
	var out [][2]int
	offset := 0
	for offset < len(text) {
		loc := r.Pattern.FindStringIndex(text[offset:])
		if loc == nil {
			break
		}
		start, end := offset+loc[0], offset+loc[1]
		if end == start {
			offset = end + 1
			continue
		}
		match := text[start:end]
		if r.Reject != nil && r.Reject(match) {
			next := strings.IndexAny(match, " \t\r\n")
			if next <= 0 {
				next = len(match)
			}
			offset = start + next
			continue
		}
		out = append(out, [2]int{start, end})
		offset = end
	}
	return out
}
