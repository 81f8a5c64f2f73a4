// Package pii masks personally identifiable information with stable placeholders and
// restores it on the way back out.
package pii

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MaskMap maps placeholder keys (e.g. PERSON_1) to the original text they replace.
type MaskMap map[string]string

// State is the per-session redaction state. It is JSON serializable so a session store
// can persist it between requests.
type State struct {
	Counters map[string]int `json:"counters"`
	Masks    MaskMap        `json:"masks"`
}

func NewState() State {
	return State{
		Counters: map[string]int{},
		Masks:    MaskMap{},
	}
}

var placeholderPattern = regexp.MustCompile(`\[([A-Z][A-Z_]*_\d+)\]`)

// Sanitizer is not safe for concurrent use; callers serialize access per session.
type Sanitizer struct {
	detector Detector
	state    State
	reverse  map[string]string
}

func New(detector Detector, state State) *Sanitizer {
	if state.Counters == nil {
		state.Counters = map[string]int{}
	}
	if state.Masks == nil {
		state.Masks = MaskMap{}
	}
	reverse := make(map[string]string, len(state.Masks))
	for key, original := range state.Masks {
		reverse[original] = key
	}
	return &Sanitizer{detector: detector, state: state, reverse: reverse}
}

// Sanitize replaces every detected span with "[KEY]". A value already masked earlier in
// the session keeps its key. Every literal occurrence of a detected value is replaced,
// not only the detected span, so identical text outside a PII context is masked too.
// Text inside existing placeholders is never touched. The returned map holds the keys
// used by this call.
func (s *Sanitizer) Sanitize(text string) (string, MaskMap) {
	if text == "" {
		return text, MaskMap{}
	}
	return s.Apply(text, s.detector.Detect(text))
}

// Apply masks text using findings computed earlier by a Detector on the same text.
// Keys are allocated in finding order. Replacement runs longest original first, so a
// value that is a prefix of another (10.0.0.1 and 10.0.0.10) does not split it.
func (s *Sanitizer) Apply(text string, findings []Finding) (string, MaskMap) {
	used := MaskMap{}
	if text == "" {
		return text, used
	}

	var originals []string
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		if f.Start < 0 || f.End > len(text) || f.Start >= f.End {
			continue
		}
		original := text[f.Start:f.End]
		if strings.TrimSpace(original) == "" {
			continue
		}
		if _, dup := seen[original]; dup {
			continue
		}
		seen[original] = struct{}{}
		originals = append(originals, original)
	}

	byLength := make([]int, len(originals))
	for i := range byLength {
		byLength[i] = i
	}
	sort.SliceStable(byLength, func(a, b int) bool {
		return len(originals[byLength[a]]) > len(originals[byLength[b]])
	})

	// Replace with private-use markers first so key allocation can follow finding order
	// once it is known which originals actually occur.
	masked := text
	replaced := make([]bool, len(originals))
	for _, idx := range byLength {
		if !containsOutsidePlaceholders(masked, originals[idx]) {
			continue
		}
		masked = replaceOutsidePlaceholders(masked, originals[idx], marker(idx))
		replaced[idx] = true
	}

	pairs := make([]string, 0, 2*len(originals))
	for idx, original := range originals {
		if !replaced[idx] {
			continue
		}
		key, ok := s.reverse[original]
		if !ok {
			key = s.nextKey(entityOf(findings, text, original))
			s.state.Masks[key] = original
			s.reverse[original] = key
		}
		used[key] = original
		pairs = append(pairs, marker(idx), "["+key+"]")
	}
	if len(pairs) == 0 {
		return masked, used
	}
	return strings.NewReplacer(pairs...).Replace(masked), used
}

// Restore swaps known placeholders back to their originals in a single pass. Unknown
// placeholders are left as they are.
func (s *Sanitizer) Restore(text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		key := token[1 : len(token)-1]
		if original, ok := s.state.Masks[key]; ok {
			return original
		}
		return token
	})
}

// State returns a copy of the accumulated redaction state.
func (s *Sanitizer) State() State {
	out := NewState()
	for k, v := range s.state.Counters {
		out.Counters[k] = v
	}
	for k, v := range s.state.Masks {
		out.Masks[k] = v
	}
	return out
}

func (s *Sanitizer) nextKey(entityType string) string {
	for {
		s.state.Counters[entityType]++
		key := entityType + "_" + strconv.Itoa(s.state.Counters[entityType])
		if _, taken := s.state.Masks[key]; !taken {
			return key
		}
	}
}

// marker encodes idx in base 256 with Unicode private-use runes, which no recognizer
// matches. The closing rune keeps one marker from being a prefix of another.
func marker(idx int) string {
	runes := []rune{0xE000}
	for {
		runes = append(runes, rune(0xE100+idx%256))
		idx /= 256
		if idx == 0 {
			break
		}
	}
	return string(append(runes, 0xE001))
}

func entityOf(findings []Finding, text, original string) string {
	for _, f := range findings {
		if f.Start >= 0 && f.End <= len(text) && f.Start < f.End && text[f.Start:f.End] == original {
			return f.EntityType
		}
	}
	return ""
}

func containsOutsidePlaceholders(text, needle string) bool {
	found := false
	eachSegment(text, func(segment string, isPlaceholder bool) {
		if !isPlaceholder && strings.Contains(segment, needle) {
			found = true
		}
	})
	return found
}

func replaceOutsidePlaceholders(text, old, replacement string) string {
	var b strings.Builder
	b.Grow(len(text))
	eachSegment(text, func(segment string, isPlaceholder bool) {
		if isPlaceholder {
			b.WriteString(segment)
			return
		}
		b.WriteString(strings.ReplaceAll(segment, old, replacement))
	})
	return b.String()
}

func eachSegment(text string, fn func(segment string, isPlaceholder bool)) {
	prev := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		if loc[0] > prev {
			fn(text[prev:loc[0]], false)
		}
		fn(text[loc[0]:loc[1]], true)
		prev = loc[1]
	}
	if prev < len(text) {
		fn(text[prev:], false)
	}
}
