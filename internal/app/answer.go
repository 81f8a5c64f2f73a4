package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"legalrag/internal/ai"
)

const (
	answerDelimiter    = "Answer:"
	sourcePrefixLength = 50
	noPagesNotice      = "No matching pages found."
)

// Completer runs a single prompt against a generation model.
type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage, opts ai.CompletionOptions) (string, error)
}

// Source is a retrieved chunk offered for page attribution.
type Source struct {
	Text string
	Page int
}

type Answer struct {
	Text        string `json:"text"`
	Pages       []int  `json:"pages,omitempty"`
	PagesNotice string `json:"notice,omitempty"`
}

type AnswerGenerator struct {
	model Completer
	opts  ai.CompletionOptions
}

func NewAnswerGenerator(m Completer, maxTokens int, temperature float64) *AnswerGenerator {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnswerGenerator{
		model: m,
		opts:  ai.CompletionOptions{MaxTokens: maxTokens, Temperature: temperature},
	}
}

func BuildPrompt(question, context string) string {
	return fmt.Sprintf(
		"You are a legal assistant AI. Use the context below to answer the question.\n\nContext:\n%s\n\nQuestion: %s\n%s",
		context, question, answerDelimiter,
	)
}

// Generate asks the model and extracts the answer. With sources given, it also reports
// the pages whose chunk text appears in the context.
func (g *AnswerGenerator) Generate(ctx context.Context, question, context string, sources []Source) (Answer, error) {
	prompt := BuildPrompt(question, context)
	out, err := g.model.Complete(ctx, []ai.ChatMessage{{Role: "user", Content: prompt}}, g.opts)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{Text: ExtractAnswer(out)}
	if sources != nil {
		answer.Pages = MatchPages(context, sources)
		if len(answer.Pages) == 0 {
			answer.PagesNotice = noPagesNotice
		}
	}
	return answer, nil
}

// ExtractAnswer returns the trimmed text after the last "Answer:" delimiter, or the output
// unchanged when there is no delimiter.
func ExtractAnswer(output string) string {
	idx := strings.LastIndex(output, answerDelimiter)
	if idx < 0 {
		return output
	}
	return strings.TrimSpace(output[idx+len(answerDelimiter):])
}

// MatchPages returns the sorted distinct pages of sources whose first 50 characters occur
// in context.
func MatchPages(context string, sources []Source) []int {
	seen := map[int]struct{}{}
	pages := []int{}
	for _, s := range sources {
		prefix := firstRunes(s.Text, sourcePrefixLength)
		if strings.TrimSpace(prefix) == "" || !strings.Contains(context, prefix) {
			continue
		}
		if _, ok := seen[s.Page]; ok {
			continue
		}
		seen[s.Page] = struct{}{}
		pages = append(pages, s.Page)
	}
	sort.Ints(pages)
	return pages
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
