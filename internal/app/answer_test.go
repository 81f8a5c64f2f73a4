package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/ai"
)

type fakeCompleter struct {
	out      string
	err      error
	messages []ai.ChatMessage
	opts     ai.CompletionOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ai.ChatMessage, opts ai.CompletionOptions) (string, error) {
	f.messages, f.opts = messages, opts
	return f.out, f.err
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("When does the lease end?", "The lease ends in May.")

	assert.Equal(t, "You are a legal assistant AI. Use the context below to answer the question.\n\n"+
		"Context:\nThe lease ends in May.\n\n"+
		"Question: When does the lease end?\nAnswer:", got)
}

func TestExtractAnswer(t *testing.T) {
	assert.Equal(t, "In May.", ExtractAnswer("prompt... Answer: draft Answer:  In May. \n"))
	assert.Equal(t, "  no delimiter here ", ExtractAnswer("  no delimiter here "))
	assert.Equal(t, "", ExtractAnswer("Answer:"))
}

func TestGenerateSendsBoundedPrompt(t *testing.T) {
	model := &fakeCompleter{out: "...Question: q\nAnswer: It ends in May."}
	g := NewAnswerGenerator(model, 0, 0.7)

	answer, err := g.Generate(context.Background(), "q", "ctx", nil)

	require.NoError(t, err)
	assert.Equal(t, "It ends in May.", answer.Text)
	assert.Nil(t, answer.Pages)
	assert.Empty(t, answer.PagesNotice)
	require.Len(t, model.messages, 1)
	assert.Equal(t, BuildPrompt("q", "ctx"), model.messages[0].Content)
	assert.Equal(t, 512, model.opts.MaxTokens)
	assert.InDelta(t, 0.7, model.opts.Temperature, 1e-9)
}

func TestGenerateMatchesSourcePages(t *testing.T) {
	g := NewAnswerGenerator(&fakeCompleter{out: "Answer: yes"}, 256, 0)
	ctx := "Clause four governs termination of the agreement by either party.\n\nRent is due monthly."

	answer, err := g.Generate(context.Background(), "q", ctx, []Source{
		{Text: "Rent is due monthly.", Page: 3},
		{Text: "Clause four governs termination of the agreement by either party.", Page: 1},
		{Text: "Rent is due monthly.", Page: 3},
		{Text: "Unrelated text that is not in the context.", Page: 9},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, answer.Pages)
	assert.Empty(t, answer.PagesNotice)
}

func TestGenerateReportsNoMatchingPages(t *testing.T) {
	g := NewAnswerGenerator(&fakeCompleter{out: "Answer: no"}, 0, 0)

	answer, err := g.Generate(context.Background(), "q", "ctx", []Source{{Text: "elsewhere", Page: 2}})

	require.NoError(t, err)
	assert.Empty(t, answer.Pages)
	assert.Equal(t, "No matching pages found.", answer.PagesNotice)
}

func TestGeneratePropagatesModelError(t *testing.T) {
	g := NewAnswerGenerator(&fakeCompleter{err: errors.New("down")}, 0, 0)

	_, err := g.Generate(context.Background(), "q", "ctx", nil)
	assert.Error(t, err)
}

func TestMatchPagesUsesFiftyCharacterPrefix(t *testing.T) {
	long := "This sentence is long enough to exceed the fifty character prefix window."
	ctx := long[:50] + " but then the context diverges."

	assert.Equal(t, []int{4}, MatchPages(ctx, []Source{{Text: long, Page: 4}}))
}
