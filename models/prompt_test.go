package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadQuestion(t *testing.T) {
	p := &Prompt{Kind: PromptKindQuestion, Payload: []byte(`{"text":"Sky color?","options":["red","blue"],"correct_index":1}`)}
	payload, err := p.ParsePayload()
	require.NoError(t, err)
	q, ok := payload.(QuestionPayload)
	require.True(t, ok)
	assert.Equal(t, "Sky color?", q.Text)
	assert.Equal(t, 1, q.CorrectIndex)
}

func TestParsePayloadRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		kind string
		raw  string
	}{
		{"not json", PromptKindQuestion, `{`},
		{"single option", PromptKindQuestion, `{"text":"?","options":["a"],"correct_index":0}`},
		{"index out of range", PromptKindQuestion, `{"text":"?","options":["a","b"],"correct_index":2}`},
		{"negative index", PromptKindQuestion, `{"text":"?","options":["a","b"],"correct_index":-1}`},
		{"empty term", PromptKindWord, `{"term":""}`},
		{"empty phrase", PromptKindPhrase, `{"text":""}`},
		{"unknown kind", "riddle", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Prompt{Kind: tc.kind, Payload: []byte(tc.raw)}
			_, err := p.ParsePayload()
			assert.ErrorIs(t, err, ErrMalformedPrompt)
		})
	}
}

func TestPublicViewWithholdsAnswers(t *testing.T) {
	question := &Prompt{ID: 1, Kind: PromptKindQuestion}
	qView := question.PublicView(QuestionPayload{Text: "Sky color?", Options: []string{"red", "blue"}, CorrectIndex: 1})
	assert.Equal(t, "Sky color?", qView.Text)
	assert.Equal(t, []string{"red", "blue"}, qView.Options)

	word := &Prompt{ID: 2, Kind: PromptKindWord, Category: "fruit"}
	wView := word.PublicView(WordPayload{Term: "banana"})
	assert.Empty(t, wView.Text, "the term is the answer and must stay hidden")
	assert.Empty(t, wView.Options)
	assert.Equal(t, "fruit", wView.Category)

	phrase := &Prompt{ID: 3, Kind: PromptKindPhrase}
	pView := phrase.PublicView(PhrasePayload{Text: "break a leg"})
	assert.Empty(t, pView.Text)
}
