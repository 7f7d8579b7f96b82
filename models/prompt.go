package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	PromptKindQuestion = "question"
	PromptKindWord     = "word"
	PromptKindPhrase   = "phrase"
)

type Prompt struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	GameID     uint      `json:"game_id" gorm:"index;not null"`
	Kind       string    `json:"kind" gorm:"not null"`
	Payload    []byte    `json:"payload" gorm:"type:jsonb;not null"`
	Category   string    `json:"category"`
	Difficulty string    `json:"difficulty"`
	Approved   bool      `json:"approved" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PromptPayload is the closed set of prompt bodies. Each kind is validated
// once when parsed; downstream code can rely on the invariants below.
type PromptPayload interface {
	promptPayload()
}

// QuestionPayload always has at least two options and a correct index
// within range.
type QuestionPayload struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

type WordPayload struct {
	Term string `json:"term"`
}

type PhrasePayload struct {
	Text string `json:"text"`
}

func (QuestionPayload) promptPayload() {}
func (WordPayload) promptPayload()     {}
func (PhrasePayload) promptPayload()   {}

var ErrMalformedPrompt = errors.New("malformed prompt payload")

// ParsePayload decodes and validates the prompt's raw payload according to
// its kind.
func (p *Prompt) ParsePayload() (PromptPayload, error) {
	switch p.Kind {
	case PromptKindQuestion:
		var q QuestionPayload
		if err := json.Unmarshal(p.Payload, &q); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPrompt, err)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("%w: question needs at least two options", ErrMalformedPrompt)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("%w: correct index out of range", ErrMalformedPrompt)
		}
		return q, nil
	case PromptKindWord:
		var w WordPayload
		if err := json.Unmarshal(p.Payload, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPrompt, err)
		}
		if w.Term == "" {
			return nil, fmt.Errorf("%w: empty word term", ErrMalformedPrompt)
		}
		return w, nil
	case PromptKindPhrase:
		var ph PhrasePayload
		if err := json.Unmarshal(p.Payload, &ph); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPrompt, err)
		}
		if ph.Text == "" {
			return nil, fmt.Errorf("%w: empty phrase text", ErrMalformedPrompt)
		}
		return ph, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedPrompt, p.Kind)
	}
}

// PromptView is the outbound shape of a prompt. The answer key is
// intentionally absent; it is revealed only in the round-result event.
type PromptView struct {
	ID         uint     `json:"id"`
	Kind       string   `json:"kind"`
	Category   string   `json:"category,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Text       string   `json:"text,omitempty"`
	Options    []string `json:"options,omitempty"`
}

// PublicView builds the client-facing view from a validated payload.
func (p *Prompt) PublicView(payload PromptPayload) PromptView {
	view := PromptView{
		ID:         p.ID,
		Kind:       p.Kind,
		Category:   p.Category,
		Difficulty: p.Difficulty,
	}
	// Word and phrase bodies are themselves the hidden answer, so only
	// question text and options go out.
	if q, ok := payload.(QuestionPayload); ok {
		view.Text = q.Text
		view.Options = q.Options
	}
	return view
}
