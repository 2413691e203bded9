// Package summarize is the summarization boundary. The default Summarizer is
// a placeholder for an LLM backend: it truncates the text and emits a fixed
// study-notes skeleton.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	previewLength   = 300
	truncatedSuffix = "\n\n[Summary truncated for demo.]"
)

// Result is the output of one summarization call. Notes is a JSON document.
type Result struct {
	Summary string
	Notes   string
}

// Summarizer produces a summary and study notes for text following instruction.
type Summarizer interface {
	Summarize(ctx context.Context, text, instruction, docType string) (Result, error)
}

type placeholder struct{}

// NewPlaceholder returns the built-in Summarizer.
func NewPlaceholder() Summarizer {
	return placeholder{}
}

type qa struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type mindMap struct {
	Root     string   `json:"root"`
	Branches []string `json:"branches"`
}

type notes struct {
	DocType             string  `json:"doc_type"`
	QuestionsAndAnswers []qa    `json:"questions_and_answers"`
	MindMap             mindMap `json:"mind_map"`
}

func (placeholder) Summarize(ctx context.Context, text, _ string, docType string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	summary := text
	if r := []rune(text); len(r) > previewLength {
		summary = string(r[:previewLength])
	}
	summary += truncatedSuffix

	b, err := json.Marshal(notes{
		DocType: docType,
		QuestionsAndAnswers: []qa{
			{Question: "What is this document about?", Answer: "Demo placeholder."},
		},
		MindMap: mindMap{Root: "Document", Branches: []string{}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode notes: %w", err)
	}
	return Result{Summary: summary, Notes: string(b)}, nil
}
