// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"context"
	"strings"
	"unicode/utf8"
)

// A PromptAnswerItem pairs a prompt, phrased as it appears on the page,
// with the answer to write near it. Answers may carry embedded line
// breaks or semicolon-separated clauses; the layout engine handles both.
type PromptAnswerItem struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// An AnswerSet holds one ordered item list per 0-based page index. It may
// be shorter than the document's page count; missing indices mean "no
// answers for that page".
type AnswerSet [][]PromptAnswerItem

// ForPage returns the items for page i, or nil when the page has none.
func (s AnswerSet) ForPage(i int) []PromptAnswerItem {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// QuestionAnswerSource produces per-page prompt/answer items for a
// document, given the extracted plain text of each page. Implementations
// are external collaborators (a language-model client, a static file) and
// are injected per invocation; the pipeline itself never constructs one.
type QuestionAnswerSource interface {
	Answers(ctx context.Context, pageTexts []string) (AnswerSet, error)
}

// SanitizeItems drops items that would write nothing useful onto the
// page: empty fields, answers that are mostly underscore placeholders
// copied back from the worksheet, and answers that merely echo their
// prompt. Fields are whitespace-trimmed in the returned items.
func SanitizeItems(items []PromptAnswerItem) []PromptAnswerItem {
	var cleaned []PromptAnswerItem
	for _, it := range items {
		prompt := strings.TrimSpace(it.Prompt)
		answer := strings.TrimSpace(it.Answer)
		if prompt == "" || answer == "" {
			continue
		}
		if answerIsBlankLike(answer) {
			continue
		}
		if trimEdges(answer) == trimEdges(prompt) {
			continue
		}
		cleaned = append(cleaned, PromptAnswerItem{Prompt: prompt, Answer: answer})
	}
	return cleaned
}

// answerIsBlankLike reports whether an answer is essentially a blank
// placeholder: once the underscores are removed, almost nothing is left.
func answerIsBlankLike(answer string) bool {
	if !strings.Contains(answer, "_") {
		return false
	}
	rest := strings.TrimSpace(strings.ReplaceAll(answer, "_", ""))
	required := utf8.RuneCountInString(answer) / 4
	if required < 3 {
		required = 3
	}
	return utf8.RuneCountInString(rest) < required
}

func trimEdges(s string) string {
	return strings.ToLower(strings.Trim(s, " .;:"))
}
