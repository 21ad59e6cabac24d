// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"fmt"
	"strings"

	"github.com/cjwolf001/worksheet-filler/logger"
)

// An Anchor is a resolved draw origin in bottom-left coordinates: X from
// the left page edge, Y from the page bottom. It marks the left edge and
// lowest baseline of the matched prompt text.
type Anchor struct {
	X float64
	Y float64
}

// AnchorResolver locates a prompt's text within a page's word sequence.
// A failed resolution is a normal outcome (the prompt may simply not be
// extractable from the page), reported via the bool return, never an error.
type AnchorResolver struct {
	snippetLen    int
	minScoreFloor int
}

func NewAnchorResolver(cfg *Config) *AnchorResolver {
	return &AnchorResolver{
		snippetLen:    cfg.SnippetLen,
		minScoreFloor: cfg.MinScoreFloor,
	}
}

// Resolve finds the contiguous run of page words best matching the
// prompt's leading tokens and derives the anchor point from that run.
//
// The prompt is tokenized on whitespace and truncated to the snippet
// length k. A window of k words slides across the page in reading order;
// its score is the number of position-aligned normalized token matches.
// The earliest window with the maximum score wins, and is accepted only
// when the score reaches max(floor, k-1), which tolerates one mismatch
// from extraction noise on longer prompts.
func (r *AnchorResolver) Resolve(page Page, prompt string) (Anchor, bool) {
	tokens := strings.Fields(prompt)
	if len(tokens) == 0 {
		return Anchor{}, false
	}

	k := r.snippetLen
	if len(tokens) < k {
		k = len(tokens)
	}
	snippet := make([]string, k)
	for i := 0; i < k; i++ {
		snippet[i] = normalizeToken(tokens[i])
	}

	pageTokens := make([]string, len(page.Words))
	for i, w := range page.Words {
		pageTokens[i] = normalizeToken(w.Text)
	}

	start, score := bestWindow(pageTokens, snippet)
	minRequired := r.minScoreFloor
	if k-1 > minRequired {
		minRequired = k - 1
	}
	if start < 0 || score < minRequired {
		logger.Debug(fmt.Sprintf("Anchor miss: page=%d score=%d required=%d prompt=%q",
			page.Index, score, minRequired, prompt), true)
		return Anchor{}, false
	}

	window := page.Words[start : start+k]
	x := window[0].X0
	maxBottom := window[0].Bottom
	for _, w := range window[1:] {
		if w.X0 < x {
			x = w.X0
		}
		if w.Bottom > maxBottom {
			maxBottom = w.Bottom
		}
	}

	a := Anchor{X: x, Y: page.Height - maxBottom}
	logger.Debug(fmt.Sprintf("Anchor resolved: page=%d start=%d score=%d x=%.1f y=%.1f",
		page.Index, start, score, a.X, a.Y), true)
	return a, true
}

// bestWindow returns the start index and score of the earliest window
// attaining the maximum position-aligned match count, or (-1, 0) when the
// page has fewer words than the snippet length.
func bestWindow(pageTokens, snippet []string) (int, int) {
	k := len(snippet)
	best, bestScore := -1, 0
	for i := 0; i+k <= len(pageTokens); i++ {
		score := 0
		for j := 0; j < k; j++ {
			if pageTokens[i+j] == snippet[j] {
				score++
			}
		}
		// Strict greater keeps the first window on ties, so repeated
		// prompts resolve to their earliest occurrence.
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// normalizeToken strips the punctuation that commonly trails prompt text
// and lowercases, so "date:" matches "date".
func normalizeToken(s string) string {
	return strings.ToLower(strings.Trim(s, ".,?!:;"))
}
