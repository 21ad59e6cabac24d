// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"strings"
)

// A DrawInstruction is one positioned line of overlay text. X and Y are in
// bottom-left-origin page coordinates, Y being the text baseline.
type DrawInstruction struct {
	X    float64
	Y    float64
	Text string
}

// A FallbackCursor is the vertical stacking position for answers whose
// prompt was not found on the page. It is an explicit value threaded
// through one page's planning, reset for every page, so that per-page
// work stays independent and parallelizable.
type FallbackCursor struct {
	Y float64
}

// PlacementStrategy decides what happens to an answer whose prompt could
// not be located on its page.
type PlacementStrategy interface {
	PlaceUnresolved(eng *LayoutEngine, answer string, cur FallbackCursor) ([]DrawInstruction, FallbackCursor, int)
}

// FallbackPlacement stacks unresolved answers in a fixed column above the
// page bottom, stepping the cursor down per answer so consecutive ones
// never overlap. This preserves every answer on the page.
type FallbackPlacement struct{}

func (FallbackPlacement) PlaceUnresolved(eng *LayoutEngine, answer string, cur FallbackCursor) ([]DrawInstruction, FallbackCursor, int) {
	instrs, dropped := eng.emit(eng.fallbackX, cur.Y, answer, eng.wrapFallback)
	return instrs, FallbackCursor{Y: cur.Y - eng.fallbackStep}, dropped
}

// SkipPlacement drops unresolved answers instead of guessing a position.
type SkipPlacement struct{}

func (SkipPlacement) PlaceUnresolved(eng *LayoutEngine, answer string, cur FallbackCursor) ([]DrawInstruction, FallbackCursor, int) {
	return nil, cur, 0
}

// LayoutEngine turns an answer string into positioned, wrapped lines.
type LayoutEngine struct {
	anchorOffset   float64
	lineHeight     float64
	bottomMargin   float64
	wrapAnchored   int
	wrapFallback   int
	fallbackX      float64
	fallbackStartY float64
	fallbackStep   float64
}

func NewLayoutEngine(cfg *Config) *LayoutEngine {
	return &LayoutEngine{
		anchorOffset:   cfg.AnchorOffset,
		lineHeight:     cfg.LineHeight,
		bottomMargin:   cfg.BottomMargin,
		wrapAnchored:   cfg.WrapAnchored,
		wrapFallback:   cfg.WrapFallback,
		fallbackX:      cfg.FallbackX,
		fallbackStartY: cfg.FallbackStartY,
		fallbackStep:   cfg.FallbackStep,
	}
}

// NewCursor returns the fallback cursor for the start of a page.
func (e *LayoutEngine) NewCursor() FallbackCursor {
	return FallbackCursor{Y: e.fallbackStartY}
}

// PlaceAnchored lays an answer out below its resolved prompt, left-aligned
// with it. The second return value is the number of lines dropped at the
// bottom margin.
func (e *LayoutEngine) PlaceAnchored(a Anchor, answer string) ([]DrawInstruction, int) {
	return e.emit(a.X, a.Y-e.anchorOffset, answer, e.wrapAnchored)
}

// emit wraps the answer and walks the cursor downward, one line height
// before each line. Lines that would land below the bottom margin are
// silently dropped; overflow is never an error.
func (e *LayoutEngine) emit(x, startY float64, answer string, width int) ([]DrawInstruction, int) {
	if strings.TrimSpace(answer) == "" {
		return nil, 0
	}
	lines := wrapAnswer(answer, width)
	var instrs []DrawInstruction
	y := startY
	for i, line := range lines {
		y -= e.lineHeight
		if y < e.bottomMargin {
			return instrs, len(lines) - i
		}
		instrs = append(instrs, DrawInstruction{X: x, Y: y, Text: line})
	}
	return instrs, 0
}

// wrapAnswer splits an answer on embedded line breaks first, then
// word-wraps each segment to the given width. A blank segment still
// yields one empty line so deliberate paragraph gaps keep their slot.
func wrapAnswer(answer string, width int) []string {
	var lines []string
	for _, segment := range strings.Split(answer, "\n") {
		wrapped := wrapLine(segment, width)
		if len(wrapped) == 0 {
			wrapped = []string{""}
		}
		lines = append(lines, wrapped...)
	}
	return lines
}

// wrapLine greedily wraps one segment at word boundaries, hard-breaking
// words longer than the width. Width counts runes. A blank or
// whitespace-only segment yields no lines.
func wrapLine(s string, width int) []string {
	var lines []string
	cur := ""
	curLen := 0
	for _, word := range strings.Fields(s) {
		r := []rune(word)
		for len(r) > 0 {
			switch {
			case curLen == 0 && len(r) <= width:
				cur, curLen = string(r), len(r)
				r = nil
			case curLen == 0:
				lines = append(lines, string(r[:width]))
				r = r[width:]
			case curLen+1+len(r) <= width:
				cur += " " + string(r)
				curLen += 1 + len(r)
				r = nil
			default:
				lines = append(lines, cur)
				cur, curLen = "", 0
			}
		}
	}
	if curLen > 0 {
		lines = append(lines, cur)
	}
	return lines
}
