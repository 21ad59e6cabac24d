// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cjwolf001/worksheet-filler/logger"
)

// A Word is one whitespace-delimited run of text on a page. Its bounding
// box is in top-left-origin coordinates: x grows right, y grows down, so
// Bottom > Top and a visually lower word has the larger Bottom.
type Word struct {
	Text   string
	X0     float64
	X1     float64
	Top    float64
	Bottom float64
}

// A Page holds the extracted geometry of one document page: dimensions in
// PDF points and the word list in reading order (top to bottom, left to
// right). Index is 0-based. A Page is immutable once built.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Words  []Word
}

// PlainText reconstructs the page text from the word list, one line per
// text row. This is what gets handed to a QuestionAnswerSource.
func (p Page) PlainText() string {
	if len(p.Words) == 0 {
		return ""
	}
	var b strings.Builder
	lastBottom := p.Words[0].Bottom
	for i, w := range p.Words {
		if i > 0 {
			if w.Bottom-lastBottom > rowTolerance {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
		lastBottom = w.Bottom
	}
	return b.String()
}

// PageTextIndex extracts per-page word geometry from an open document.
type PageTextIndex struct {
	r *pdf.Reader
}

func NewPageTextIndex(r *pdf.Reader) *PageTextIndex {
	return &PageTextIndex{r: r}
}

// PageCount returns the number of pages in the document.
func (ix *PageTextIndex) PageCount() int {
	return ix.r.NumPage()
}

// Index extracts one page. pageNumber is 1-based, matching the parser;
// the returned Page carries the 0-based index. A page with no extractable
// words yields an empty word list, not an error: a content-stream parse
// failure degrades the same way so that the caller's fallback placement
// still has a page to work with. Only a page whose dimensions cannot be
// determined is an error, since nothing can be drawn on it safely.
func (ix *PageTextIndex) Index(pageNumber int) (Page, error) {
	p := ix.r.Page(pageNumber)
	if p.V.IsNull() {
		return Page{}, fmt.Errorf("page %d: null page object", pageNumber)
	}

	width, height, err := pageMediaBox(p)
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", pageNumber, err)
	}

	page := Page{
		Index:  pageNumber - 1,
		Width:  width,
		Height: height,
	}
	page.Words = extractWords(p, height, pageNumber)
	logger.Debug(fmt.Sprintf("Page indexed: page=%d size=%.0fx%.0f words=%d",
		pageNumber, width, height, len(page.Words)), true)
	return page, nil
}

// pageMediaBox resolves the page's MediaBox, walking up the page tree for
// inherited boxes, and returns its width and height.
func pageMediaBox(p pdf.Page) (w, h float64, err error) {
	v := p.V
	for !v.IsNull() {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			x0 := mb.Index(0).Float64()
			y0 := mb.Index(1).Float64()
			x1 := mb.Index(2).Float64()
			y1 := mb.Index(3).Float64()
			w, h = x1-x0, y1-y0
			if w <= 0 || h <= 0 {
				return 0, 0, fmt.Errorf("degenerate MediaBox %.2fx%.2f", w, h)
			}
			return w, h, nil
		}
		v = v.Key("Parent")
	}
	return 0, 0, errors.New("no MediaBox in page tree")
}

// extractWords pulls the page's raw text runs and assembles them into
// words. The parser panics on some malformed content streams; that is
// recovered here and reported as an empty word list.
func extractWords(p pdf.Page, pageHeight float64, pageNumber int) (words []Word) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn(fmt.Sprintf("content stream parse failed, treating page as wordless: page=%d err=%v", pageNumber, r))
			words = nil
		}
	}()
	return wordsFromTexts(p.Content().Text, pageHeight)
}

// Row grouping tolerance in points. Baselines within this distance are
// treated as the same text row.
const rowTolerance = 3.0

// Horizontal gaps wider than this fraction of the font size split words,
// in addition to explicit space runs.
const wordGapFactor = 0.3

// wordsFromTexts assembles character-level text runs into words.
//
// The parser reports each run with its baseline origin in bottom-left
// coordinates. Runs are grouped into rows by baseline, ordered left to
// right, then merged: an explicit whitespace run or a horizontal gap
// wider than wordGapFactor of the font size closes the current word.
// Returned boxes are converted to top-left origin.
func wordsFromTexts(texts []pdf.Text, pageHeight float64) []Word {
	if len(texts) == 0 {
		return nil
	}

	// Rows top-first: larger Y means higher on the page.
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]pdf.Text
	rowY := sorted[0].Y
	row := []pdf.Text{sorted[0]}
	for _, t := range sorted[1:] {
		if rowY-t.Y > rowTolerance {
			rows = append(rows, row)
			row = nil
			rowY = t.Y
		}
		row = append(row, t)
	}
	rows = append(rows, row)

	var words []Word
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		words = append(words, mergeRow(row, pageHeight)...)
	}
	return words
}

// mergeRow merges one row of x-ordered text runs into words.
func mergeRow(row []pdf.Text, pageHeight float64) []Word {
	var words []Word
	var cur []pdf.Text

	flush := func() {
		if w, ok := buildWord(cur, pageHeight); ok {
			words = append(words, w)
		}
		cur = nil
	}

	for _, t := range row {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			gap := t.X - (prev.X + prev.W)
			if gap > wordGapFactor*gapFontSize(prev, t) {
				flush()
			}
		}
		cur = append(cur, t)
	}
	flush()
	return words
}

func gapFontSize(a, b pdf.Text) float64 {
	fs := a.FontSize
	if b.FontSize > fs {
		fs = b.FontSize
	}
	if fs <= 0 {
		fs = 10
	}
	return fs
}

// buildWord collapses a run of merged text pieces into a single Word in
// top-left coordinates.
func buildWord(run []pdf.Text, pageHeight float64) (Word, bool) {
	if len(run) == 0 {
		return Word{}, false
	}
	var b strings.Builder
	x0 := run[0].X
	x1 := run[0].X + run[0].W
	baseline := run[0].Y
	fontSize := run[0].FontSize
	for _, t := range run {
		b.WriteString(t.S)
		if t.X < x0 {
			x0 = t.X
		}
		if t.X+t.W > x1 {
			x1 = t.X + t.W
		}
		if t.Y < baseline {
			baseline = t.Y
		}
		if t.FontSize > fontSize {
			fontSize = t.FontSize
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Word{}, false
	}
	if fontSize <= 0 {
		fontSize = 10
	}
	bottom := pageHeight - baseline
	return Word{
		Text:   text,
		X0:     x0,
		X1:     x1,
		Top:    bottom - fontSize,
		Bottom: bottom,
	}, true
}
