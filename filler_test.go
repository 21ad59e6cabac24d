// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjwolf001/worksheet-filler/logger"
	"github.com/cjwolf001/worksheet-filler/tracer"
)

// writeWorksheetPDF writes a Letter-sized fixture, one page per entry,
// one text line per string.
func writeWorksheetPDF(t *testing.T, path string, pages ...[]string) {
	t.Helper()
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetFont("Helvetica", "", 11)
	for _, lines := range pages {
		doc.AddPage()
		y := 72.0
		for _, line := range lines {
			doc.Text(72, y, line)
			y += 24
		}
	}
	require.NoError(t, doc.OutputFileAndClose(path))
}

func pageCountOf(t *testing.T, path string) int {
	t.Helper()
	doc, err := OpenDocument(path)
	require.NoError(t, err)
	defer doc.Close()
	return doc.PageCount()
}

// stubSource hands back a fixed answer set and records the page texts it
// was asked about.
type stubSource struct {
	set      AnswerSet
	err      error
	gotTexts []string
}

func (s *stubSource) Answers(ctx context.Context, pageTexts []string) (AnswerSet, error) {
	s.gotTexts = pageTexts
	return s.set, s.err
}

func TestNewFiller_PanicsOnInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxWorkersPerDoc = 0

	assert.Panics(t, func() { NewFiller(cfg) })
}

func TestFiller_Fill_EmptyAnswersCopiesInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src,
		[]string{"Algebra Worksheet"},
		[]string{"Page two"},
	)

	f := NewFiller(NewDefaultConfig())
	res, err := f.Fill(context.Background(), src, dst, AnswerSet{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, 0, res.StampedPages)
	assert.Equal(t, 0, res.PassedThrough)
	assert.Equal(t, 2, pageCountOf(t, dst))

	srcBytes, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(srcBytes, dstBytes), "no answers must mean an untouched copy")
}

func TestFiller_Fill_AnchorsAnswerNextToPrompt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src,
		[]string{"Algebra Worksheet", "What is the capital of France?"},
	)

	answers := AnswerSet{
		{{Prompt: "What is the capital of France?", Answer: "Paris"}},
	}

	f := NewFiller(NewDefaultConfig())
	res, err := f.Fill(context.Background(), src, dst, answers)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 0, res.Fallback)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.StampedPages)
	assert.Equal(t, 0, res.PassedThrough)
	assert.Equal(t, 1, pageCountOf(t, dst))
}

func TestFiller_Fill_UnresolvedGoesToFallbackColumn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	answers := AnswerSet{
		{{Prompt: "Name the largest planet in the solar system", Answer: "Jupiter"}},
	}

	f := NewFiller(NewDefaultConfig())
	res, err := f.Fill(context.Background(), src, dst, answers)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, 1, res.Fallback)
	assert.Equal(t, 1, res.StampedPages)
	assert.Equal(t, 1, pageCountOf(t, dst))
}

func TestFiller_Fill_SkipPlacementLeavesPageAlone(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	answers := AnswerSet{
		{{Prompt: "Name the largest planet in the solar system", Answer: "Jupiter"}},
	}

	cfg := NewDefaultConfig()
	cfg.PlacementMode = SkipUnresolved
	f := NewFiller(cfg)

	res, err := f.Fill(context.Background(), src, dst, answers)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Fallback)
	assert.Equal(t, 0, res.StampedPages)

	srcBytes, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(srcBytes, dstBytes))
}

func TestFiller_Fill_DeterministicAcrossWorkerCounts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	writeWorksheetPDF(t, src,
		[]string{"What is the capital of France?"},
		[]string{"Name the process plants use to make food."},
		[]string{"Closing notes"},
	)

	answers := AnswerSet{
		{{Prompt: "What is the capital of France?", Answer: "Paris"}},
		{{Prompt: "Name the process plants use to make food.", Answer: "Photosynthesis"}},
		{{Prompt: "Something not on the page at all", Answer: "Fallback answer"}},
	}

	var results []*FillResult
	for i, workers := range []int{1, 4} {
		cfg := NewDefaultConfig()
		cfg.MaxWorkersPerDoc = workers
		f := NewFiller(cfg)

		dst := filepath.Join(dir, "out"+string(rune('a'+i))+".pdf")
		res, err := f.Fill(context.Background(), src, dst, answers)
		require.NoError(t, err)
		assert.Equal(t, 3, pageCountOf(t, dst))
		results = append(results, res)
	}

	assert.Equal(t, results[0], results[1], "worker count must not change the outcome")
}

func TestFiller_Fill_MissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	f := NewFiller(NewDefaultConfig())

	_, err := f.Fill(context.Background(), filepath.Join(dir, "nope.pdf"), filepath.Join(dir, "out.pdf"), nil)
	assert.Error(t, err)
}

func TestFiller_Fill_RefusesEncryptedDocument(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "locked.pdf")
	dst := filepath.Join(dir, "out.pdf")

	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetProtection(fpdf.CnProtectPrint, "", "owner-secret")
	doc.SetFont("Helvetica", "", 11)
	doc.AddPage()
	doc.Text(72, 72, "Locked worksheet")
	require.NoError(t, doc.OutputFileAndClose(src))

	f := NewFiller(NewDefaultConfig())
	_, err := f.Fill(context.Background(), src, dst, nil)
	assert.Error(t, err)
}

func TestFiller_Fill_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFiller(NewDefaultConfig())
	_, err := f.Fill(ctx, src, filepath.Join(dir, "out.pdf"), nil)
	assert.Error(t, err)
}

func TestFiller_FillWithSource_SanitizesItems(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src,
		[]string{"Algebra Worksheet", "What is the capital of France?"},
	)

	source := &stubSource{set: AnswerSet{{
		{Prompt: "What is the capital of France?", Answer: "Paris"},
		{Prompt: "Fill in the blank", Answer: "________"},
		{Prompt: "Define gravity.", Answer: "define gravity"},
		{Prompt: "Q4", Answer: ""},
	}}}

	f := NewFiller(NewDefaultConfig())
	res, err := f.FillWithSource(context.Background(), src, dst, source)
	require.NoError(t, err)

	require.Len(t, source.gotTexts, 1)
	assert.Contains(t, source.gotTexts[0], "capital")

	// Only the real answer survives sanitation.
	assert.Equal(t, 1, res.Resolved+res.Fallback+res.Skipped)
	assert.Equal(t, 1, res.Resolved)
}

func TestFiller_FillWithSource_SourceError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	source := &stubSource{err: assert.AnError}
	f := NewFiller(NewDefaultConfig())

	_, err := f.FillWithSource(context.Background(), src, filepath.Join(dir, "out.pdf"), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching answers")
}

func TestFiller_Fill_AnswerSetShorterThanDocument(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src,
		[]string{"What is the capital of France?"},
		[]string{"Page two has no answers"},
	)

	answers := AnswerSet{
		{{Prompt: "What is the capital of France?", Answer: "Paris"}},
	}

	f := NewFiller(NewDefaultConfig())
	res, err := f.Fill(context.Background(), src, dst, answers)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.StampedPages)
	assert.Equal(t, 2, pageCountOf(t, dst))

	// The page beyond the answer set keeps its text untouched.
	srcDoc, err := OpenDocument(src)
	require.NoError(t, err)
	defer srcDoc.Close()
	dstDoc, err := OpenDocument(dst)
	require.NoError(t, err)
	defer dstDoc.Close()

	srcPage, err := NewPageTextIndex(srcDoc.Reader()).Index(2)
	require.NoError(t, err)
	dstPage, err := NewPageTextIndex(dstDoc.Reader()).Index(2)
	require.NoError(t, err)
	assert.Equal(t, srcPage.PlainText(), dstPage.PlainText())
}

func TestFiller_Fill_DrainsTraceBuffer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	writeWorksheetPDF(t, src,
		[]string{"Algebra Worksheet", "What is the capital of France?"},
	)

	answers := AnswerSet{
		{{Prompt: "What is the capital of France?", Answer: "Paris"}},
	}

	f := NewFiller(NewDefaultConfig())
	for i := 0; i < 3; i++ {
		dst := filepath.Join(dir, fmt.Sprintf("out%d.pdf", i))
		_, err := f.Fill(context.Background(), src, dst, answers)
		require.NoError(t, err)
		assert.Equal(t, 0, tracer.Len(), "trace must not accumulate across fills")
	}
}

func TestFiller_Fill_ReportsCompletionAtInfo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	var mu sync.Mutex
	var infoMsgs []string
	cfg := NewDefaultConfig()
	cfg.Logger = func(level logger.LogLevel, msg string, keyvals ...interface{}) {
		if level != logger.InfoLevel {
			return
		}
		mu.Lock()
		infoMsgs = append(infoMsgs, msg)
		mu.Unlock()
	}
	defer logger.SetLogger(func(level logger.LogLevel, msg string, keyvals ...interface{}) {})

	f := NewFiller(cfg)
	_, err := f.Fill(context.Background(), src, dst, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, strings.Join(infoMsgs, "\n"), "Fill completed")
}

func TestFiller_Inspect(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	writeWorksheetPDF(t, src, []string{"Algebra Worksheet"})

	f := NewFiller(NewDefaultConfig())
	var buf bytes.Buffer
	require.NoError(t, f.Inspect(context.Background(), src, &buf))

	var info DocumentInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, 1, info.Pages)
}
