// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cjwolf001/worksheet-filler/logger"
	"github.com/cjwolf001/worksheet-filler/tracer"
)

// Filler defines the contract for writing answers onto worksheet documents.
type Filler interface {
	Fill(ctx context.Context, src, dst string, answers AnswerSet) (*FillResult, error)
	FillWithSource(ctx context.Context, src, dst string, source QuestionAnswerSource) (*FillResult, error)
}

// FillResult reports what happened to every answer across the document.
// An answer is resolved when it was anchored to its prompt, fallback when
// it landed in the stacked column, and skipped when it produced no line at
// all. PassedThrough counts pages left untouched after a planning or
// render problem; those never abort the fill.
type FillResult struct {
	Pages          int `json:"pages"`
	Resolved       int `json:"resolved"`
	Fallback       int `json:"fallback"`
	Skipped        int `json:"skipped"`
	TruncatedLines int `json:"truncatedLines"`
	StampedPages   int `json:"stampedPages"`
	PassedThrough  int `json:"passedThrough"`
}

// filler manages worksheet filling with concurrency control and delegates
// unresolved answers to the chosen PlacementStrategy.
type filler struct {
	cfg        *Config
	sem        *semaphore.Weighted
	placement  PlacementStrategy
	resolver   *AnchorResolver
	layout     *LayoutEngine
	compositor *OverlayCompositor
}

// NewFiller validates the config and creates a new filler.
// Selects the correct PlacementStrategy (FallbackStack or SkipUnresolved).
func NewFiller(cfg *Config) *filler {
	//Select PlacementStrategy
	var placement PlacementStrategy
	switch cfg.PlacementMode {
	case FallbackStack:
		placement = FallbackPlacement{}
	case SkipUnresolved:
		placement = SkipPlacement{}
	}

	//Validate the config object
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	//Set the logger function
	if cfg.Logger != nil {
		logger.SetLogger(cfg.Logger)
	}

	logger.Debug(fmt.Sprintf("Filler initialized: placement_mode=%v, max_concurrent_fills=%d, max_workers_per_doc=%d",
		cfg.PlacementMode, cfg.MaxConcurrentFills, cfg.MaxWorkersPerDoc), true)

	return &filler{
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentFills)),
		placement:  placement,
		resolver:   NewAnchorResolver(cfg),
		layout:     NewLayoutEngine(cfg),
		compositor: NewOverlayCompositor(cfg),
	}
}

// Fill writes the answers onto a copy of the document at src and saves it
// to dst. The output starts as a byte copy of the input, so it always has
// the input's page count and geometry; pages then get their overlays
// stamped in page order. A page whose planning or stamp fails is left as
// it was. The only fatal conditions are a source document that cannot be
// opened and a destination that cannot be written.
func (f *filler) Fill(ctx context.Context, src, dst string, answers AnswerSet) (*FillResult, error) {
	defer f.drainTrace()
	logger.Debug(fmt.Sprintf("Starting fill: src=%s dst=%s", src, dst), true)

	if err := f.acquireSlot(ctx); err != nil {
		logger.Debug(fmt.Sprintf("Failed to acquire slot: err=%v", err), true)
		return nil, err
	}
	defer f.sem.Release(1)
	logger.Debug(fmt.Sprintf("Slot acquired for fill: src=%s", src), true)

	doc, err := OpenDocument(src)
	if err != nil {
		logger.Debug(fmt.Sprintf("Failed to open document: src=%s err=%v", src, err), true)
		return nil, err
	}
	defer doc.Close()
	if err := doc.Preflight(); err != nil {
		return nil, err
	}

	total := doc.PageCount()
	logger.Debug(fmt.Sprintf("Total pages detected: src=%s pages=%d", src, total), true)

	if err := copyFile(src, dst); err != nil {
		return nil, err
	}

	ix := NewPageTextIndex(doc.Reader())
	numWorkers := f.adjustWorkerCount(f.cfg.MaxWorkersPerDoc)
	logger.Debug(fmt.Sprintf("Starting workers: count=%d", numWorkers), true)

	jobs, results := make(chan int, total), make(chan pagePlan, total)

	var wg sync.WaitGroup
	f.startWorkers(ctx, ix, answers, jobs, results, numWorkers, &wg)
	f.feedJobs(ctx, total, jobs)
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	res, overlays := f.collectInOrder(results)
	res.Pages = total
	res.StampedPages = f.compositor.StampAll(dst, overlays)
	res.PassedThrough += len(overlays) - res.StampedPages

	logger.Info(fmt.Sprintf("Fill completed: dst=%s pages=%d resolved=%d fallback=%d skipped=%d truncated=%d stamped=%d",
		dst, res.Pages, res.Resolved, res.Fallback, res.Skipped, res.TruncatedLines, res.StampedPages))
	return res, nil
}

// drainTrace empties the accumulated page trace on the way out of an
// entry point, printing it first when tracing is on. One filler serves
// many documents in a long-running process; an undrained trace grows
// without bound.
func (f *filler) drainTrace() {
	if f.cfg.DebugOn {
		tracer.Flush()
		return
	}
	tracer.Reset()
}

// FillWithSource extracts the document's page texts, asks source for the
// prompt/answer items, and fills. The source call is the only blocking
// network operation in a fill; it completes before any page planning
// starts. Items coming back from the source are sanitized first.
func (f *filler) FillWithSource(ctx context.Context, src, dst string, source QuestionAnswerSource) (*FillResult, error) {
	defer f.drainTrace()
	doc, err := OpenDocument(src)
	if err != nil {
		return nil, err
	}
	texts := extractPageTexts(doc)
	doc.Close()

	answers, err := source.Answers(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("fetching answers: %w", err)
	}
	for i := range answers {
		answers[i] = SanitizeItems(answers[i])
	}
	return f.Fill(ctx, src, dst, answers)
}

// Inspect writes the document's inspection report as JSON to w.
func (f *filler) Inspect(ctx context.Context, path string, w io.Writer) error {
	defer f.drainTrace()
	logger.Debug(fmt.Sprintf("Inspecting document: path=%s", path), true)

	doc, err := OpenDocument(path)
	if err != nil {
		logger.Error("failed to open document for inspection")
		return err
	}
	defer doc.Close()

	if err := doc.InspectJSON(w); err != nil {
		logger.Error("failed to inspect document")
		return err
	}
	return nil
}

// pagePlan is one page's planned overlay, produced by a worker. A plan
// with err set means the page passes through unmodified.
type pagePlan struct {
	index     int // 1-based page number
	overlay   []byte
	resolved  int
	fallback  int
	skipped   int
	truncated int
	err       error
}

// planPage indexes one page, resolves and lays out its answers, and
// renders the overlay. Every path out of here leaves the document's pages
// intact; the worst outcome is a plan with no overlay.
func (f *filler) planPage(ix *PageTextIndex, answers AnswerSet, pageNum int) pagePlan {
	plan := pagePlan{index: pageNum}

	page, err := ix.Index(pageNum)
	if err != nil {
		logger.Warn(fmt.Sprintf("page %d passes through unmodified: %v", pageNum, err))
		plan.err = err
		return plan
	}

	items := answers.ForPage(page.Index)
	if len(items) == 0 {
		return plan
	}

	var instructions []DrawInstruction
	cur := f.layout.NewCursor()
	for _, item := range items {
		anchor, found := f.resolver.Resolve(page, item.Prompt)
		var placed []DrawInstruction
		var dropped int
		if found {
			placed, dropped = f.layout.PlaceAnchored(anchor, item.Answer)
		} else {
			placed, cur, dropped = f.placement.PlaceUnresolved(f.layout, item.Answer, cur)
		}
		switch {
		case len(placed) == 0 && dropped == 0:
			plan.skipped++
		case found:
			plan.resolved++
		default:
			plan.fallback++
		}
		plan.truncated += dropped
		instructions = append(instructions, placed...)
	}
	if len(instructions) == 0 {
		return plan
	}

	overlay, drawn, err := f.compositor.RenderOverlay(page.Width, page.Height, instructions)
	if err != nil {
		logger.Warn(fmt.Sprintf("page %d passes through unmodified: %v", pageNum, err))
		plan.err = err
		return plan
	}
	if drawn > 0 {
		plan.overlay = overlay
	}
	return plan
}

// planPageWithTimeout runs planPage in its own goroutine so one page that
// wedges the content parser cannot stall the whole fill. On timeout the
// page passes through.
func (f *filler) planPageWithTimeout(ctx context.Context, ix *PageTextIndex, answers AnswerSet, pageNum int) pagePlan {
	ctxPage, cancel := context.WithTimeout(ctx, f.cfg.WorkerTimeout)
	defer cancel()

	done := make(chan pagePlan, 1)
	go func() { done <- f.planPage(ix, answers, pageNum) }()

	select {
	case plan := <-done:
		return plan
	case <-ctxPage.Done():
		logger.Warn(fmt.Sprintf("page %d passes through unmodified: %v", pageNum, ctxPage.Err()))
		return pagePlan{index: pageNum, err: ctxPage.Err()}
	}
}

func (f *filler) startWorkers(ctx context.Context, ix *PageTextIndex, answers AnswerSet, jobs <-chan int, results chan<- pagePlan, numWorkers int, wg *sync.WaitGroup) {
	logger.Debug(fmt.Sprintf("Spawning workers: num_workers=%d", numWorkers), true)
	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Debug(fmt.Sprintf("Worker started: id=%d", id), true)
			for i := range jobs {
				plan := f.planPageWithTimeout(ctx, ix, answers, i)
				results <- plan
				if plan.err != nil {
					logger.Debug(fmt.Sprintf("Worker: page plan error: worker_id=%d page=%d err=%v", id, i, plan.err), true)
				} else {
					logger.Debug(fmt.Sprintf("Worker: page planned successfully: worker_id=%d page=%d", id, i), true)
				}
			}
			logger.Debug(fmt.Sprintf("Worker finished: id=%d", id), true)
		}(w)
	}
}

func (f *filler) feedJobs(ctx context.Context, total int, jobs chan<- int) error {
	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled while feeding jobs", true)
			return ctx.Err()
		case jobs <- i:
			logger.Debug(fmt.Sprintf("Job queued: page=%d", i), true)
		}
	}
	logger.Debug(fmt.Sprintf("All jobs queued: total_pages=%d", total), true)
	return nil
}

// collectInOrder drains worker results, walking pages in page order, and
// aggregates the per-page stats plus the overlays to stamp.
func (f *filler) collectInOrder(results chan pagePlan) (*FillResult, map[int][]byte) {
	plans := make(map[int]pagePlan)
	overlays := make(map[int][]byte)
	nextPage := 1
	res := &FillResult{}

	for plan := range results {
		plans[plan.index] = plan

		// Account for in-order pages immediately
		for {
			p, ok := plans[nextPage]
			if !ok {
				break
			}
			res.Resolved += p.resolved
			res.Fallback += p.fallback
			res.Skipped += p.skipped
			res.TruncatedLines += p.truncated
			if p.err != nil {
				res.PassedThrough++
			} else if p.overlay != nil {
				overlays[p.index] = p.overlay
			}
			logger.Debug(fmt.Sprintf("Page planned: page=%d resolved=%d fallback=%d skipped=%d truncated=%d overlay=%v",
				p.index, p.resolved, p.fallback, p.skipped, p.truncated, p.overlay != nil), true)
			delete(plans, nextPage)
			nextPage++
		}
	}
	return res, overlays
}

func (f *filler) acquireSlot(ctx context.Context) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	logger.Debug("Slot acquired successfully", true)
	return nil
}

func (f *filler) adjustWorkerCount(maxWorkers int) int {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > runtime.NumCPU() {
		maxWorkers = runtime.NumCPU()
	}
	logger.Debug(fmt.Sprintf("Adjusted worker count: workers=%d", maxWorkers), true)
	return maxWorkers
}

// extractPageTexts indexes every page and reconstructs its plain text, in
// page order. A page that cannot be indexed contributes an empty string.
func extractPageTexts(doc *Document) []string {
	ix := NewPageTextIndex(doc.Reader())
	texts := make([]string, doc.PageCount())
	for i := 1; i <= doc.PageCount(); i++ {
		page, err := ix.Index(i)
		if err != nil {
			logger.Warn(fmt.Sprintf("%s: page %d text unavailable: %v", doc.Path(), i, err))
			continue
		}
		texts[i-1] = page.PlainText()
	}
	return texts
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}
