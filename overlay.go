// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"

	"github.com/cjwolf001/worksheet-filler/logger"
)

// stampDescription positions an overlay on its target page. The overlay is
// rendered at exactly the page size, so centering at absolute scale lines
// the two up corner to corner.
const stampDescription = "pos:c, scale:1 abs, rot:0"

// OverlayCompositor renders draw instructions into single-page overlay
// documents and merges them onto the pages of an existing file. The target
// page keeps its content and annotations; the overlay lands on top.
// Safe for concurrent use: stamp passes share no mutable state.
type OverlayCompositor struct {
	fontName string
	fontSize float64
}

func NewOverlayCompositor(config *Config) *OverlayCompositor {
	return &OverlayCompositor{
		fontName: config.FontName,
		fontSize: config.FontSize,
	}
}

// RenderOverlay draws the instructions onto a fresh canvas matching the
// target page size and returns it as a one-page document. The count is the
// number of visible lines drawn; when it is zero the caller leaves the
// target page alone instead of stamping a blank overlay.
func (c *OverlayCompositor) RenderOverlay(width, height float64, instructions []DrawInstruction) ([]byte, int, error) {
	if len(instructions) == 0 {
		return nil, 0, nil
	}

	doc := fpdf.New("P", "pt", "", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetMargins(0, 0, 0)
	doc.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})
	doc.SetFont(c.fontName, "", c.fontSize)

	drawn := 0
	for _, ins := range instructions {
		if strings.TrimSpace(ins.Text) == "" {
			continue
		}
		// Convert text to ISO-8859-1; the built-in fonts cover no more.
		latin1, err := charmap.ISO8859_1.NewEncoder().String(ins.Text)
		if err != nil {
			latin1 = ins.Text
		}
		// Instructions measure from the page bottom, fpdf from the top.
		doc.Text(ins.X, height-ins.Y, latin1)
		drawn++
	}
	if drawn == 0 {
		return nil, 0, nil
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("rendering overlay: %w", err)
	}
	logger.Debug(fmt.Sprintf("overlay rendered: %d lines, %d bytes", drawn, buf.Len()))
	return buf.Bytes(), drawn, nil
}

// StampPage merges overlay onto the 1-based page pageNum of the document at
// path, rewriting the file in place.
func (c *OverlayCompositor) StampPage(path string, pageNum int, overlay []byte) error {
	scratch, err := writeScratchOverlay(overlay)
	if err != nil {
		return err
	}
	defer os.Remove(scratch)

	wm, err := api.PDFWatermark(scratch+":1", stampDescription, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("building stamp for page %d: %w", pageNum, err)
	}
	selected := []string{strconv.Itoa(pageNum)}
	// pdfcpu writes the command kind into the configuration it is handed,
	// so concurrent stamp passes must not share one.
	if err := api.AddWatermarksFile(path, "", selected, wm, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("stamping page %d: %w", pageNum, err)
	}
	return nil
}

// StampAll merges every rendered overlay onto its 1-based page in a single
// pass over the document, falling back to page-at-a-time stamping when the
// batch update is rejected. A page whose stamp fails is left exactly as it
// was; failures are logged, never escalated. Returns the number of pages
// stamped.
func (c *OverlayCompositor) StampAll(path string, overlays map[int][]byte) int {
	if len(overlays) == 0 {
		return 0
	}
	pages := make([]int, 0, len(overlays))
	for p := range overlays {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	scratch := make(map[int]string, len(overlays))
	defer func() {
		for _, name := range scratch {
			os.Remove(name)
		}
	}()

	stamps := make(map[int]*model.Watermark, len(overlays))
	for _, p := range pages {
		name, err := writeScratchOverlay(overlays[p])
		if err != nil {
			logger.Warn(fmt.Sprintf("page %d left unstamped: %v", p, err))
			continue
		}
		scratch[p] = name
		wm, err := api.PDFWatermark(name+":1", stampDescription, true, false, types.POINTS)
		if err != nil {
			logger.Warn(fmt.Sprintf("page %d left unstamped: %v", p, err))
			continue
		}
		stamps[p] = wm
	}
	if len(stamps) == 0 {
		return 0
	}

	// Fresh configuration per pass; pdfcpu mutates it during the run.
	err := api.AddWatermarksMapFile(path, "", stamps, model.NewDefaultConfiguration())
	if err == nil {
		logger.Debug(fmt.Sprintf("stamped %d pages in one pass", len(stamps)), true)
		return len(stamps)
	}
	logger.Warn(fmt.Sprintf("batch stamp rejected, retrying page by page: %v", err))

	stamped := 0
	for _, p := range pages {
		name, ok := scratch[p]
		if !ok || stamps[p] == nil {
			continue
		}
		wm, err := api.PDFWatermark(name+":1", stampDescription, true, false, types.POINTS)
		if err != nil {
			logger.Warn(fmt.Sprintf("page %d left unstamped: %v", p, err))
			continue
		}
		if err := api.AddWatermarksFile(path, "", []string{strconv.Itoa(p)}, wm, model.NewDefaultConfiguration()); err != nil {
			logger.Warn(fmt.Sprintf("page %d left unstamped: %v", p, err))
			continue
		}
		stamped++
	}
	return stamped
}

func writeScratchOverlay(data []byte) (string, error) {
	f, err := os.CreateTemp("", "wsfill-overlay-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating overlay scratch file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writing overlay scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("closing overlay scratch file: %w", err)
	}
	return name, nil
}
