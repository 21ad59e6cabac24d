// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayCompositor_RenderOverlay(t *testing.T) {
	c := NewOverlayCompositor(NewDefaultConfig())

	t.Run("no instructions no overlay", func(t *testing.T) {
		data, drawn, err := c.RenderOverlay(612, 792, nil)
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Equal(t, 0, drawn)
	})

	t.Run("blank lines alone produce no overlay", func(t *testing.T) {
		data, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
			{X: 50, Y: 600, Text: "   "},
			{X: 50, Y: 588, Text: ""},
		})
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Equal(t, 0, drawn)
	})

	t.Run("renders a one page document", func(t *testing.T) {
		data, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
			{X: 50, Y: 665, Text: "Paris"},
			{X: 50, Y: 653, Text: "Second line"},
			{X: 50, Y: 641, Text: ""},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, drawn, "blank lines hold a slot but are not drawn")
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	})

	t.Run("text outside Latin-1 still renders", func(t *testing.T) {
		data, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
			{X: 50, Y: 665, Text: "Réponse: naïveté"},
			{X: 50, Y: 653, Text: "日本語の答え"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, drawn)
		assert.NotEmpty(t, data)
	})
}

func TestOverlayCompositor_StampPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writeWorksheetPDF(t, path, []string{"Algebra Worksheet"})

	c := NewOverlayCompositor(NewDefaultConfig())
	overlay, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
		{X: 50, Y: 665, Text: "Paris"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, drawn)

	require.NoError(t, c.StampPage(path, 1, overlay))
	assert.Equal(t, 1, pageCountOf(t, path))
}

func TestOverlayCompositor_StampPage_BadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writeWorksheetPDF(t, path, []string{"Algebra Worksheet"})

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	c := NewOverlayCompositor(NewDefaultConfig())
	err = c.StampPage(path, 1, []byte("not a pdf at all"))
	assert.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "a failed stamp must leave the document untouched")
}

func TestOverlayCompositor_StampAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writeWorksheetPDF(t, path,
		[]string{"Page one"},
		[]string{"Page two"},
		[]string{"Page three"},
	)

	c := NewOverlayCompositor(NewDefaultConfig())
	overlays := make(map[int][]byte)
	for _, page := range []int{1, 3} {
		data, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
			{X: 50, Y: 138, Text: "stacked answer"},
		})
		require.NoError(t, err)
		require.Equal(t, 1, drawn)
		overlays[page] = data
	}

	assert.Equal(t, 2, c.StampAll(path, overlays))
	assert.Equal(t, 3, pageCountOf(t, path), "stamping must never change the page count")
}

func TestOverlayCompositor_StampAll_Empty(t *testing.T) {
	c := NewOverlayCompositor(NewDefaultConfig())
	assert.Equal(t, 0, c.StampAll("irrelevant.pdf", nil))
}

func TestOverlayCompositor_ConcurrentStampsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	c := NewOverlayCompositor(NewDefaultConfig())

	overlay, drawn, err := c.RenderOverlay(612, 792, []DrawInstruction{
		{X: 50, Y: 665, Text: "Paris"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, drawn)

	const docs = 4
	paths := make([]string, docs)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("doc%d.pdf", i))
		writeWorksheetPDF(t, paths[i], []string{"Algebra Worksheet"})
	}

	errs := make([]error, docs)
	var wg sync.WaitGroup
	for i := 0; i < docs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.StampPage(paths[i], 1, overlay)
		}(i)
	}
	wg.Wait()

	for i := 0; i < docs; i++ {
		require.NoErrorf(t, errs[i], "stamp of document %d", i)
		assert.Equal(t, 1, pageCountOf(t, paths[i]))
	}
}
