// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cjwolf001/worksheet-filler/logger"
)

// Meta is the document metadata stored in the /Info dictionary.
type Meta struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	ModDate      string `json:"modDate,omitempty"`
}

// PageSize is one page's dimensions in PDF points.
type PageSize struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentInfo is the inspection report for a worksheet document.
type DocumentInfo struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	ModDate      string `json:"modDate,omitempty"`

	PDFVersion  string     `json:"pdfVersion,omitempty"`
	Encrypted   bool       `json:"encrypted"`
	HasAcroForm bool       `json:"hasAcroForm"`
	Pages       int        `json:"pages"`
	PageSizes   []PageSize `json:"pageSizes,omitempty"`
}

// Document is an open worksheet file. It owns the underlying file handle;
// Close releases it.
type Document struct {
	path string
	f    *os.File
	r    *pdf.Reader
}

// OpenDocument opens the worksheet at path for inspection and filling.
func OpenDocument(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Document{path: path, f: f, r: r}, nil
}

func (d *Document) Close() error {
	return d.f.Close()
}

// Path returns the file path the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// Reader exposes the underlying parser, for building a page text index.
func (d *Document) Reader() *pdf.Reader {
	return d.r
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.r.NumPage()
}

// InfoDict returns the raw /Info dictionary as a Value (may be Null).
func (d *Document) InfoDict() pdf.Value {
	return d.r.Trailer().Key("Info")
}

// Info extracts the metadata stored in the /Info dictionary.
func (d *Document) Info() Meta {
	logger.Debug("reading Info dictionary")
	info := d.InfoDict()
	return Meta{
		Title:        info.Key("Title").Text(),
		Author:       info.Key("Author").Text(),
		Subject:      info.Key("Subject").Text(),
		Keywords:     info.Key("Keywords").Text(),
		Creator:      info.Key("Creator").Text(),
		Producer:     info.Key("Producer").Text(),
		CreationDate: info.Key("CreationDate").Text(),
		ModDate:      info.Key("ModDate").Text(),
	}
}

// Encrypted reports whether the file carries standard security. Documents
// that need a non-empty password fail at OpenDocument already; this catches
// the empty-password variety, which still breaks overlay stamping.
func (d *Document) Encrypted() bool {
	return d.r.Trailer().Key("Encrypt").Kind() == pdf.Dict
}

// HasAcroForm reports whether the document carries an interactive form.
func (d *Document) HasAcroForm() bool {
	return !d.r.Trailer().Key("Root").Key("AcroForm").IsNull()
}

// headerVersion returns the PDF header version string.
func (d *Document) headerVersion() string {
	buf := make([]byte, 64)
	n, _ := d.f.ReadAt(buf, 0)
	line := string(buf[:n])
	i := strings.Index(line, "%PDF-")
	if i < 0 {
		return ""
	}
	line = line[i:]
	if j := strings.IndexAny(line, "\r\n"); j >= 0 {
		line = line[:j]
	}
	return strings.TrimPrefix(line, "%PDF-")
}

// Preflight checks that the document can be filled at all. Encrypted or
// empty documents are rejected. A document carrying an interactive form
// passes with a warning: its form fields stay untouched, answers land as
// page overlays only.
func (d *Document) Preflight() error {
	if d.Encrypted() {
		return fmt.Errorf("%s: encrypted document, refusing to fill", d.path)
	}
	if d.PageCount() < 1 {
		return fmt.Errorf("%s: document has no pages", d.path)
	}
	if d.HasAcroForm() {
		logger.Warn(fmt.Sprintf("%s carries an interactive form; its fields are left untouched", d.path))
	}
	return nil
}

// Inspect returns the full inspection report. Pages whose dimensions
// cannot be determined are left out of the size list.
func (d *Document) Inspect() DocumentInfo {
	md := d.Info()
	out := DocumentInfo{
		Title:        md.Title,
		Author:       md.Author,
		Subject:      md.Subject,
		Keywords:     md.Keywords,
		Creator:      md.Creator,
		Producer:     md.Producer,
		CreationDate: md.CreationDate,
		ModDate:      md.ModDate,

		PDFVersion:  strings.TrimSpace(d.headerVersion()),
		Encrypted:   d.Encrypted(),
		HasAcroForm: d.HasAcroForm(),
		Pages:       d.PageCount(),
	}
	for i := 1; i <= out.Pages; i++ {
		p := d.r.Page(i)
		if p.V.IsNull() {
			continue
		}
		w, h, err := pageMediaBox(p)
		if err != nil {
			logger.Debug(fmt.Sprintf("Inspect: page %d: %v", i, err))
			continue
		}
		out.PageSizes = append(out.PageSizes, PageSize{Page: i, Width: w, Height: h})
	}
	logger.Debug("document inspected", true)
	return out
}

// InspectJSON writes the inspection report as pretty JSON to w.
func (d *Document) InspectJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d.Inspect())
}
