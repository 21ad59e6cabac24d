// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wsfill "github.com/cjwolf001/worksheet-filler"
	"github.com/cjwolf001/worksheet-filler/qa"
)

var (
	serveAddr      string
	serveModel     string
	serveMaxTokens int
	serveQATimeout time.Duration
	serveRedisAddr string
	serveCacheTTL  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an upload form that returns filled worksheets",
	Long: `Serve starts a web server with an upload form. Each uploaded worksheet
is filled from the configured model and sent back as a download. With
--redis-addr, answer sets are cached so re-uploads of the same worksheet
skip the model calls. Prometheus metrics are exposed on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5000", "Listen address")
	serveCmd.Flags().StringVar(&serveModel, "model", qa.DefaultModel, "Model for answer generation")
	serveCmd.Flags().IntVar(&serveMaxTokens, "max-tokens", 0, "Cap on model output tokens per page (0 = provider default)")
	serveCmd.Flags().DurationVar(&serveQATimeout, "qa-timeout", qa.DefaultTimeout, "Per-page model call timeout")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "Redis address for answer caching (empty = caching off)")
	serveCmd.Flags().DurationVar(&serveCacheTTL, "cache-ttl", 24*time.Hour, "TTL for cached answer sets")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := newFillerConfig()
	if err != nil {
		return err
	}
	modelSource, err := qa.NewOpenAISource(qa.OpenAIConfig{
		Model:     serveModel,
		MaxTokens: serveMaxTokens,
		Timeout:   serveQATimeout,
	})
	if err != nil {
		return err
	}

	var source wsfill.QuestionAnswerSource = modelSource
	if serveRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: serveRedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithField("error", err).Warn("redis unavailable, answer caching disabled")
		} else {
			source = qa.NewCachedSource(modelSource, rdb, serveCacheTTL)
			log.WithFields(logrus.Fields{
				"addr": serveRedisAddr,
				"ttl":  serveCacheTTL,
			}).Info("answer caching enabled")
		}
	}

	srv := &fillServer{
		filler:  wsfill.NewFiller(cfg),
		source:  source,
		metrics: newServerMetrics(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleIndex)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.Handle("/metrics", metricsHandler())

	log.WithField("addr", serveAddr).Info("worksheet fill server listening")
	return http.ListenAndServe(serveAddr, mux)
}

// fillServer handles worksheet uploads against a shared filler.
type fillServer struct {
	filler  wsfill.Filler
	source  wsfill.QuestionAnswerSource
	metrics *serverMetrics
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Worksheet Filler</title></head>
<body>
<h1>Worksheet Filler</h1>
<p>Upload a worksheet PDF; the filled copy downloads when ready.</p>
<form method="POST" enctype="multipart/form-data">
  <input type="file" name="pdf_file" accept="application/pdf" required>
  <button type="submit">Fill worksheet</button>
</form>
</body>
</html>
`

func (s *fillServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, indexHTML)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *fillServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		http.Error(w, "missing pdf_file upload field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	in, err := os.CreateTemp("", "wsfill-upload-*.pdf")
	if err != nil {
		http.Error(w, "saving upload: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.Remove(in.Name())
	if _, err := in.ReadFrom(file); err != nil {
		in.Close()
		http.Error(w, "saving upload: "+err.Error(), http.StatusInternalServerError)
		return
	}
	in.Close()

	out, err := os.CreateTemp("", "wsfill-filled-*.pdf")
	if err != nil {
		http.Error(w, "creating output: "+err.Error(), http.StatusInternalServerError)
		return
	}
	out.Close()
	defer os.Remove(out.Name())

	start := time.Now()
	res, err := s.filler.FillWithSource(r.Context(), in.Name(), out.Name(), s.source)
	if err != nil {
		s.metrics.FillsTotal.WithLabelValues("error").Inc()
		log.WithFields(logrus.Fields{
			"file":  header.Filename,
			"error": err,
		}).Error("fill failed")
		http.Error(w, "fill failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.observeFill(res, time.Since(start))

	log.WithFields(logrus.Fields{
		"file":     header.Filename,
		"pages":    res.Pages,
		"resolved": res.Resolved,
		"fallback": res.Fallback,
		"skipped":  res.Skipped,
	}).Info("worksheet filled")

	filled, err := os.Open(out.Name())
	if err != nil {
		http.Error(w, "reading filled worksheet: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer filled.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="worksheet_filled.pdf"`)
	if _, err := io.Copy(w, filled); err != nil {
		log.WithField("error", err).Warn("sending filled worksheet interrupted")
	}
}

func (s *fillServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
