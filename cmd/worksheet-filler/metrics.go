// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	wsfill "github.com/cjwolf001/worksheet-filler"
)

// serverMetrics holds the Prometheus collectors for the fill server.
type serverMetrics struct {
	FillsTotal        *prometheus.CounterVec
	FillDuration      prometheus.Histogram
	PagesStampedTotal prometheus.Counter
	AnswersTotal      *prometheus.CounterVec
}

// newServerMetrics creates and registers all fill server metrics.
func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		FillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worksheet_fills_total",
				Help: "Total fill requests by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		FillDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worksheet_fill_duration_seconds",
				Help:    "End-to-end fill latency in seconds, model calls included.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		PagesStampedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "worksheet_pages_stamped_total",
				Help: "Total pages that received an answer overlay.",
			},
		),
		AnswersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worksheet_answers_total",
				Help: "Total answers by placement kind (resolved, fallback, skipped).",
			},
			[]string{"kind"},
		),
	}

	prometheus.MustRegister(
		m.FillsTotal,
		m.FillDuration,
		m.PagesStampedTotal,
		m.AnswersTotal,
	)

	return m
}

// observeFill records one completed fill.
func (m *serverMetrics) observeFill(res *wsfill.FillResult, elapsed time.Duration) {
	m.FillsTotal.WithLabelValues("ok").Inc()
	m.FillDuration.Observe(elapsed.Seconds())
	m.PagesStampedTotal.Add(float64(res.StampedPages))
	m.AnswersTotal.WithLabelValues("resolved").Add(float64(res.Resolved))
	m.AnswersTotal.WithLabelValues("fallback").Add(float64(res.Fallback))
	m.AnswersTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
}

// metricsHandler returns the Prometheus scrape handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
