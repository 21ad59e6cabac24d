// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wsfill "github.com/cjwolf001/worksheet-filler"
	"github.com/cjwolf001/worksheet-filler/logger"
)

var log = logrus.New()

var (
	debugOn       bool
	placementMode string
	docWorkers    int
	workerTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "worksheet-filler",
	Short: "Fill worksheet PDFs with answers",
	Long: `worksheet-filler writes answers onto worksheet PDFs by locating each
answer's prompt in the page text and stamping the answer next to it.
Answers come from a prepared JSON file or from an OpenAI-compatible model.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env file is optional; OPENAI_API_KEY may live there.
		_ = godotenv.Load()
		if debugOn {
			log.SetLevel(logrus.DebugLevel)
		}
		logger.SetLogger(logBridge)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugOn, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&placementMode, "placement", string(wsfill.FallbackStack), "Placement for unresolved answers: fallback-stack or skip-unresolved")
	rootCmd.PersistentFlags().IntVar(&docWorkers, "workers", 4, "Page planning workers per document")
	rootCmd.PersistentFlags().DurationVar(&workerTimeout, "worker-timeout", 5*time.Second, "Per-page planning timeout")
}

// newFillerConfig builds the library config from the persistent flags.
// Validation happens here so a bad flag value comes back as a normal
// command error instead of a panic out of NewFiller.
func newFillerConfig() (*wsfill.Config, error) {
	cfg := wsfill.NewDefaultConfig()
	cfg.DebugOn = debugOn
	cfg.PlacementMode = wsfill.PlacementMode(placementMode)
	cfg.MaxWorkersPerDoc = docWorkers
	cfg.WorkerTimeout = workerTimeout
	cfg.Logger = logBridge
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logBridge adapts the library's logger callback to logrus. Keyvals
// arrive in pairs and become structured fields.
func logBridge(level logger.LogLevel, msg string, keyvals ...interface{}) {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		fields[fmt.Sprintf("%v", keyvals[i])] = keyvals[i+1]
	}
	entry := log.WithFields(fields)
	switch level {
	case logger.DebugLevel:
		entry.Debug(msg)
	case logger.InfoLevel:
		entry.Info(msg)
	case logger.WarnLevel:
		entry.Warn(msg)
	default:
		entry.Error(msg)
	}
}
