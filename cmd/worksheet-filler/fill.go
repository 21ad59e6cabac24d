// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wsfill "github.com/cjwolf001/worksheet-filler"
	"github.com/cjwolf001/worksheet-filler/qa"
)

var (
	fillAnswersPath string
	fillModel       string
	fillMaxTokens   int
	fillQATimeout   time.Duration
)

var fillCmd = &cobra.Command{
	Use:   "fill <input.pdf> <output.pdf>",
	Short: "Fill a worksheet PDF with answers",
	Long: `Fill writes answers onto a copy of the worksheet. With --answers the
prompt/answer items come from a JSON file; otherwise each page's text is
sent to an OpenAI-compatible model (OPENAI_API_KEY must be set).

The fill result is printed to stdout as JSON.`,
	Args: cobra.ExactArgs(2),
	RunE: runFill,
}

func init() {
	rootCmd.AddCommand(fillCmd)
	fillCmd.Flags().StringVar(&fillAnswersPath, "answers", "", "JSON file with per-page prompt/answer items")
	fillCmd.Flags().StringVar(&fillModel, "model", qa.DefaultModel, "Model for answer generation")
	fillCmd.Flags().IntVar(&fillMaxTokens, "max-tokens", 0, "Cap on model output tokens per page (0 = provider default)")
	fillCmd.Flags().DurationVar(&fillQATimeout, "qa-timeout", qa.DefaultTimeout, "Per-page model call timeout")
}

func runFill(cmd *cobra.Command, args []string) error {
	cfg, err := newFillerConfig()
	if err != nil {
		return err
	}
	source, err := buildAnswerSource()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := wsfill.NewFiller(cfg)
	res, err := f.FillWithSource(ctx, args[0], args[1], source)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output":   args[1],
		"pages":    res.Pages,
		"resolved": res.Resolved,
		"fallback": res.Fallback,
		"skipped":  res.Skipped,
	}).Info("worksheet filled")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// buildAnswerSource picks the static file source when --answers is given
// and the model-backed source otherwise.
func buildAnswerSource() (wsfill.QuestionAnswerSource, error) {
	if fillAnswersPath != "" {
		return qa.LoadStaticSource(fillAnswersPath)
	}
	return qa.NewOpenAISource(qa.OpenAIConfig{
		Model:     fillModel,
		MaxTokens: fillMaxTokens,
		Timeout:   fillQATimeout,
	})
}
