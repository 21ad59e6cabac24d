// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package wsfill

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cjwolf001/worksheet-filler/logger"
)

type PlacementMode string

const (
	// FallbackStack places answers whose prompt could not be located in a
	// stacked column near the page bottom.
	FallbackStack PlacementMode = "fallback-stack"
	// SkipUnresolved drops answers whose prompt could not be located.
	SkipUnresolved PlacementMode = "skip-unresolved"
)

type Config struct {
	MaxConcurrentFills int           `validate:"min=1,max=10"`
	MaxWorkersPerDoc   int           `validate:"min=1,max=10"`
	WorkerTimeout      time.Duration `validate:"required"`
	PlacementMode      PlacementMode `validate:"oneof=fallback-stack skip-unresolved"`

	// Prompt matching. The snippet is the normalized token prefix of a
	// prompt used for window scoring; a window is accepted when its score
	// reaches max(MinScoreFloor, k-1) for snippet length k.
	SnippetLen    int `validate:"min=1,max=12"`
	MinScoreFloor int `validate:"min=1,max=12"`

	// Layout geometry in PDF points, wrap widths in characters.
	AnchorOffset   float64 `validate:"gt=0"`
	LineHeight     float64 `validate:"gt=0"`
	BottomMargin   float64 `validate:"gte=0"`
	WrapAnchored   int     `validate:"min=10"`
	WrapFallback   int     `validate:"min=10"`
	FallbackX      float64 `validate:"gt=0"`
	FallbackStartY float64 `validate:"gt=0"`
	FallbackStep   float64 `validate:"gt=0"`

	// Overlay text style. Core PDF fonts only; the overlay renderer
	// encodes text to Latin-1 for these.
	FontName string  `validate:"required"`
	FontSize float64 `validate:"gt=0"`

	// DebugOn prints the accumulated page trace after each fill.
	DebugOn bool
	Logger  logger.LogFunc
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrentFills: 5,
		MaxWorkersPerDoc:   1,
		WorkerTimeout:      5 * time.Second,
		PlacementMode:      FallbackStack,
		SnippetLen:         6,
		MinScoreFloor:      3,
		AnchorOffset:       15,
		LineHeight:         12,
		BottomMargin:       40,
		WrapAnchored:       80,
		WrapFallback:       90,
		FallbackX:          50,
		FallbackStartY:     150,
		FallbackStep:       60,
		FontName:           "Helvetica",
		FontSize:           9,
		DebugOn:            false,
	}
}

func (cfg *Config) Validate() error {
	logger.Debug("Validating Config Object")
	validate := validator.New()
	return validate.Struct(cfg)
}
