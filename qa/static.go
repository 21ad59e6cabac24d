// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	wsfill "github.com/cjwolf001/worksheet-filler"
)

// StaticSource serves a fixed answer set, typically prepared ahead of time
// and reviewed by hand. The JSON layout is one item array per page:
//
//	[
//	  [ {"prompt": "Birth date:", "answer": "1798"} ],
//	  []
//	]
type StaticSource struct {
	answers wsfill.AnswerSet
}

func NewStaticSource(answers wsfill.AnswerSet) *StaticSource {
	return &StaticSource{answers: answers}
}

// LoadStaticSource reads an answer set from a JSON file.
func LoadStaticSource(path string) (*StaticSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers file: %w", err)
	}
	var answers wsfill.AnswerSet
	if err := json.Unmarshal(b, &answers); err != nil {
		return nil, fmt.Errorf("decoding answers file %s: %w", path, err)
	}
	return &StaticSource{answers: answers}, nil
}

// Answers returns the stored set; the page texts are not consulted.
func (s *StaticSource) Answers(ctx context.Context, pageTexts []string) (wsfill.AnswerSet, error) {
	return s.answers, nil
}
