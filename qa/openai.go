// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

// Package qa provides QuestionAnswerSource implementations: a language
// model client that finds and answers the fillable items on a worksheet
// page, a static file source, and a Redis-backed memoizing wrapper.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	wsfill "github.com/cjwolf001/worksheet-filler"
	"github.com/cjwolf001/worksheet-filler/logger"
)

const (
	// DefaultModel is the chat model consulted when none is configured.
	DefaultModel = "gpt-5-mini"
	// DefaultTimeout bounds one page's model call.
	DefaultTimeout = 120 * time.Second
)

// OpenAIConfig configures the model client. APIKey falls back to the
// OPENAI_API_KEY environment variable; BaseURL supports OpenAI-compatible
// gateways.
type OpenAIConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAISource asks a chat model to find every fillable item on each
// worksheet page and produce a short answer for it. One model call is made
// per page with extractable text.
type OpenAISource struct {
	llm       llms.Model
	maxTokens int
	timeout   time.Duration
}

func NewOpenAISource(cfg OpenAIConfig) (*OpenAISource, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	return &OpenAISource{llm: llm, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}, nil
}

// Answers queries the model once per page that has extractable text. A
// model transport error aborts the whole document; a malformed response
// degrades to an empty item list for just that page.
func (s *OpenAISource) Answers(ctx context.Context, pageTexts []string) (wsfill.AnswerSet, error) {
	answers := make(wsfill.AnswerSet, len(pageTexts))
	for i, text := range pageTexts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		items, err := s.pageItems(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		answers[i] = items
		logger.Debug(fmt.Sprintf("page %d: %d fillable items", i+1, len(items)), true)
	}
	return answers, nil
}

func (s *OpenAISource) pageItems(ctx context.Context, pageText string) ([]wsfill.PromptAnswerItem, error) {
	ctxCall, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Parts: []llms.ContentPart{llms.TextPart(fillPrompt(pageText))},
			Role:  llms.ChatMessageTypeHuman,
		},
	}
	var callOpts []llms.CallOption
	if s.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(s.maxTokens))
	}

	completion, err := s.llm.GenerateContent(ctxCall, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("querying model: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	return ParseItems(completion.Choices[0].Content), nil
}

// ParseItems decodes a model response into sanitized prompt/answer items.
// The response contract is a bare JSON array of objects; a fenced code
// block around it is tolerated, and entries that are not objects are
// skipped. Anything less salvageable is logged and treated as "no items
// for this page".
func ParseItems(raw string) []wsfill.PromptAnswerItem {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(raw)), &entries); err != nil {
		logger.Warn(fmt.Sprintf("model response is not a JSON item array, skipping page answers: %v", err))
		return nil
	}
	var items []wsfill.PromptAnswerItem
	for _, entry := range entries {
		var item wsfill.PromptAnswerItem
		if err := json.Unmarshal(entry, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return wsfill.SanitizeItems(items)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func fillPrompt(pageText string) string {
	return fmt.Sprintf(`You are helping with a school worksheet.

You are given the FULL text of ONE worksheet page. This may include:
- Section titles and headers
- Instructions like "For questions 1-3, use Article 2, Clause 3"
- Labeled blanks like "Birth date: ______; Place of birth: ______"
- Numbered questions (1., 2., 3., etc.)
- Bullet lists, including bullets that are blank (for example "• ______")

Your job:

1. Find EVERY item a student is expected to fill in. This includes:
   - Direct questions ending in a question mark.
   - Prompts ending with a colon that clearly require an answer
     (for example, "The Supreme Court can hear cases that:").
   - Labeled blanks such as "Birth date: ______; Place of birth: ______".
   - Bullet prompts where the bullet points are where the student would write.

2. For EACH such item, output ONE object:

   {
     "prompt": "the exact line / question / label from the page that the answer belongs to",
     "answer": "a short, direct answer the student would write"
   }

   IMPORTANT RULES ABOUT THE ANSWER:
   - The answer MUST NOT contain blank placeholders like "______" or "___".
   - The answer MUST be actual content (names, dates, phrases, explanations).
   - The answer MUST NOT be identical to the prompt text.
   - If the prompt line already contains labels (e.g. "Birth date: ______; Place of birth: ______"),
     fill them with real information, e.g. "Birth date: 1798; Place of birth: Etables, France".
   - For bullet-style answers, you may use multiple short phrases separated by semicolons
     or put them on separate lines inside the answer string (using "\n").

3. Use any relevant instructions or headings that appear ABOVE the prompt text as context.
   If there is no content on the page, you may use your own general knowledge.

4. Always give your best short answer. Do NOT say things like "not in text",
   "unavailable", or "cannot answer". Just answer based on your knowledge.

5. For bullet-style prompts, put each answer on its own line using "\n", e.g.:

"• case type one\n• case type two\n• case type three"

Return ONLY valid JSON in this exact format:

[
  {
    "prompt": "…",
    "answer": "…"
  },
  ...
]

Do not include any other text, no explanations.

Page text:
%s
`, pageText)
}
