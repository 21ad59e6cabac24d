// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	wsfill "github.com/cjwolf001/worksheet-filler"
	"github.com/cjwolf001/worksheet-filler/logger"
)

// CachedSource memoizes another source's answers in Redis, keyed by a
// digest of the document's page texts, so re-uploading the same worksheet
// skips the model round trips. Cache trouble never fails a lookup; the
// inner source is simply consulted again.
type CachedSource struct {
	inner wsfill.QuestionAnswerSource
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedSource(inner wsfill.QuestionAnswerSource, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedSource) Answers(ctx context.Context, pageTexts []string) (wsfill.AnswerSet, error) {
	key := cacheKey(pageTexts)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var answers wsfill.AnswerSet
		if jerr := json.Unmarshal([]byte(cached), &answers); jerr == nil {
			logger.Debug(fmt.Sprintf("answer cache hit: key=%s", key), true)
			return answers, nil
		}
		logger.Warn(fmt.Sprintf("discarding undecodable cache entry: key=%s", key))
	case !errors.Is(err, redis.Nil):
		logger.Warn(fmt.Sprintf("answer cache unavailable: %v", err))
	}

	answers, err := c.inner.Answers(ctx, pageTexts)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(answers); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			logger.Warn(fmt.Sprintf("answer cache store failed: %v", err))
		}
	}
	return answers, nil
}

// cacheKey digests the page texts so identical documents share an entry.
func cacheKey(pageTexts []string) string {
	h := sha256.New()
	for _, t := range pageTexts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return "wsfill:answers:" + hex.EncodeToString(h.Sum(nil))
}
