// Package policy keeps an in-memory projection of the policy store.
//
// Each policy section (keywords, word cap, templates) is swapped
// independently, so a reader may briefly see a new keyword set alongside the
// previous word cap, but never a half-built section.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"docgov/internal/model"
	"docgov/internal/repository"
)

// Cache is safe for concurrent use. Reads never block and never touch the store.
type Cache struct {
	repo repository.PolicyRepository
	log  *zap.Logger

	keywords  atomic.Pointer[map[string]struct{}]
	maxWords  atomic.Int64
	templates atomic.Pointer[map[string]string]
}

// NewCache returns a cache holding the built-in defaults until the first Reload.
func NewCache(repo repository.PolicyRepository, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{repo: repo, log: log.With(zap.String("component", "policy_cache"))}
	emptyKeywords := map[string]struct{}{}
	emptyTemplates := map[string]string{}
	c.keywords.Store(&emptyKeywords)
	c.templates.Store(&emptyTemplates)
	c.maxWords.Store(model.DefaultMaxWordsFree)
	return c
}

// Reload fetches every policy from the store and replaces the cached sections.
// A store failure leaves the previous snapshot in place. Malformed values fall
// back to an empty section (or the default word cap) instead of failing.
func (c *Cache) Reload(ctx context.Context) error {
	raw, err := c.repo.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("reload policies: %w", err)
	}

	keywords := c.parseKeywords(raw[model.PolicyProhibitedKeywords])
	maxWords := c.parseMaxWords(raw[model.PolicyMaxWordsFree])
	templates := c.parseTemplates(raw[model.PolicyTemplates])

	c.keywords.Store(&keywords)
	c.maxWords.Store(int64(maxWords))
	c.templates.Store(&templates)

	c.log.Debug("policies reloaded",
		zap.Int("keywords", len(keywords)),
		zap.Int("max_words_free", maxWords),
		zap.Int("templates", len(templates)),
	)
	return nil
}

// Keywords returns the prohibited token set. Callers must not modify it.
func (c *Cache) Keywords() map[string]struct{} {
	return *c.keywords.Load()
}

// MaxWordsFree returns the FreeUser word cap.
func (c *Cache) MaxWordsFree() int {
	return int(c.maxWords.Load())
}

// TemplateFor returns the summarization instruction for docType. When no
// template is configured it returns the default instruction and false.
func (c *Cache) TemplateFor(docType string) (string, bool) {
	if t, ok := (*c.templates.Load())[docType]; ok {
		return t, true
	}
	return model.DefaultTemplate, false
}

func (c *Cache) parseKeywords(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	if raw == "" {
		return out
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		c.log.Warn("malformed policy, using empty keyword set",
			zap.String("key", model.PolicyProhibitedKeywords), zap.Error(err))
		return out
	}
	for _, k := range list {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

func (c *Cache) parseMaxWords(raw string) int {
	if raw == "" {
		return model.DefaultMaxWordsFree
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		c.log.Warn("malformed policy, using default word cap",
			zap.String("key", model.PolicyMaxWordsFree), zap.String("value", raw))
		return model.DefaultMaxWordsFree
	}
	return n
}

func (c *Cache) parseTemplates(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.log.Warn("malformed policy, using empty template map",
			zap.String("key", model.PolicyTemplates), zap.Error(err))
		return map[string]string{}
	}
	return out
}
