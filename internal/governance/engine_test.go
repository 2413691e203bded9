package governance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docgov/internal/model"
)

type staticPolicy struct {
	keywords map[string]struct{}
	maxWords int
}

func (p staticPolicy) Keywords() map[string]struct{} { return p.keywords }
func (p staticPolicy) MaxWordsFree() int             { return p.maxWords }

func newPolicy(maxWords int, keywords ...string) staticPolicy {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	return staticPolicy{keywords: set, maxWords: maxWords}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestEngine_Evaluate(t *testing.T) {
	policy := newPolicy(2000, "terror", "hate", "self-harm")
	engine := NewEngine(policy)

	tests := []struct {
		name string
		text string
		role model.Role
		want model.Decision
	}{
		{"free user over cap", words(2500), model.RoleFreeUser, model.Reject(model.ReasonWordLimitExceeded)},
		{"free user at cap", words(2000), model.RoleFreeUser, model.Proceed()},
		{"free user keyword", "a note about terror", model.RoleFreeUser, model.Reject("keyword_match:terror")},
		{"premium keyword goes to review", "a note about terror", model.RolePremiumUser, model.Review("keyword_match:terror")},
		{"premium is not word capped", words(5000), model.RolePremiumUser, model.Proceed()},
		{"cap checked before keywords", words(2500) + " hate", model.RoleFreeUser, model.Reject(model.ReasonWordLimitExceeded)},
		{"case insensitive", "We oppose HATE", model.RoleFreeUser, model.Reject("keyword_match:hate")},
		{"first match in document order", "hate comes before terror", model.RolePremiumUser, model.Review("keyword_match:hate")},
		{"hyphenated keyword", "self-harm resources", model.RolePremiumUser, model.Review("keyword_match:self-harm")},
		{"substring is not a token match", "hateful terrorism", model.RoleFreeUser, model.Proceed()},
		{"reviewer bypasses keywords", "terror", model.RoleReviewer, model.Proceed()},
		{"admin bypasses cap and keywords", words(9000) + " terror", model.RoleAdmin, model.Proceed()},
		{"clean text", words(300), model.RoleFreeUser, model.Proceed()},
		{"empty text", "", model.RoleFreeUser, model.Proceed()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Evaluate(tt.text, tt.role))
		})
	}
}

func TestEngine_EvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine(newPolicy(10, "alpha", "beta", "gamma", "delta"))
	text := "gamma then beta then alpha then delta"

	first := engine.Evaluate(text, model.RolePremiumUser)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, engine.Evaluate(text, model.RolePremiumUser))
	}
	assert.Equal(t, "keyword_match:gamma", first.Reason)
}

func TestEngine_EmptyKeywordSet(t *testing.T) {
	engine := NewEngine(newPolicy(2000))
	assert.Equal(t, model.Proceed(), engine.Evaluate("terror everywhere", model.RoleFreeUser))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("  \n\t "))
	assert.Equal(t, 3, WordCount("one\ttwo\nthree"))
}
