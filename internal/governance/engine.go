// Package governance decides what happens to a submitted document.
//
// The Engine is side-effect free: it reads the current policy snapshot and
// returns a model.Decision. Persisting the outcome, queueing reviews and
// auditing are the caller's job.
package governance

import (
	"strings"

	"docgov/internal/model"
)

// PolicyReader is the read side of the policy cache used for enforcement.
type PolicyReader interface {
	Keywords() map[string]struct{}
	MaxWordsFree() int
}

// Engine applies tier limits and keyword policy.
type Engine struct {
	policy PolicyReader
}

// NewEngine returns an Engine reading policy from p.
func NewEngine(p PolicyReader) *Engine {
	return &Engine{policy: p}
}

// Evaluate returns the decision for text submitted by role.
//
// Reviewer and Admin submissions are trusted and always proceed. FreeUser
// submissions are checked against the word cap first. Every other role is
// checked for prohibited tokens in document order; PremiumUser matches go to
// review, all others are rejected.
func (e *Engine) Evaluate(text string, role model.Role) model.Decision {
	if role.Trusted() {
		return model.Proceed()
	}

	tokens := strings.Fields(text)

	if role == model.RoleFreeUser && len(tokens) > e.policy.MaxWordsFree() {
		return model.Reject(model.ReasonWordLimitExceeded)
	}

	token, ok := firstProhibited(tokens, e.policy.Keywords())
	if !ok {
		return model.Proceed()
	}

	reason := model.KeywordReason(token)
	if role == model.RolePremiumUser {
		return model.Review(reason)
	}
	return model.Reject(reason)
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func firstProhibited(tokens []string, keywords map[string]struct{}) (string, bool) {
	if len(keywords) == 0 {
		return "", false
	}
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, hit := keywords[lower]; hit {
			return lower, true
		}
	}
	return "", false
}
