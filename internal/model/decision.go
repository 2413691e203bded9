package model

import "strings"

// Reason strings reported with reject and review decisions.
const (
	ReasonWordLimitExceeded = "word_limit_exceeded"
	ReasonReviewOverride    = "review_override"
	ReasonReviewReject      = "review_reject"
	reasonKeywordPrefix     = "keyword_match:"
)

// KeywordReason formats the reason for a prohibited token match.
func KeywordReason(token string) string {
	return reasonKeywordPrefix + token
}

// MatchedKeyword extracts the token from a keyword_match reason.
func MatchedKeyword(reason string) (string, bool) {
	if !strings.HasPrefix(reason, reasonKeywordPrefix) {
		return "", false
	}
	return strings.TrimPrefix(reason, reasonKeywordPrefix), true
}

// DecisionKind is the outcome class of a governance evaluation.
type DecisionKind string

const (
	DecisionProceed DecisionKind = "proceed"
	DecisionReject  DecisionKind = "reject"
	DecisionReview  DecisionKind = "review"
)

// Decision is the result of evaluating a document against policy.
// Reason is empty for DecisionProceed.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

func Proceed() Decision             { return Decision{Kind: DecisionProceed} }
func Reject(reason string) Decision { return Decision{Kind: DecisionReject, Reason: reason} }
func Review(reason string) Decision { return Decision{Kind: DecisionReview, Reason: reason} }
