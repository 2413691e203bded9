package model

// Policy store keys.
const (
	PolicyProhibitedKeywords = "prohibited_keywords"
	PolicyMaxWordsFree       = "max_words_free"
	PolicyTemplates          = "templates"
)

const (
	// DefaultMaxWordsFree applies when the store has no usable word cap.
	DefaultMaxWordsFree = 2000
	// DefaultTemplate is used for document types without a configured template.
	DefaultTemplate = "Produce a 200-word summary of this text."
)

// KnownPolicyKey reports whether key is one of the recognised policy keys.
func KnownPolicyKey(key string) bool {
	switch key {
	case PolicyProhibitedKeywords, PolicyMaxWordsFree, PolicyTemplates:
		return true
	}
	return false
}
