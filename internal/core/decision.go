package core

// CategorySource records where a category value came from.
type CategorySource string

const (
	SourceExplicit  CategorySource = "explicit"  // backend set category
	SourceSuggested CategorySource = "suggested" // backend suggested_category
	SourceGuessed   CategorySource = "guessed"   // keyword matcher
	SourceSelected  CategorySource = "selected"  // user override
)

// CategoryDecision is the resolved category together with its origin.
type CategoryDecision struct {
	Source CategorySource
	Tag    CategoryTag
}

func Explicit(tag CategoryTag) CategoryDecision  { return CategoryDecision{SourceExplicit, tag} }
func Suggested(tag CategoryTag) CategoryDecision { return CategoryDecision{SourceSuggested, tag} }
func Guessed(tag CategoryTag) CategoryDecision   { return CategoryDecision{SourceGuessed, tag} }
func Selected(tag CategoryTag) CategoryDecision  { return CategoryDecision{SourceSelected, tag} }

// ResolveCategory picks the category for a fresh OCR result. An explicit
// category beats a suggestion, and the keyword matcher only runs when neither
// is usable. Values that are not known tags are skipped.
func ResolveCategory(ocr OcrResult) CategoryDecision {
	return resolveWith(defaultMatcher, ocr)
}

func resolveWith(m *Matcher, ocr OcrResult) CategoryDecision {
	if tag, err := ParseCategory(ocr.Category); err == nil {
		return Explicit(tag)
	}
	if tag, err := ParseCategory(ocr.SuggestedCategory); err == nil {
		return Suggested(tag)
	}
	return Guessed(m.Classify(ocr.CombinedText()))
}
