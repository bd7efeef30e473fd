package core

import (
	"fmt"
	"strings"
)

// CategoryTag is one of the five fixed expense classifications. The string
// value is the key exchanged with the backend.
type CategoryTag string

const (
	FoodAndDrink CategoryTag = "Food&Drink"
	Transport    CategoryTag = "Transport"
	Shopping     CategoryTag = "Shopping"
	Utilities    CategoryTag = "Utilities"
	Others       CategoryTag = "Others"
)

type categoryInfo struct {
	tag    CategoryTag
	goName string
	label  string
	emoji  string
}

// categoryTable is in display order. The dashboard renders categories in this
// same order.
var categoryTable = []categoryInfo{
	{FoodAndDrink, "FoodAndDrink", "Food & Drink", "🍜"},
	{Transport, "Transport", "Transport", "🚌"},
	{Shopping, "Shopping", "Shopping", "🛍️"},
	{Utilities, "Utilities", "Utilities", "💡"},
	{Others, "Others", "Others", "📦"},
}

// Categories returns every tag in display order.
func Categories() []CategoryTag {
	out := make([]CategoryTag, len(categoryTable))
	for i, c := range categoryTable {
		out[i] = c.tag
	}
	return out
}

func (c CategoryTag) info() (categoryInfo, bool) {
	for _, ci := range categoryTable {
		if ci.tag == c {
			return ci, true
		}
	}
	return categoryInfo{}, false
}

// Valid reports whether c is one of the five known tags.
func (c CategoryTag) Valid() bool {
	_, ok := c.info()
	return ok
}

// Label returns the human readable name, falling back to Others for unknown tags.
func (c CategoryTag) Label() string {
	if ci, ok := c.info(); ok {
		return ci.label
	}
	return "Others"
}

// Emoji returns the icon shown next to the label.
func (c CategoryTag) Emoji() string {
	if ci, ok := c.info(); ok {
		return ci.emoji
	}
	return "📦"
}

func (c CategoryTag) String() string {
	return string(c)
}

// ParseCategory maps a wire key, display label or Go-style name onto a tag.
// Matching ignores case and surrounding whitespace.
func ParseCategory(s string) (CategoryTag, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", ErrUnknownCategory
	}
	for _, ci := range categoryTable {
		if strings.EqualFold(v, string(ci.tag)) ||
			strings.EqualFold(v, ci.label) ||
			strings.EqualFold(v, ci.goName) {
			return ci.tag, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
