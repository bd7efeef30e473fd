package core

import "strings"

// KeywordRule ties a category to the keywords that select it. Keywords are
// matched as lower-case substrings so Thai terms, which are written without
// word breaks, match the same way English brand names do.
type KeywordRule struct {
	Category CategoryTag
	Keywords []string
}

// DefaultRules is checked top to bottom; the first rule with any hit wins.
var DefaultRules = []KeywordRule{
	{
		Category: FoodAndDrink,
		Keywords: []string{
			"ค่าข้าว", "ข้าว", "อาหาร", "กาแฟ", "ชานม", "ขนม",
			"pizza", "burger", "coffee", "tea", "food", "drink", "cafe", "restaurant",
		},
	},
	{
		Category: Transport,
		Keywords: []string{
			"รถ", "น้ำมัน", "ค่าทางด่วน", "ค่ารถ",
			"bts", "mrt", "grab", "bolt", "taxi", "bus", "train", "fuel", "gas", "toll",
		},
	},
	{
		Category: Shopping,
		Keywords: []string{
			"ตลาด", "ร้านค้า", "เสื้อ", "รองเท้า",
			"shopee", "lazada", "central", "lotus", "bigc", "shopping", "mall",
		},
	},
	{
		Category: Utilities,
		Keywords: []string{
			"ค่าไฟ", "ค่าน้ำ", "ค่าเน็ต", "อินเทอร์เน็ต", "ค่าโทร",
			"truemove", "ais", "dtac", "internet", "electric", "water", "bill", "utility",
		},
	},
}

// Matcher classifies free-form OCR text with an ordered rule list.
type Matcher struct {
	rules []KeywordRule
}

// NewMatcher copies rules and lower-cases every keyword. Empty keywords are
// dropped since they would match any input.
func NewMatcher(rules []KeywordRule) *Matcher {
	m := &Matcher{rules: make([]KeywordRule, 0, len(rules))}
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		m.rules = append(m.rules, KeywordRule{Category: r.Category, Keywords: kw})
	}
	return m
}

var defaultMatcher = NewMatcher(DefaultRules)

// Classify returns the first category whose keyword set occurs in text, or
// Others when nothing matches.
func (m *Matcher) Classify(text string) CategoryTag {
	t := strings.ToLower(text)
	for _, r := range m.rules {
		for _, k := range r.Keywords {
			if strings.Contains(t, k) {
				return r.Category
			}
		}
	}
	return Others
}

// Classify runs the default rule set.
func Classify(text string) CategoryTag {
	return defaultMatcher.Classify(text)
}
