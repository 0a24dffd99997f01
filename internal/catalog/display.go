package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/svd-classify/internal/domain"
)

// KeySeparator joins the codes of a paired dropdown ("OP1_SBP1").
const KeySeparator = "_"

// ValueSeparator joins the tokens of a combined dropdown value ("OP1_SU|SBP1_NA").
const ValueSeparator = "|"

// maxKeyCodes is the most codes one dropdown can hold.
const maxKeyCodes = 2

// CategoryCodes is one section of the review form.
type CategoryCodes struct {
	Category string   `json:"category"`
	Pretty   string   `json:"pretty"`
	Slug     string   `json:"slug"`
	Keys     []string `json:"keys"`
}

// DropdownOption is one selectable value of a code dropdown.
type DropdownOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// CodeDetail describes one code for the review form.
type CodeDetail struct {
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Options     []string `json:"options"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// PairKey builds the stable identifier of a dropdown that holds two
// alternate codes. Two non-benign codes are sorted alphabetically; otherwise
// the pathogenic or oncogenic code comes first and the benign code second.
func PairKey(a, b *domain.Criterion) string {
	switch {
	case !a.Polarity.IsBenign() && !b.Polarity.IsBenign():
		codes := []string{a.Code, b.Code}
		sort.Strings(codes)
		return codes[0] + KeySeparator + codes[1]
	case a.Polarity.IsBenign():
		return b.Code + KeySeparator + a.Code
	default:
		return a.Code + KeySeparator + b.Code
	}
}

// KeyFor returns the dropdown key a code is displayed under.
func KeyFor(g *domain.Guideline, c *domain.Criterion) (string, error) {
	if !c.IsPaired() {
		return c.Code, nil
	}
	partner, err := g.Criterion(c.PairedWith)
	if err != nil {
		return "", err
	}
	return PairKey(c, partner), nil
}

// SplitKey returns the codes of a dropdown key.
func SplitKey(key string) []string {
	return strings.Split(key, KeySeparator)
}

// OrderInfo returns the review form sections in category sort order, each with
// its deduplicated, sorted dropdown keys.
func OrderInfo(g *domain.Guideline) ([]CategoryCodes, error) {
	categories := append([]domain.Category(nil), g.Categories...)
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].SortOrder < categories[j].SortOrder
	})

	keysByCategory := make(map[string]map[string]bool, len(categories))
	for i := range g.Criteria {
		c := &g.Criteria[i]
		key, err := KeyFor(g, c)
		if err != nil {
			return nil, err
		}
		if keysByCategory[c.Category] == nil {
			keysByCategory[c.Category] = make(map[string]bool)
		}
		keysByCategory[c.Category][key] = true
	}

	sections := make([]CategoryCodes, 0, len(categories))
	for _, cat := range categories {
		keys := make([]string, 0, len(keysByCategory[cat.Name]))
		for k := range keysByCategory[cat.Name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pretty := PrettyPrint(cat.Name)
		sections = append(sections, CategoryCodes{
			Category: cat.Name,
			Pretty:   pretty,
			Slug:     Slugify(pretty),
			Keys:     keys,
		})
	}
	return sections, nil
}

// CodeInfo returns per-code details for the review form.
func CodeInfo(g *domain.Guideline) map[string]CodeDetail {
	info := make(map[string]CodeDetail, len(g.Criteria))
	for _, c := range g.Criteria {
		info[c.Code] = CodeDetail{
			Type:        strings.ToLower(c.Polarity.Label()),
			Category:    c.Category,
			Options:     append([]string(nil), c.Strengths...),
			Description: c.Description,
			Links:       append([]string(nil), c.Links...),
		}
	}
	return info
}

// BuildDropdownOptions lists the options of a dropdown holding codes: Pending,
// Not applied, then one option per strength of each code. For a pair, applying
// one code marks the other not applied, so values always carry every code in
// key order.
func BuildDropdownOptions(g *domain.Guideline, codes []string) ([]DropdownOption, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: empty dropdown key", domain.ErrUnknownCode)
	}
	if len(codes) > maxKeyCodes {
		return nil, fmt.Errorf("max number of combined codes is %d, got %d", maxKeyCodes, len(codes))
	}

	criteria := make([]*domain.Criterion, 0, len(codes))
	for _, code := range codes {
		c, err := g.Criterion(code)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}

	options := []DropdownOption{
		{Value: joinTokens(codes, func(int) string { return domain.PendingToken }), Text: "Pending"},
		{Value: joinTokens(codes, func(int) string { return domain.NotAppliedToken }), Text: "Not applied"},
	}

	for i, c := range criteria {
		for _, shorthand := range c.Strengths {
			str, err := g.Strength(shorthand)
			if err != nil {
				return nil, err
			}
			applied := i
			options = append(options, DropdownOption{
				Value: joinTokens(codes, func(j int) string {
					if j == applied {
						return shorthand
					}
					return domain.NotAppliedToken
				}),
				Text: OptionText(c, str),
			})
		}
	}
	return options, nil
}

// OptionText renders an applied code as "<code> <Strength> (+N)", with a
// negative sign for benign codes.
func OptionText(c *domain.Criterion, s *domain.Strength) string {
	sign := "+"
	if c.Polarity.IsBenign() {
		sign = "-"
	}
	return fmt.Sprintf("%s %s (%s%d)", c.Code, PrettyPrint(s.Name), sign, s.Points)
}

// AnswerDisplay renders one ledger entry for the per-check history column.
func AnswerDisplay(g *domain.Guideline, a *domain.CodeAnswer) (string, error) {
	switch a.State {
	case domain.ANSWER_PENDING:
		return "Pending", nil
	case domain.ANSWER_NOT_APPLIED:
		return "Not applied", nil
	}
	c, s, err := g.CriterionStrength(a.Code, a.AppliedStrength)
	if err != nil {
		return "", err
	}
	return OptionText(c, s), nil
}

// PairDisplay merges the history display of both codes of a pair. The shared
// string is used when they agree; otherwise the side that is applied wins.
func PairDisplay(first, second string) string {
	switch {
	case first == second:
		return first
	case first == "Not applied":
		return second
	case second == "Not applied":
		return first
	default:
		return first + " / " + second
	}
}

// PrettyPrint turns a stored name such as "very_strong" into "Very Strong".
func PrettyPrint(name string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range name {
		if r == '_' {
			b.WriteRune(' ')
			prevLetter = false
			continue
		}
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// Slugify lowercases s, drops anything that is not a letter, digit, space,
// underscore or hyphen, and collapses whitespace and hyphen runs into one hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingHyphen && b.Len() > 0 {
				b.WriteRune('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingHyphen = true
		}
	}
	return b.String()
}

func joinTokens(codes []string, value func(i int) string) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = c + "_" + value(i)
	}
	return strings.Join(parts, ValueSeparator)
}
