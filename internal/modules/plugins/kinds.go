package plugins

import "strings"

// Kind identifies one of the three plugin collections.
type Kind string

const (
	// KindIndicator - weighted data source feeding regime detection
	KindIndicator Kind = "indicator"
	// KindFormula - arithmetic expression over named variables and parameters
	KindFormula Kind = "formula"
	// KindRegime - economic regime with trigger conditions and target allocations
	KindRegime Kind = "regime"
)

// Kinds lists every plugin kind in export order.
var Kinds = []Kind{KindIndicator, KindFormula, KindRegime}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIndicator, KindFormula, KindRegime:
		return true
	}
	return false
}

// Plural returns the collection key used in export documents ("indicators", ...).
func (k Kind) Plural() string {
	return string(k) + "s"
}

// ParseKind accepts both the singular and the plural form, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if !k.Valid() {
		return "", &UnknownKindError{Kind: s}
	}
	return k, nil
}
