package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// typeMessages maps a JSON field to the message reported when its value has the wrong shape.
var typeMessages = map[string]string{
	"sources":     "Sources doit être un tableau",
	"parameters":  "Paramètres doivent être un objet JSON",
	"conditions":  "Conditions doivent être un objet",
	"allocations": "Allocations doivent être un objet",
}

// DecodePlugin decodes a JSON plugin document of the given kind.
//
// Shape mismatches (a string where a list is expected, a list where an object is
// expected, ...) are reported as a *ValidationError carrying the user-facing message
// for the offending field, so decoding failures surface the same way as rule violations.
func DecodePlugin(kind Kind, raw []byte) (Plugin, error) {
	var p Plugin
	switch kind {
	case KindIndicator:
		p = &Indicator{}
	case KindFormula:
		p = &Formula{}
	case KindRegime:
		p = &Regime{}
	default:
		return nil, &UnknownKindError{Kind: string(kind)}
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, decodeError(err)
	}
	return p, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		root := field
		if i := strings.IndexByte(field, '.'); i >= 0 {
			root = field[:i]
		}
		if msg, ok := typeMessages[root]; ok {
			return &ValidationError{Errors: []string{msg}}
		}
		return &ValidationError{Errors: []string{fmt.Sprintf("Champ %s invalide", field)}}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ValidationError{Errors: []string{fmt.Sprintf("JSON invalide: %v", syntaxErr)}}
	}

	return &ValidationError{Errors: []string{fmt.Sprintf("Données invalides: %v", err)}}
}
