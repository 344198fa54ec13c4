package expr

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOperator
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return fmt.Sprintf("number %s", t.text)
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// lex splits src into tokens. Positions are 1-based rune offsets.
func lex(src string) ([]token, error) {
	runes := []rune(src)
	var tokens []token

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			if i < len(runes) && runes[i] == '.' {
				i++
				for i < len(runes) && unicode.IsDigit(runes[i]) {
					i++
				}
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && unicode.IsDigit(runes[j]) {
					for j < len(runes) && unicode.IsDigit(runes[j]) {
						j++
					}
					i = j
				}
			}
			text := string(runes[start:i])
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &SyntaxError{Pos: start + 1, Msg: fmt.Sprintf("malformed number %q", text)}
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: start + 1})

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start + 1})

		case r == '+' || r == '-' || r == '*' || r == '/' || r == '%' || r == '^':
			tokens = append(tokens, token{kind: tokOperator, text: string(r), pos: i + 1})
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i + 1})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i + 1})
			i++

		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i + 1})
			i++

		default:
			return nil, &SyntaxError{Pos: i + 1, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes) + 1})
	return tokens, nil
}
