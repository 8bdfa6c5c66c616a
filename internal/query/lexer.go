package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokString
	tokInt
	tokFloat
	tokCompare
	tokAssign
	tokAnd
	tokOr
	tokIn
	tokNot
	tokMinus
	tokArith
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokSemicolon
)

type token struct {
	kind tokenKind
	text string // raw source text
	val  string // decoded value for strings and quoted identifiers
	pos  int
}

// LexError reports text that is not made of recognisable tokens
type LexError struct {
	Pos      int
	Fragment string
	Reason   string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s at offset %d: %q", e.Reason, e.Pos, e.Fragment)
}

var wordTokens = map[string]tokenKind{
	"and": tokAnd,
	"or":  tokOr,
	"in":  tokIn,
	"not": tokNot,
}

// tokenize splits an expression into tokens. It never interprets them.
func tokenize(src string) ([]token, error) {
	var toks []token

	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])

		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}

				i += size
			}

			word := src[start:i]
			kind := tokIdent

			if k, ok := wordTokens[strings.ToLower(word)]; ok {
				kind = k
			}

			toks = append(toks, token{kind: kind, text: word, val: word, pos: start})

		case r >= '0' && r <= '9':
			start := i
			kind := tokInt

			for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == '_' || isLetterByte(src[i])) {
				if src[i] != '.' && !isDigit(src[i]) {
					return nil, &LexError{Pos: start, Fragment: src[start : i+1], Reason: "malformed number"}
				}

				if src[i] == '.' {
					kind = tokFloat
				}

				i++
			}

			toks = append(toks, token{kind: kind, text: src[start:i], pos: start})

		case r == '"' || r == '\'':
			val, end, err := scanQuoted(src, i, byte(r), true)
			if err != nil {
				return nil, err
			}

			toks = append(toks, token{kind: tokString, text: src[i:end], val: val, pos: i})
			i = end

		case r == '`':
			val, end, err := scanQuoted(src, i, '`', false)
			if err != nil {
				return nil, err
			}

			if val == "" {
				return nil, &LexError{Pos: i, Fragment: src[i:end], Reason: "empty quoted identifier"}
			}

			toks = append(toks, token{kind: tokQuotedIdent, text: src[i:end], val: val, pos: i})
			i = end

		default:
			tok, err := scanSymbol(src, i)
			if err != nil {
				return nil, err
			}

			toks = append(toks, tok)
			i += len(tok.text)
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: len(src)})

	return toks, nil
}

func scanSymbol(src string, i int) (token, error) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}

	switch two {
	case "==", "!=", "<=", ">=":
		return token{kind: tokCompare, text: two, pos: i}, nil
	case "&&":
		return token{kind: tokAnd, text: two, pos: i}, nil
	case "||":
		return token{kind: tokOr, text: two, pos: i}, nil
	case "<>":
		return token{kind: tokCompare, text: two, pos: i}, nil
	}

	one := src[i : i+1]

	switch one {
	case "<", ">":
		return token{kind: tokCompare, text: one, pos: i}, nil
	case "=":
		return token{kind: tokAssign, text: one, pos: i}, nil
	case "&":
		return token{kind: tokAnd, text: one, pos: i}, nil
	case "|":
		return token{kind: tokOr, text: one, pos: i}, nil
	case "-":
		return token{kind: tokMinus, text: one, pos: i}, nil
	case "+", "*", "/", "%", "!", "~", "^":
		return token{kind: tokArith, text: one, pos: i}, nil
	case "(":
		return token{kind: tokLParen, text: one, pos: i}, nil
	case ")":
		return token{kind: tokRParen, text: one, pos: i}, nil
	case "[":
		return token{kind: tokLBracket, text: one, pos: i}, nil
	case "]":
		return token{kind: tokRBracket, text: one, pos: i}, nil
	case ",":
		return token{kind: tokComma, text: one, pos: i}, nil
	case ".":
		return token{kind: tokDot, text: one, pos: i}, nil
	case ";":
		return token{kind: tokSemicolon, text: one, pos: i}, nil
	}

	r, _ := utf8.DecodeRuneInString(src[i:])

	return token{}, &LexError{Pos: i, Fragment: string(r), Reason: "unexpected character"}
}

// scanQuoted reads a quoted run starting at src[start] and returns the decoded
// value and the offset just past the closing quote
func scanQuoted(src string, start int, quote byte, escapes bool) (string, int, error) {
	var sb strings.Builder

	i := start + 1
	for i < len(src) {
		c := src[i]

		switch {
		case c == quote:
			return sb.String(), i + 1, nil
		case escapes && c == '\\' && i+1 < len(src):
			sb.WriteByte(src[i+1])
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}

	return "", 0, &LexError{Pos: start, Fragment: src[start:], Reason: "unterminated quote"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetterByte(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

