package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
)

const maxNesting = 32

// Validator parses filter expressions against a schema. It accepts only
// column references, literals, comparisons, literal-set membership and
// and/or, and rejects everything else with a ValidationError naming the
// offending fragment.
type Validator struct {
	schema *dataset.Schema
}

// NewValidator creates a validator bound to schema
func NewValidator(schema *dataset.Schema) *Validator {
	return &Validator{schema: schema}
}

// Validate parses expr into a predicate
func (v *Validator) Validate(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.NewValidationError("", "expression is empty")
	}

	toks, err := tokenize(expr)
	if err != nil {
		lexErr := err.(*LexError)
		return nil, errors.NewValidationError(lexErr.Fragment, "%s", lexErr.Reason)
	}

	p := &parser{toks: toks, schema: v.schema}

	pred, err := p.parseOr(0)
	if err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.kind {
	case tokEOF:
		return pred, nil
	case tokSemicolon:
		return nil, errors.NewValidationError(tok.text, "multiple statements are not allowed")
	default:
		return nil, errors.NewValidationError(strings.TrimSpace(expr[tok.pos:]), "unexpected input after a complete expression")
	}
}

type operand struct {
	column  *dataset.Column
	literal *dataset.Value
	tok     token
}

type parser struct {
	toks   []token
	pos    int
	schema *dataset.Schema
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}

	return t
}

func (p *parser) parseOr(depth int) (Predicate, error) {
	first, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}

	terms := []Predicate{first}

	for p.peek().kind == tokOr {
		p.next()

		t, err := p.parseAnd(depth)
		if err != nil {
			return nil, err
		}

		terms = append(terms, t)
	}

	if len(terms) == 1 {
		return first, nil
	}

	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd(depth int) (Predicate, error) {
	first, err := p.parsePrimary(depth)
	if err != nil {
		return nil, err
	}

	terms := []Predicate{first}

	for p.peek().kind == tokAnd {
		p.next()

		t, err := p.parsePrimary(depth)
		if err != nil {
			return nil, err
		}

		terms = append(terms, t)
	}

	if len(terms) == 1 {
		return first, nil
	}

	return And{Terms: terms}, nil
}

func (p *parser) parsePrimary(depth int) (Predicate, error) {
	tok := p.peek()

	switch tok.kind {
	case tokLParen:
		if depth >= maxNesting {
			return nil, errors.NewValidationError(tok.text, "expression nests too deeply")
		}

		p.next()

		inner, err := p.parseOr(depth + 1)
		if err != nil {
			return nil, err
		}

		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing, "expected ')'")
		}

		return inner, nil
	case tokNot:
		return nil, errors.NewValidationError(tok.text, "negation is not supported; use != instead")
	case tokEOF:
		return nil, errors.NewValidationError("", "expression ends where a condition was expected")
	}

	return p.parseCondition()
}

func (p *parser) parseCondition() (Predicate, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	tok := p.next()

	switch tok.kind {
	case tokCompare:
		return p.parseComparison(left, tok)
	case tokIn:
		return p.parseMembership(left)
	case tokNot:
		if p.peek().kind == tokIn {
			return nil, errors.NewValidationError(tok.text+" "+p.peek().text, "'not in' is not supported")
		}

		return nil, errors.NewValidationError(tok.text, "negation is not supported")
	case tokAssign:
		return nil, errors.NewValidationError(tok.text, "assignment is not allowed; use == to compare")
	case tokArith, tokMinus:
		return nil, errors.NewValidationError(tok.text, "arithmetic is not allowed")
	default:
		return nil, p.unexpected(tok, fmt.Sprintf("expected a comparison after %s", left.tok.text))
	}
}

func (p *parser) parseComparison(left operand, opTok token) (Predicate, error) {
	op := Op(opTok.text)

	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
	default:
		return nil, errors.NewValidationError(opTok.text, "unsupported operator")
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if next := p.peek(); next.kind == tokArith || next.kind == tokMinus {
		return nil, errors.NewValidationError(next.text, "arithmetic is not allowed")
	}

	col, lit := left, right

	switch {
	case left.column != nil && right.column != nil:
		return nil, errors.NewValidationError(left.tok.text+" "+opTok.text+" "+right.tok.text,
			"comparing two columns is not supported")
	case left.column == nil && right.column == nil:
		return nil, errors.NewValidationError(left.tok.text+" "+opTok.text+" "+right.tok.text,
			"a comparison must reference a column")
	case left.column == nil:
		col, lit = right, left
		op = op.flipped()
	}

	if err := checkKind(*col.column, *lit.literal, lit.tok); err != nil {
		return nil, err
	}

	if op.ordering() && col.column.Kind != dataset.KindInteger {
		return nil, errors.NewValidationError(col.tok.text+" "+opTok.text,
			"ordering comparisons need an integer column; %s holds text", col.column.Name)
	}

	return Comparison{Column: col.column.Name, Op: op, Value: *lit.literal}, nil
}

func (p *parser) parseMembership(left operand) (Predicate, error) {
	if left.column == nil {
		return nil, errors.NewValidationError(left.tok.text, "the left side of 'in' must be a column")
	}

	open := p.next()

	var closeKind tokenKind

	switch open.kind {
	case tokLBracket:
		closeKind = tokRBracket
	case tokLParen:
		closeKind = tokRParen
	default:
		return nil, p.unexpected(open, "expected a literal list after 'in'")
	}

	var values []dataset.Value

	for {
		if p.peek().kind == closeKind {
			if len(values) == 0 {
				return nil, errors.NewValidationError(open.text+p.peek().text, "an empty set is not allowed")
			}

			p.next()

			break
		}

		member, err := p.parseOperand()
		if err != nil {
			return nil, err
		}

		if member.literal == nil {
			return nil, errors.NewValidationError(member.tok.text, "set members must be literals")
		}

		if err := checkKind(*left.column, *member.literal, member.tok); err != nil {
			return nil, err
		}

		values = append(values, *member.literal)

		switch sep := p.peek(); sep.kind {
		case tokComma:
			p.next()
		case closeKind:
		default:
			return nil, p.unexpected(sep, "expected ',' or the end of the set")
		}
	}

	return Membership{Column: left.column.Name, Values: values}, nil
}

func (p *parser) parseOperand() (operand, error) {
	tok := p.next()

	switch tok.kind {
	case tokIdent, tokQuotedIdent:
		switch follow := p.peek(); follow.kind {
		case tokLParen:
			return operand{}, errors.NewValidationError(tok.text+"(", "function calls are not allowed")
		case tokDot, tokLBracket:
			return operand{}, errors.NewValidationError(tok.text+follow.text, "attribute and index access are not allowed")
		}

		if col, ok := p.schema.Lookup(tok.val); ok {
			return operand{column: &col, tok: tok}, nil
		}

		if tok.kind == tokIdent {
			switch strings.ToLower(tok.val) {
			case "true", "false", "none", "null", "nan":
				return operand{}, errors.NewValidationError(tok.text, "unsupported literal")
			}
		}

		return operand{}, errors.NewValidationError(tok.val, "unknown column").
			WithSuggestion("Known columns: " + strings.Join(p.schema.Names(), ", ")).
			WithSuggestion("Quote text values, e.g. Country == \"Spain\"")

	case tokString:
		v := dataset.Text(tok.val)
		return operand{literal: &v, tok: tok}, nil

	case tokInt:
		return p.intOperand(tok, tok.text)

	case tokMinus:
		num := p.peek()
		if num.kind == tokInt {
			p.next()
			return p.intOperand(token{kind: tokInt, text: "-" + num.text, pos: tok.pos}, "-"+num.text)
		}

		return operand{}, errors.NewValidationError(tok.text, "arithmetic is not allowed")

	case tokFloat:
		return operand{}, errors.NewValidationError(tok.text, "only whole numbers are supported")

	case tokLBracket, tokLParen:
		return operand{}, errors.NewValidationError(tok.text, "a literal list is only allowed after 'in'")

	default:
		return operand{}, p.unexpected(tok, "expected a column or a literal")
	}
}

func (p *parser) intOperand(tok token, text string) (operand, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return operand{}, errors.NewValidationError(text, "number is out of range")
	}

	v := dataset.Int(n)

	return operand{literal: &v, tok: tok}, nil
}

func (p *parser) unexpected(tok token, msg string) error {
	if tok.kind == tokEOF {
		return errors.NewValidationError("", "%s, found end of expression", msg)
	}

	return errors.NewValidationError(tok.text, "%s", msg)
}

func checkKind(col dataset.Column, lit dataset.Value, tok token) error {
	if lit.Kind() == col.Kind {
		return nil
	}

	return errors.NewValidationError(tok.text, "%s literal cannot be compared with %s column %s",
		lit.Kind(), col.Kind, col.Name)
}
