package query

import (
	"strconv"
	"strings"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/storage"
)

// Op is a comparison operator
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// flipped returns the operator that keeps meaning when operands swap sides
func (o Op) flipped() Op {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return o
	}
}

func (o Op) ordering() bool {
	return o == OpLt || o == OpLe || o == OpGt || o == OpGe
}

func (o Op) sql() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	default:
		return string(o)
	}
}

// Predicate is a validated boolean expression over one record
type Predicate interface {
	Match(rec dataset.Record) bool
	String() string
	// Columns lists referenced columns in first-use order
	Columns() []string
}

// And matches when every term matches; no terms matches everything
type And struct {
	Terms []Predicate
}

// Or matches when any term matches; no terms matches nothing
type Or struct {
	Terms []Predicate
}

// Comparison compares a column against a literal
type Comparison struct {
	Column string
	Op     Op
	Value  dataset.Value
}

// Membership tests a column against a literal set; an empty set matches nothing
type Membership struct {
	Column string
	Values []dataset.Value
}

func (a And) Match(rec dataset.Record) bool {
	for _, t := range a.Terms {
		if !t.Match(rec) {
			return false
		}
	}

	return true
}

func (o Or) Match(rec dataset.Record) bool {
	for _, t := range o.Terms {
		if t.Match(rec) {
			return true
		}
	}

	return false
}

func (c Comparison) Match(rec dataset.Record) bool {
	v, ok := rec.Get(c.Column)
	if !ok || v.Kind() != c.Value.Kind() {
		return false
	}

	var cmp int
	if v.Kind() == dataset.KindInteger {
		switch {
		case v.Int() < c.Value.Int():
			cmp = -1
		case v.Int() > c.Value.Int():
			cmp = 1
		}
	} else {
		cmp = strings.Compare(v.Text(), c.Value.Text())
	}

	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}

func (m Membership) Match(rec dataset.Record) bool {
	v, ok := rec.Get(m.Column)
	if !ok {
		return false
	}

	for _, candidate := range m.Values {
		if v.Equal(candidate) {
			return true
		}
	}

	return false
}

func (a And) String() string { return joinTerms(a.Terms, " and ", "true") }

func (o Or) String() string { return joinTerms(o.Terms, " or ", "false") }

func (c Comparison) String() string {
	return formatColumn(c.Column) + " " + string(c.Op) + " " + formatLiteral(c.Value)
}

func (m Membership) String() string {
	lits := make([]string, len(m.Values))
	for i, v := range m.Values {
		lits[i] = formatLiteral(v)
	}

	return formatColumn(m.Column) + " in [" + strings.Join(lits, ", ") + "]"
}

func joinTerms(terms []Predicate, sep, empty string) string {
	if len(terms) == 0 {
		return empty
	}

	parts := make([]string, len(terms))
	for i, t := range terms {
		switch t.(type) {
		case And, Or:
			parts[i] = "(" + t.String() + ")"
		default:
			parts[i] = t.String()
		}
	}

	return strings.Join(parts, sep)
}

func (a And) Columns() []string { return termColumns(a.Terms) }

func (o Or) Columns() []string { return termColumns(o.Terms) }

func (c Comparison) Columns() []string { return []string{c.Column} }

func (m Membership) Columns() []string { return []string{m.Column} }

func termColumns(terms []Predicate) []string {
	seen := make(map[string]bool)

	var out []string

	for _, t := range terms {
		for _, c := range t.Columns() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}

	return out
}

func formatColumn(name string) string {
	if isPlainIdent(name) {
		return name
	}

	return "`" + name + "`"
}

func formatLiteral(v dataset.Value) string {
	if v.Kind() == dataset.KindInteger {
		return strconv.FormatInt(v.Int(), 10)
	}

	return strconv.Quote(v.Text())
}

func isPlainIdent(name string) bool {
	toks, err := tokenize(name)

	return err == nil && len(toks) == 2 && toks[0].kind == tokIdent && toks[0].text == name
}

// CompileSQL renders a predicate as a SQL boolean expression with positional
// parameters over a table loaded by storage.LoadDataset. Values are always bound.
func CompileSQL(p Predicate, schema *dataset.Schema) (string, []interface{}, error) {
	var args []interface{}

	where, err := compileSQL(p, schema, &args)
	if err != nil {
		return "", nil, err
	}

	return where, args, nil
}

func compileSQL(p Predicate, schema *dataset.Schema, args *[]interface{}) (string, error) {
	switch n := p.(type) {
	case And:
		return compileTerms(n.Terms, " AND ", "TRUE", schema, args)
	case Or:
		return compileTerms(n.Terms, " OR ", "FALSE", schema, args)
	case Comparison:
		col, err := sqlColumn(schema, n.Column)
		if err != nil {
			return "", err
		}

		*args = append(*args, storage.SQLValue(n.Value))

		return col + " " + n.Op.sql() + " ?", nil
	case Membership:
		col, err := sqlColumn(schema, n.Column)
		if err != nil {
			return "", err
		}

		if len(n.Values) == 0 {
			return "FALSE", nil
		}

		marks := make([]string, len(n.Values))
		for i, v := range n.Values {
			marks[i] = "?"
			*args = append(*args, storage.SQLValue(v))
		}

		return col + " IN (" + strings.Join(marks, ", ") + ")", nil
	default:
		return "", errors.Newf(errors.ErrTypeInternal, "cannot compile predicate %T", p)
	}
}

func sqlColumn(schema *dataset.Schema, name string) (string, error) {
	i := schema.Index(name)
	if i < 0 {
		return "", errors.New(errors.ErrTypeValidation, "unknown column").WithSubject(name)
	}

	return storage.QuoteIdent(storage.ColumnName(i)), nil
}

func compileTerms(terms []Predicate, sep, empty string, schema *dataset.Schema, args *[]interface{}) (string, error) {
	if len(terms) == 0 {
		return empty, nil
	}

	parts := make([]string, len(terms))
	for i, t := range terms {
		part, err := compileSQL(t, schema, args)
		if err != nil {
			return "", err
		}

		parts[i] = part
	}

	return "(" + strings.Join(parts, sep) + ")", nil
}
