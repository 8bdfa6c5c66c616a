package query

import (
	"strings"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
)

// ConstraintOp is the kind of a structured constraint
type ConstraintOp int

const (
	ConstraintRange ConstraintOp = iota
	ConstraintOneOf
	ConstraintEquals
)

// Constraint is one control-driven filter on a column
type Constraint struct {
	Column string
	Op     ConstraintOp
	Min    int64
	Max    int64
	Values []string
}

// InRange matches integer values between min and max inclusive
func InRange(column string, min, max int64) Constraint {
	return Constraint{Column: column, Op: ConstraintRange, Min: min, Max: max}
}

// OneOf matches any of values; no values matches nothing
func OneOf(column string, values ...string) Constraint {
	return Constraint{Column: column, Op: ConstraintOneOf, Values: values}
}

// Equals matches one exact value
func Equals(column, value string) Constraint {
	return Constraint{Column: column, Op: ConstraintEquals, Values: []string{value}}
}

// Parameters is a conjunction of constraints
type Parameters struct {
	Constraints []Constraint
}

// NewParameters groups constraints
func NewParameters(constraints ...Constraint) Parameters {
	return Parameters{Constraints: constraints}
}

// Compile checks every constraint against schema and builds the predicate.
// Any incompatibility fails the whole set before anything runs.
func (p Parameters) Compile(schema *dataset.Schema) (Predicate, error) {
	var missing []string

	for _, c := range p.Constraints {
		if _, ok := schema.Lookup(c.Column); !ok {
			missing = append(missing, c.Column)
		}
	}

	if len(missing) > 0 {
		return nil, errors.NewSchemaMismatchError(strings.Join(missing, ", "),
			"filter references columns the dataset does not have (have: %s)", strings.Join(schema.Names(), ", "))
	}

	terms := make([]Predicate, 0, len(p.Constraints))

	for _, c := range p.Constraints {
		col, _ := schema.Lookup(c.Column)

		term, err := c.compile(col)
		if err != nil {
			return nil, err
		}

		terms = append(terms, term)
	}

	return And{Terms: terms}, nil
}

func (c Constraint) compile(col dataset.Column) (Predicate, error) {
	switch c.Op {
	case ConstraintRange:
		if col.Kind != dataset.KindInteger {
			return nil, errors.NewSchemaMismatchError(col.Name, "range filter needs an integer column, %s holds text", col.Name)
		}

		if c.Min > c.Max {
			return nil, errors.Newf(errors.ErrTypeValidation, "range minimum %d exceeds maximum %d", c.Min, c.Max).
				WithSubject(col.Name)
		}

		return And{Terms: []Predicate{
			Comparison{Column: col.Name, Op: OpGe, Value: dataset.Int(c.Min)},
			Comparison{Column: col.Name, Op: OpLe, Value: dataset.Int(c.Max)},
		}}, nil

	case ConstraintOneOf, ConstraintEquals:
		values := make([]dataset.Value, 0, len(c.Values))

		for _, raw := range c.Values {
			v, err := coerce(col, raw)
			if err != nil {
				return nil, err
			}

			values = append(values, v)
		}

		if c.Op == ConstraintEquals && len(values) == 1 {
			return Comparison{Column: col.Name, Op: OpEq, Value: values[0]}, nil
		}

		return Membership{Column: col.Name, Values: values}, nil

	default:
		return nil, errors.Newf(errors.ErrTypeInternal, "unknown constraint kind %d", c.Op)
	}
}

// coerce converts a control value to the column's kind
func coerce(col dataset.Column, raw string) (dataset.Value, error) {
	if col.Kind == dataset.KindText {
		return dataset.Text(raw), nil
	}

	ds, _, err := dataset.Clean([]string{col.Name}, [][]string{{raw}})
	if err == nil && ds.Len() == 1 {
		if v, ok := ds.Record(0).Get(col.Name); ok && v.Kind() == dataset.KindInteger {
			return v, nil
		}
	}

	return dataset.Value{}, errors.NewSchemaMismatchError(col.Name, "value %q is not a whole number", raw)
}
