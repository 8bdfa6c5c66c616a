// Package dataset models the tabular records that queries run against.
package dataset

import (
	"strconv"
	"strings"

	"github.com/kyleking/slidefill/internal/errors"
)

// Kind is the type of every value in a column
type Kind int

const (
	KindText Kind = iota
	KindInteger
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is a single cell: an integer or a piece of text
type Value struct {
	kind Kind
	i    int64
	s    string
}

// Int returns an integer value
func Int(v int64) Value {
	return Value{kind: KindInteger, i: v}
}

// Text returns a text value
func Text(s string) Value {
	return Value{kind: KindText, s: s}
}

func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload; zero for text values
func (v Value) Int() int64 { return v.i }

// Text returns the text payload; empty for integer values
func (v Value) Text() string { return v.s }

// String renders the value the way it is written into documents
func (v Value) String() string {
	if v.kind == KindInteger {
		return strconv.FormatInt(v.i, 10)
	}

	return v.s
}

// Equal reports whether both values have the same kind and payload
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.i == o.i && v.s == o.s
}

// Column is a named, typed column
type Column struct {
	Name string
	Kind Kind
}

// Schema is an ordered set of uniquely named columns. It is immutable.
type Schema struct {
	columns []Column
	index   map[string]int
}

// NewSchema validates that names are non-empty and unique
func NewSchema(columns ...Column) (*Schema, error) {
	s := &Schema{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, errors.NewSchemaMismatchError("", "column %d has an empty name", i+1)
		}

		if _, dup := s.index[c.Name]; dup {
			return nil, errors.NewSchemaMismatchError(c.Name, "duplicate column name")
		}

		s.columns[i] = c
		s.index[c.Name] = i
	}

	return s, nil
}

// MustSchema is NewSchema for fixed, known-good column lists
func MustSchema(columns ...Column) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}

	return s
}

func (s *Schema) Len() int { return len(s.columns) }

// Columns returns a copy of the ordered columns
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)

	return out
}

// Names returns the ordered column names
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}

	return out
}

// Lookup finds a column by exact name
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}

	return s.columns[i], true
}

// Index returns the position of a column, or -1
func (s *Schema) Index(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}

	return i
}

// Require checks that every named column is present
func (s *Schema) Require(names ...string) error {
	var missing []string

	for _, n := range names {
		if _, ok := s.index[n]; !ok {
			missing = append(missing, n)
		}
	}

	if len(missing) > 0 {
		return errors.NewSchemaMismatchError(strings.Join(missing, ", "),
			"dataset is missing required columns (have: %s)", strings.Join(s.Names(), ", "))
	}

	return nil
}

// Record is one row, bound to its schema
type Record struct {
	schema *Schema
	values []Value
}

func (r Record) Schema() *Schema { return r.schema }

// Get returns the value of the named column
func (r Record) Get(name string) (Value, bool) {
	i := r.schema.Index(name)
	if i < 0 {
		return Value{}, false
	}

	return r.values[i], true
}

// Values returns a copy of the row values in schema order
func (r Record) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)

	return out
}

// Strings renders the row values in schema order
func (r Record) Strings() []string {
	out := make([]string, len(r.values))
	for i, v := range r.values {
		out[i] = v.String()
	}

	return out
}

// Dataset is an ordered, schema-checked list of records
type Dataset struct {
	schema  *Schema
	records []Record
}

// New builds a dataset, checking that every row matches the schema width and kinds
func New(schema *Schema, rows [][]Value) (*Dataset, error) {
	ds := &Dataset{
		schema:  schema,
		records: make([]Record, 0, len(rows)),
	}

	for i, row := range rows {
		if len(row) != schema.Len() {
			return nil, errors.Newf(errors.ErrTypeSchemaMismatch,
				"row %d has %d values, schema has %d columns", i, len(row), schema.Len())
		}

		for j, v := range row {
			col := schema.columns[j]
			if v.Kind() != col.Kind {
				return nil, errors.NewSchemaMismatchError(col.Name,
					"row %d holds a %s value in a %s column", i, v.Kind(), col.Kind)
			}
		}

		values := make([]Value, len(row))
		copy(values, row)
		ds.records = append(ds.records, Record{schema: schema, values: values})
	}

	return ds, nil
}

func (d *Dataset) Schema() *Schema { return d.schema }

func (d *Dataset) Len() int { return len(d.records) }

// Record returns the i-th record
func (d *Dataset) Record(i int) Record { return d.records[i] }

// Records returns the records in dataset order
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)

	return out
}
