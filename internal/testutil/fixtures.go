// Package testutil provides fixtures and fakes shared by package tests
package testutil

import (
	"testing"
	"time"

	"github.com/kyleking/slidefill/internal/dataset"
)

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestRecipient is a valid share recipient
	TestRecipient = "reviewer@example.com"

	// TestTemplateID is a template identifier accepted by the fakes
	TestTemplateID = "template-123"
)

// EmployeeHeader is the header of the employee fixture table
var EmployeeHeader = []string{"ID", "Name", "Occupation", "Country", "Age"}

// EmployeeRows returns a fresh copy of the employee fixture rows
func EmployeeRows() [][]string {
	return [][]string{
		{"1", "Jon", "Engineer", "Spain", "34"},
		{"2", "Ana", "Data scientist", "UK", "29"},
		{"3", "Luis", "Designer", "Spain", "41"},
		{"4", "Mei", "Data scientist", "UK", "38"},
		{"5", "Jon", "Manager", "France", "52"},
		{"6", "Sara", "Engineer", "Germany", "25"},
	}
}

// EmployeeDataset builds the cleaned employee fixture
func EmployeeDataset(t testing.TB) *dataset.Dataset {
	t.Helper()

	return MustClean(t, EmployeeHeader, EmployeeRows())
}

// MustClean cleans raw rows and fails the test on error
func MustClean(t testing.TB, header []string, rows [][]string) *dataset.Dataset {
	t.Helper()

	ds, _, err := dataset.Clean(header, rows)
	if err != nil {
		t.Fatalf("failed to clean fixture: %v", err)
	}

	return ds
}

// Column returns the values of one column in record order
func Column(ds *dataset.Dataset, name string) []string {
	out := make([]string, 0, ds.Len())

	for _, rec := range ds.Records() {
		v, _ := rec.Get(name)
		out = append(out, v.String())
	}

	return out
}
