package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// RunConcurrent calls fn from n goroutines and waits for all of them.
// A panic in any worker fails the test instead of crashing the binary.
func RunConcurrent(t *testing.T, n int, fn func(worker int)) {
	t.Helper()

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", i, r)
				}
			}()

			fn(i)
		}()
	}

	wg.Wait()
}

// WriteCSV writes the employee fixture, followed by extra raw lines, to a
// file in a temporary directory and returns its path
func WriteCSV(t testing.TB, extra ...string) string {
	t.Helper()

	lines := []string{strings.Join(EmployeeHeader, ",")}
	for _, row := range EmployeeRows() {
		lines = append(lines, strings.Join(row, ","))
	}

	lines = append(lines, extra...)

	path := filepath.Join(t.TempDir(), "employees.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write CSV fixture: %v", err)
	}

	return path
}
