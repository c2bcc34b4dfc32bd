package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/querylift/internal/ir"
)

// Snapshot renders a result for golden comparison:
//
//	-- sql --
//	SELECT ...
//	-- parameters --
//	p0 integer[] [1,2]
//	-- shape --
//	rows
//
// Failed translations render an error section instead.
func Snapshot(r *Result) []byte {
	var b strings.Builder
	if r.ErrorCode != "" {
		fmt.Fprintf(&b, "-- error --\n%s\n", r.Error)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "-- sql --\n%s\n", r.SQL)
	if len(r.Parameters) > 0 {
		b.WriteString("-- parameters --\n")
		seen := make(map[string]bool)
		for _, p := range r.Parameters {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			fmt.Fprintf(&b, "%s %s %s\n", p.Name, p.StoreType, renderValue(p.Value))
		}
	}
	fmt.Fprintf(&b, "-- shape --\n%s\n", r.Shape)
	return []byte(b.String())
}

// renderValue prints driver values as canonical JSON where possible.
func renderValue(v any) string {
	iv, err := ir.FromGo(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	out, err := ir.MarshalCanonical(iv)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// RunWithGolden runs a scenario, fails the test on unmet expectations and
// compares the snapshot with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func (h *Harness) RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()

	result, err := h.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}
	for _, f := range result.Failures {
		t.Error(f)
	}
	AssertGolden(t, s.Name, result)
}

// AssertGolden compares a result's snapshot with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(result))
}
