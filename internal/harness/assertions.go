package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/querylift/internal/execute"
	"github.com/roach88/querylift/internal/translate"
)

// checkError handles scenarios whose translation failed.
func checkError(exp Expect, r *Result) {
	if exp.Error == "" {
		r.AddFailure(fmt.Sprintf("translation failed: %s", r.Error))
		return
	}
	if string(r.ErrorCode) != exp.Error {
		r.AddFailure(fmt.Sprintf("error code: expected %s, got %s (%s)", exp.Error, r.ErrorCode, r.Error))
	}
}

// checkExpect applies every expectation to a successful translation.
func checkExpect(exp Expect, r *Result) {
	if exp.Error != "" {
		r.AddFailure(fmt.Sprintf("expected error %s, translation succeeded", exp.Error))
		return
	}
	if exp.SQL != "" && strings.TrimSpace(exp.SQL) != r.SQL {
		r.AddFailure(fmt.Sprintf("sql: expected\n%s\ngot\n%s", strings.TrimSpace(exp.SQL), r.SQL))
	}
	for _, want := range exp.Contains {
		if !strings.Contains(r.SQL, want) {
			r.AddFailure(fmt.Sprintf("sql does not contain %q:\n%s", want, r.SQL))
		}
	}
	for _, unwanted := range exp.NotContains {
		if strings.Contains(r.SQL, unwanted) {
			r.AddFailure(fmt.Sprintf("sql contains %q:\n%s", unwanted, r.SQL))
		}
	}
	if exp.Shape != "" && translate.ResultShape(exp.Shape) != r.Shape {
		r.AddFailure(fmt.Sprintf("shape: expected %s, got %s", exp.Shape, r.Shape))
	}
	if len(exp.Parameters) > 0 {
		checkParameters(exp.Parameters, r)
	}
	if len(exp.Rows) > 0 && r.Rows != nil {
		checkRows(exp.Rows, r.Rows, r)
	}
}

// checkParameters compares the distinct parameters in first-use order.
func checkParameters(want []ParameterSpec, r *Result) {
	var got []translate.Parameter
	seen := make(map[string]bool)
	for _, p := range r.Parameters {
		if !seen[p.Name] {
			seen[p.Name] = true
			got = append(got, p)
		}
	}
	if len(got) != len(want) {
		r.AddFailure(fmt.Sprintf("parameters: expected %d, got %d", len(want), len(got)))
		return
	}
	for i, w := range want {
		g := got[i]
		if w.Name != g.Name {
			r.AddFailure(fmt.Sprintf("parameter %d: expected name %s, got %s", i, w.Name, g.Name))
		}
		if w.StoreType != "" && w.StoreType != g.StoreType {
			r.AddFailure(fmt.Sprintf("parameter %s: expected store type %s, got %s", w.Name, w.StoreType, g.StoreType))
		}
		if w.Value != nil && !valuesEqual(w.Value, g.Value) {
			r.AddFailure(fmt.Sprintf("parameter %s: expected value %v, got %v", w.Name, w.Value, g.Value))
		}
	}
}

// checkRows compares rows in order. Only the columns named in each
// expected row are checked.
func checkRows(want []map[string]any, got []execute.Row, r *Result) {
	if len(want) != len(got) {
		r.AddFailure(fmt.Sprintf("rows: expected %d, got %d", len(want), len(got)))
		return
	}
	for i, w := range want {
		for col, wv := range w {
			gv, ok := got[i][col]
			if !ok {
				r.AddFailure(fmt.Sprintf("row %d: missing column %s", i, col))
				continue
			}
			if !valuesEqual(wv, gv) {
				r.AddFailure(fmt.Sprintf("row %d column %s: expected %v, got %v", i, col, wv, gv))
			}
		}
	}
}

// valuesEqual compares a YAML value with a driver value. Numbers compare
// by value regardless of width; booleans match SQLite's 0 and 1.
func valuesEqual(want, got any) bool {
	if want == nil || got == nil {
		return want == nil && got == nil
	}
	if wb, ok := want.(bool); ok {
		if gb, ok := got.(bool); ok {
			return wb == gb
		}
		if gn, ok := toFloat(got); ok {
			return (gn != 0) == wb
		}
		return false
	}
	if wn, ok := toFloat(want); ok {
		gn, ok := toFloat(got)
		return ok && wn == gn
	}
	if ws, ok := want.([]any); ok {
		gs, ok := got.([]any)
		if !ok || len(ws) != len(gs) {
			return false
		}
		for i := range ws {
			if !valuesEqual(ws[i], gs[i]) {
				return false
			}
		}
		return true
	}
	if ws, ok := want.(string); ok {
		return ws == fmt.Sprint(got)
	}
	return reflect.DeepEqual(want, got)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
