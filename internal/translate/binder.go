package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// Slot is one bound parameter of a plan.
//
// A slot takes its value from a captured variable (Captured) or from a
// list of elements folded into one array (Elements).
type Slot struct {
	Name      string
	StoreType string
	Captured  string
	Elements  []sqlexpr.ParamElement

	mapping *typemap.Mapping
}

// Mapping returns the type mapping used to format the slot's value.
func (s *Slot) Mapping() *typemap.Mapping { return s.mapping }

// binder names parameters in print order.
type binder struct {
	prefix string
	names  map[string]string // parameter key -> name
	used   map[string]bool
	anon   int
	slots  []*Slot
}

func newBinder(prefix string) *binder {
	if prefix == "" {
		prefix = "p"
	}
	return &binder{
		prefix: prefix,
		names:  make(map[string]string),
		used:   make(map[string]bool),
	}
}

// sanitize keeps [A-Za-z0-9_] and makes sure the name does not start with
// a digit.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

func (b *binder) fresh(hint string) string {
	if hint != "" {
		if !b.used[hint] {
			return hint
		}
		for i := 1; ; i++ {
			name := hint + "_" + strconv.Itoa(i)
			if !b.used[name] {
				return name
			}
		}
	}
	for {
		name := b.prefix + strconv.Itoa(b.anon)
		b.anon++
		if !b.used[name] {
			return name
		}
	}
}

// bind assigns a name to every parameter of q. Parameters with equal keys
// share one name and one slot. The tree is modified in place.
func (b *binder) bind(q sqlexpr.Query) []*Slot {
	sqlexpr.WalkQuery(q, func(e sqlexpr.Expr) bool {
		p, ok := e.(*sqlexpr.Parameter)
		if !ok {
			return true
		}
		if name, ok := b.names[p.Key]; ok {
			p.Name = name
			return true
		}
		name := b.fresh(sanitize(p.Hint))
		b.used[name] = true
		b.names[p.Key] = name
		p.Name = name
		b.slots = append(b.slots, &Slot{
			Name:      name,
			StoreType: p.Mapping().StoreType,
			Captured:  p.Captured,
			Elements:  p.Elements,
			mapping:   p.Mapping(),
		})
		return true
	})
	return b.slots
}

// resolve computes the host value of a slot from the captured values of
// one execution.
func (s *Slot) resolve(captured map[string]ir.IRValue) (ir.IRValue, error) {
	switch {
	case s.Captured != "":
		v, ok := captured[s.Captured]
		if !ok {
			return nil, fmt.Errorf("parameter %s: captured value %q not supplied", s.Name, s.Captured)
		}
		return v, nil
	case s.Elements != nil:
		arr := make(ir.IRArray, len(s.Elements))
		for i, el := range s.Elements {
			if el.Captured == "" {
				arr[i] = el.Value
				continue
			}
			v, ok := captured[el.Captured]
			if !ok {
				return nil, fmt.Errorf("parameter %s: captured value %q not supplied", s.Name, el.Captured)
			}
			arr[i] = v
		}
		return arr, nil
	}
	return ir.IRNull{}, nil
}
