package translate

import (
	"fmt"

	"github.com/roach88/querylift/internal/typemap"
)

// Receiver kinds that are not store kinds.
const (
	// KindStatic is the receiver kind of free functions (ToTsVector, Join).
	KindStatic typemap.Kind = "static"

	// KindGroup is the receiver kind of a grouping inside a GroupBy
	// projection (g.Key, g.Count(), g.Sum(...)).
	KindGroup typemap.Kind = "group"
)

// Variadic matches any number of arguments.
const Variadic = -1

// Shape identifies a call for translator lookup.
type Shape struct {
	Receiver typemap.Kind
	Method   string
	Arity    int
}

func (s Shape) String() string {
	return fmt.Sprintf("%s.%s/%d", s.Receiver, s.Method, s.Arity)
}

// TranslateFunc turns one recognized call into SQL. It returns (nil, nil) when
// the call is not applicable to the given operands.
type TranslateFunc func(c *Context, inv *Invocation) (*Value, error)

// Invocation is a call whose receiver and non-lambda arguments have already
// been translated. Lambda arguments are passed untranslated in Value.Lambda
// so the translator can bind them against its own row source.
type Invocation struct {
	Method   string
	Receiver *Value
	Args     []*Value
}

// Arg returns the i-th argument, or nil.
func (inv *Invocation) Arg(i int) *Value {
	if i < len(inv.Args) {
		return inv.Args[i]
	}
	return nil
}

type level int

const (
	levelExact level = iota
	levelCategory
	levelAny
)

// Pattern is a registration key. Exactly one of Kind, Category or
// AnyReceiver selects the receiver; Arity is the argument count or Variadic.
type Pattern struct {
	Kind        typemap.Kind
	Category    typemap.Category
	AnyReceiver bool
	Method      string
	Arity       int
}

// Exact matches one receiver kind.
func Exact(kind typemap.Kind, method string, arity int) Pattern {
	return Pattern{Kind: kind, Method: method, Arity: arity}
}

// InCategory matches every receiver kind of a category.
func InCategory(cat typemap.Category, method string, arity int) Pattern {
	return Pattern{Category: cat, Method: method, Arity: arity}
}

// AnyKind matches every non-static receiver.
func AnyKind(method string, arity int) Pattern {
	return Pattern{AnyReceiver: true, Method: method, Arity: arity}
}

// Static matches a free function.
func Static(method string, arity int) Pattern {
	return Pattern{Kind: KindStatic, Method: method, Arity: arity}
}

func (p Pattern) level() (level, string, error) {
	set := 0
	var lv level
	var subject string
	if p.Kind != "" {
		set++
		lv, subject = levelExact, string(p.Kind)
	}
	if p.Category != typemap.CategoryNone {
		set++
		lv, subject = levelCategory, string(p.Category)
	}
	if p.AnyReceiver {
		set++
		lv, subject = levelAny, "*"
	}
	if set != 1 {
		return 0, "", fmt.Errorf("pattern %s must select exactly one receiver form", p.Method)
	}
	return lv, subject, nil
}

type entryKey struct {
	level   level
	subject string
	method  string
}

type entry struct {
	arity int
	fn    TranslateFunc
}

// Recognizer dispatches call shapes to translators.
//
// Resolution prefers an exact receiver-kind match over a category match,
// and a category match over an any-receiver match. Two matches at the same
// level are reported as AmbiguousTranslation.
type Recognizer struct {
	entries map[entryKey][]entry
	count   int
}

// NewRecognizer creates an empty recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{entries: make(map[entryKey][]entry)}
}

// DefaultRecognizer returns a recognizer with every built-in family
// registered.
func DefaultRecognizer() *Recognizer {
	r := NewRecognizer()
	for _, register := range []func(*Recognizer){
		registerScalar,
		registerCollection,
		registerHstore,
		registerJSON,
		registerRange,
		registerNetwork,
		registerFullText,
		registerGroup,
	} {
		register(r)
	}
	return r
}

// Register adds a translator. Registering the same pattern twice is an
// error.
func (r *Recognizer) Register(p Pattern, fn TranslateFunc) error {
	if p.Method == "" {
		return fmt.Errorf("pattern has no method name")
	}
	if fn == nil {
		return fmt.Errorf("pattern %s has no translator", p.Method)
	}
	lv, subject, err := p.level()
	if err != nil {
		return err
	}
	key := entryKey{level: lv, subject: subject, method: p.Method}
	for _, e := range r.entries[key] {
		if e.arity == p.Arity || e.arity == Variadic || p.Arity == Variadic {
			return fmt.Errorf("translator for %s.%s/%d already registered", subject, p.Method, p.Arity)
		}
	}
	r.entries[key] = append(r.entries[key], entry{arity: p.Arity, fn: fn})
	r.count++
	return nil
}

// MustRegister is like Register but panics on error. Use it for built-in
// tables that are known to be consistent.
func (r *Recognizer) MustRegister(p Pattern, fn TranslateFunc) {
	if err := r.Register(p, fn); err != nil {
		panic(err)
	}
}

// Len returns the number of registered translators.
func (r *Recognizer) Len() int { return r.count }

// Resolve finds the translator for a call shape. It returns (nil, nil) when
// nothing matches.
func (r *Recognizer) Resolve(s Shape) (TranslateFunc, error) {
	type tier struct {
		lv       level
		subjects []string
	}
	tiers := []tier{{levelExact, []string{string(s.Receiver)}}}
	if s.Receiver != KindStatic {
		var cats []string
		for _, c := range typemap.Categories(s.Receiver) {
			cats = append(cats, string(c))
		}
		tiers = append(tiers, tier{levelCategory, cats}, tier{levelAny, []string{"*"}})
	}

	for _, t := range tiers {
		var found []TranslateFunc
		for _, subject := range t.subjects {
			for _, e := range r.entries[entryKey{level: t.lv, subject: subject, method: s.Method}] {
				if e.arity == s.Arity || e.arity == Variadic {
					found = append(found, e.fn)
				}
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return nil, NewAmbiguousError(s.Method, string(s.Receiver), len(found))
		}
	}
	return nil, nil
}
