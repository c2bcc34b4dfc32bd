package typemap

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/querylift/internal/ir"
)

// Registry maps host types to store mappings.
//
// Scalar mappings are fixed at construction. Array, range and composite
// mappings are derived on first use and cached by store type, so a Registry
// is safe to share between concurrent compilations.
type Registry struct {
	scalars map[Kind]*Mapping

	mu      sync.Mutex
	derived map[string]*Mapping
}

// rangeStores maps range subtypes to their built-in range store types.
var rangeStores = map[Kind]string{
	KindInt:       "int4range",
	KindBigInt:    "int8range",
	KindDecimal:   "numrange",
	KindDouble:    "numrange",
	KindTimestamp: "tstzrange",
	KindDate:      "daterange",
}

// NewRegistry creates a registry with the built-in PostgreSQL mappings.
func NewRegistry() *Registry {
	r := &Registry{
		scalars: make(map[Kind]*Mapping),
		derived: make(map[string]*Mapping),
	}

	scalar := func(k Kind, store string, lit LiteralFormatter, param ParameterFormatter, style LiteralStyle) {
		r.scalars[k] = &Mapping{Kind: k, StoreType: store, Literal: lit, Param: param, Style: style}
	}

	scalar(KindInt, "integer", intLiteral, intParam, LiteralBare)
	scalar(KindBigInt, "bigint", intLiteral, intParam, LiteralBare)
	scalar(KindSmallInt, "smallint", intLiteral, intParam, LiteralBare)
	scalar(KindDouble, "double precision", floatLiteral, floatParam, LiteralBare)
	scalar(KindReal, "real", floatLiteral, floatParam, LiteralBare)
	scalar(KindDecimal, "numeric", floatLiteral, floatParam, LiteralBare)
	scalar(KindText, "text", textLiteral, textParam, LiteralBare)
	scalar(KindBool, "boolean", boolLiteral, boolParam, LiteralBare)
	scalar(KindUUID, "uuid", uuidLiteral, uuidParam, LiteralBare)
	scalar(KindTimestamp, "timestamp with time zone", timestampLiteral, timestampParam, LiteralTagged)
	scalar(KindDate, "date", dateLiteral, textParam, LiteralTagged)
	scalar(KindBytes, "bytea", bytesLiteral, bytesParam, LiteralTagged)
	scalar(KindJSON, "json", jsonLiteral, jsonParam, LiteralTagged)
	scalar(KindJSONB, "jsonb", jsonLiteral, jsonParam, LiteralTagged)
	scalar(KindHstore, "hstore", quoteAfter(hstoreText), textAfter(hstoreText), LiteralTagged)
	scalar(KindInet, "inet", quoteAfter(networkText(KindInet)), textAfter(networkText(KindInet)), LiteralTagged)
	scalar(KindCidr, "cidr", quoteAfter(networkText(KindCidr)), textAfter(networkText(KindCidr)), LiteralTagged)
	scalar(KindMacAddr, "macaddr", quoteAfter(macText), textAfter(macText), LiteralTagged)
	scalar(KindMacAddr8, "macaddr8", quoteAfter(macText), textAfter(macText), LiteralTagged)
	scalar(KindTsVector, "tsvector", quotedLiteral, textParam, LiteralTagged)
	scalar(KindTsQuery, "tsquery", quotedLiteral, textParam, LiteralTagged)
	scalar(KindRegConfig, "regconfig", quotedLiteral, textParam, LiteralTagged)

	return r
}

// Bool returns the boolean mapping used for predicates.
func (r *Registry) Bool() *Mapping { return r.scalars[KindBool] }

// Scalar returns the mapping of a scalar kind.
func (r *Registry) Scalar(k Kind) (*Mapping, bool) {
	m, ok := r.scalars[k]
	return m, ok
}

// MustFind is like Find but panics on error.
// Use only in tests or when the type is known to be mappable.
func (r *Registry) MustFind(t Type) *Mapping {
	m, err := r.Find(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Find resolves the mapping of a host type.
func (r *Registry) Find(t Type) (*Mapping, error) {
	switch t.Kind {
	case "":
		return nil, fmt.Errorf("type has no kind")
	case KindEntity:
		return nil, fmt.Errorf("entity rows have no store mapping")
	case KindStruct, KindList:
		return r.scalars[Kind(t.JSONStore())], nil
	case KindArray:
		if t.Elem == nil {
			return nil, fmt.Errorf("array type has no element type")
		}
		elem, err := r.Find(*t.Elem)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return r.ArrayOf(elem), nil
	case KindRange:
		if t.Elem == nil {
			return nil, fmt.Errorf("range type has no subtype")
		}
		store, ok := rangeStores[t.Elem.Kind]
		if !ok {
			return nil, fmt.Errorf("no built-in range over %s", t.Elem.Kind)
		}
		sub, err := r.Find(*t.Elem)
		if err != nil {
			return nil, err
		}
		return r.derive(store, func() *Mapping {
			return &Mapping{
				Kind:      KindRange,
				StoreType: store,
				Element:   sub,
				Literal:   quoteAfter(rangeText(sub)),
				Param:     textAfter(rangeText(sub)),
				Style:     LiteralTagged,
			}
		}), nil
	case KindComposite:
		if t.Store == "" {
			return nil, fmt.Errorf("composite type has no store type name")
		}
		if t.Struct == nil {
			if m, ok := r.FindStore(t.Store); ok {
				return m, nil
			}
			return nil, fmt.Errorf("composite type %s is not registered", t.Store)
		}
		s := t.Struct
		return r.derive(t.Store, func() *Mapping {
			return &Mapping{
				Kind:        KindComposite,
				StoreType:   t.Store,
				Literal:     compositeLiteral(s.Properties, r.Find),
				Param:       compositeParam(s.Properties, r.Find),
				Style:       LiteralCast,
				PerValueSQL: true,
				Fields:      s.Properties,
			}
		}), nil
	}

	m, ok := r.scalars[t.Kind]
	if !ok {
		return nil, fmt.Errorf("no mapping for kind %s", t.Kind)
	}
	return m, nil
}

// ArrayOf returns the array mapping whose elements use elem.
func (r *Registry) ArrayOf(elem *Mapping) *Mapping {
	store := elem.StoreType + "[]"
	return r.derive(store, func() *Mapping {
		return &Mapping{
			Kind:        KindArray,
			StoreType:   store,
			Element:     elem,
			Comparer:    ir.Equal,
			Literal:     arrayLiteral(elem),
			Param:       arrayParam(elem),
			Style:       LiteralCast,
			PerValueSQL: elem.PerValueSQL,
		}
	})
}

// MultirangeOf returns the multirange mapping over a range mapping
// (int4range -> int4multirange).
func (r *Registry) MultirangeOf(rng *Mapping) *Mapping {
	store := strings.Replace(rng.StoreType, "range", "multirange", 1)
	return r.derive(store, func() *Mapping {
		return &Mapping{Kind: KindMultirange, StoreType: store, Element: rng}
	})
}

// FindStore looks up a mapping by store type name.
func (r *Registry) FindStore(storeType string) (*Mapping, bool) {
	for _, m := range r.scalars {
		if m.StoreType == storeType {
			return m, true
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.derived[storeType]
	return m, ok
}

// Register adds a custom mapping (typically a composite record type).
func (r *Registry) Register(m *Mapping) error {
	if m == nil || m.StoreType == "" {
		return fmt.Errorf("mapping needs a store type")
	}
	if _, exists := r.FindStore(m.StoreType); exists {
		return fmt.Errorf("store type %s already registered", m.StoreType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.derived[m.StoreType] = m
	return nil
}

func (r *Registry) derive(store string, build func() *Mapping) *Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.derived[store]; ok {
		return m
	}
	m := build()
	r.derived[store] = m
	return m
}

// Compatible reports whether values of a and b can meet in one comparison
// or operator without an explicit conversion.
func Compatible(a, b *Mapping) bool {
	if a == nil || b == nil {
		return false
	}
	if a.StoreType == b.StoreType {
		return true
	}
	ca, cb := CategoryOf(a.Kind), CategoryOf(b.Kind)
	switch {
	case ca == CategoryNumeric && cb == CategoryNumeric:
		return true
	case isAddress(a.Kind) && isAddress(b.Kind):
		return true
	case a.Kind == KindArray && b.Kind == KindArray:
		return Compatible(a.Element, b.Element)
	case (a.Kind == KindJSON || a.Kind == KindJSONB) && (b.Kind == KindJSON || b.Kind == KindJSONB):
		return true
	}
	return false
}

func isAddress(k Kind) bool {
	return k == KindInet || k == KindCidr
}
