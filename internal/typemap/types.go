package typemap

import (
	"fmt"
	"strings"
)

// Kind is the declared value kind of a host property or expression.
type Kind string

const (
	KindInt       Kind = "int"
	KindBigInt    Kind = "bigint"
	KindSmallInt  Kind = "smallint"
	KindDouble    Kind = "double"
	KindReal      Kind = "real"
	KindDecimal   Kind = "decimal"
	KindText      Kind = "text"
	KindBool      Kind = "bool"
	KindUUID      Kind = "uuid"
	KindTimestamp Kind = "timestamp"
	KindDate      Kind = "date"
	KindBytes     Kind = "bytes"
	KindJSON      Kind = "json"
	KindJSONB     Kind = "jsonb"
	KindArray     Kind = "array"
	KindHstore    Kind = "hstore"
	KindRange     Kind = "range"
	KindInet      Kind = "inet"
	KindCidr      Kind = "cidr"
	KindMacAddr   Kind = "macaddr"
	KindMacAddr8  Kind = "macaddr8"
	KindTsVector  Kind = "tsvector"
	KindTsQuery   Kind = "tsquery"
	KindRegConfig Kind = "regconfig"
	KindComposite Kind = "composite"

	// KindMultirange is produced by range aggregates only; host values
	// never carry it.
	KindMultirange Kind = "multirange"

	// Host-only kinds. They have no store mapping of their own.
	KindEntity Kind = "entity"
	KindStruct Kind = "struct"
	KindList   Kind = "list"
)

// Category groups kinds that share a generic operation surface.
type Category string

const (
	CategoryNone       Category = ""
	CategoryNumeric    Category = "numeric"
	CategoryCollection Category = "collection"
	CategoryRange      Category = "range"
	CategoryNetwork    Category = "network"
	CategoryJSON       Category = "json"
	CategoryTextSearch Category = "text-search"
)

// CategoryOf returns the generic category of k.
func CategoryOf(k Kind) Category {
	switch k {
	case KindInt, KindBigInt, KindSmallInt, KindDouble, KindReal, KindDecimal:
		return CategoryNumeric
	case KindArray, KindList:
		return CategoryCollection
	case KindRange, KindMultirange:
		return CategoryRange
	case KindInet, KindCidr, KindMacAddr, KindMacAddr8:
		return CategoryNetwork
	case KindJSON, KindJSONB, KindStruct:
		return CategoryJSON
	case KindTsVector, KindTsQuery:
		return CategoryTextSearch
	}
	return CategoryNone
}

// Categories returns every category k belongs to. JSON-owned lists are
// both collections and JSON documents.
func Categories(k Kind) []Category {
	if k == KindList {
		return []Category{CategoryCollection, CategoryJSON}
	}
	if c := CategoryOf(k); c != CategoryNone {
		return []Category{c}
	}
	return nil
}

// Type is a host-side type: a kind plus nullability and structure.
type Type struct {
	Kind     Kind
	Nullable bool

	// Elem is the element type of arrays and lists, and the subtype of ranges.
	Elem *Type

	// Struct describes entity rows and owned JSON objects.
	Struct *Struct

	// Store optionally overrides the store type (e.g. "json" instead of the
	// default "jsonb" for owned JSON documents, or a composite type name).
	Store string
}

// String renders the type for diagnostics, e.g. "int?[]" or "range<int>".
func (t Type) String() string {
	var b strings.Builder
	switch t.Kind {
	case KindArray:
		if t.Elem != nil {
			b.WriteString(t.Elem.String())
		}
		b.WriteString("[]")
	case KindList:
		b.WriteString("list<")
		if t.Elem != nil {
			b.WriteString(t.Elem.String())
		}
		b.WriteString(">")
	case KindRange:
		b.WriteString("range<")
		if t.Elem != nil {
			b.WriteString(t.Elem.String())
		}
		b.WriteString(">")
	case KindStruct, KindEntity:
		if t.Struct != nil {
			b.WriteString(t.Struct.Name)
		} else {
			b.WriteString(string(t.Kind))
		}
	default:
		b.WriteString(string(t.Kind))
	}
	if t.Nullable {
		b.WriteString("?")
	}
	return b.String()
}

// WithNullable returns a copy of t with the given nullability.
func (t Type) WithNullable(nullable bool) Type {
	t.Nullable = nullable
	return t
}

// ElemType returns the element type, or the zero Type when t has none.
func (t Type) ElemType() Type {
	if t.Elem == nil {
		return Type{}
	}
	return *t.Elem
}

// IsJSONDocument reports whether values of t are stored as a JSON document.
func (t Type) IsJSONDocument() bool {
	switch t.Kind {
	case KindJSON, KindJSONB, KindStruct, KindList:
		return true
	}
	return false
}

// JSONStore returns the JSON storage subtype ("json" or "jsonb") of t.
func (t Type) JSONStore() string {
	if t.Kind == KindJSON || t.Store == "json" {
		return "json"
	}
	return "jsonb"
}

// Scalar constructors.
func Int() Type       { return Type{Kind: KindInt} }
func BigInt() Type    { return Type{Kind: KindBigInt} }
func SmallInt() Type  { return Type{Kind: KindSmallInt} }
func Double() Type    { return Type{Kind: KindDouble} }
func Real() Type      { return Type{Kind: KindReal} }
func Decimal() Type   { return Type{Kind: KindDecimal} }
func Text() Type      { return Type{Kind: KindText} }
func Bool() Type      { return Type{Kind: KindBool} }
func UUID() Type      { return Type{Kind: KindUUID} }
func Timestamp() Type { return Type{Kind: KindTimestamp} }
func Date() Type      { return Type{Kind: KindDate} }
func Bytes() Type     { return Type{Kind: KindBytes} }
func JSON() Type      { return Type{Kind: KindJSON} }
func JSONB() Type     { return Type{Kind: KindJSONB} }
func Hstore() Type    { return Type{Kind: KindHstore} }
func Inet() Type      { return Type{Kind: KindInet} }
func Cidr() Type      { return Type{Kind: KindCidr} }
func MacAddr() Type   { return Type{Kind: KindMacAddr} }
func MacAddr8() Type  { return Type{Kind: KindMacAddr8} }
func TsVector() Type  { return Type{Kind: KindTsVector} }
func TsQuery() Type   { return Type{Kind: KindTsQuery} }
func RegConfig() Type { return Type{Kind: KindRegConfig} }

// Nullable marks t as nullable.
func Nullable(t Type) Type { return t.WithNullable(true) }

// ArrayOf returns a native array type of elem.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// RangeOf returns a range type over the given subtype.
func RangeOf(subtype Type) Type {
	return Type{Kind: KindRange, Elem: &subtype}
}

// StructOf returns an owned JSON object type stored in store ("json"/"jsonb").
func StructOf(s *Struct, store string) Type {
	return Type{Kind: KindStruct, Struct: s, Store: store}
}

// ListOf returns a JSON-owned collection of elem stored in store.
func ListOf(elem Type, store string) Type {
	return Type{Kind: KindList, Elem: &elem, Store: store}
}

// EntityOf returns the row type of an entity set.
func EntityOf(s *Struct) Type {
	return Type{Kind: KindEntity, Struct: s}
}

// CompositeOf returns a user-defined record type.
func CompositeOf(s *Struct, storeType string) Type {
	return Type{Kind: KindComposite, Struct: s, Store: storeType}
}

// Struct describes an entity set or an owned JSON object type.
type Struct struct {
	Name string

	// Table is set for entity sets; owned JSON types have no table.
	Table  string
	Schema string

	// Key lists the properties identifying a row of an entity set. When
	// empty, a property named Id is the key if there is one.
	Key []string

	Properties []*Property
}

// Property is a declared member of a Struct.
type Property struct {
	Name string

	// Column is the database column for entity properties and the JSON key
	// for owned JSON properties. Defaults to Name.
	Column string

	Type Type
}

// ColumnName returns the column (or JSON key) of p.
func (p *Property) ColumnName() string {
	if p.Column != "" {
		return p.Column
	}
	return p.Name
}

// Property looks up a property by host name.
func (s *Struct) Property(name string) (*Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// KeyProperties returns the properties identifying a row, or nil when the
// struct has no key.
func (s *Struct) KeyProperties() []*Property {
	if len(s.Key) == 0 {
		if p, ok := s.Property("Id"); ok {
			return []*Property{p}
		}
		return nil
	}
	props := make([]*Property, 0, len(s.Key))
	for _, name := range s.Key {
		p, ok := s.Property(name)
		if !ok {
			return nil
		}
		props = append(props, p)
	}
	return props
}

// Model is the set of entity sets known to a compilation.
type Model struct {
	entities map[string]*Struct
	order    []string
}

// NewModel creates a model from entity structs.
func NewModel(entities ...*Struct) (*Model, error) {
	m := &Model{entities: make(map[string]*Struct, len(entities))}
	for _, e := range entities {
		if err := m.Add(e); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers an entity set. Entity names must be unique.
func (m *Model) Add(e *Struct) error {
	if e.Name == "" {
		return fmt.Errorf("entity has no name")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s has no table", e.Name)
	}
	for _, k := range e.Key {
		if _, ok := e.Property(k); !ok {
			return fmt.Errorf("entity %s: key property %s is not declared", e.Name, k)
		}
	}
	if _, exists := m.entities[e.Name]; exists {
		return fmt.Errorf("entity %s registered twice", e.Name)
	}
	m.entities[e.Name] = e
	m.order = append(m.order, e.Name)
	return nil
}

// Entity looks up an entity set by name.
func (m *Model) Entity(name string) (*Struct, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns entity sets in registration order.
func (m *Model) Entities() []*Struct {
	out := make([]*Struct, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.entities[name])
	}
	return out
}
