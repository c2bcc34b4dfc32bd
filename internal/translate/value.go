package translate

import (
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// Value is the translation of one host expression.
//
// Exactly one form is set:
//   - Expr: a scalar SQL expression (columns, operators, JSON paths, arrays)
//   - Row: a row of an entity set, a record-set expansion or a derived table
//   - Object: an anonymous object built by a projection
//   - Seq: a queryable collection still under construction
//   - Group: a grouping inside a GroupBy projection
//   - Lambda: an untranslated lambda argument
//   - Client: a call evaluated on materialized rows
//
// Inline collections set both Inline (the element values) and Expr (the
// materialized array), so translators can pick the form they need.
type Value struct {
	Expr   sqlexpr.Expr
	Type   typemap.Type
	Row    *RowRef
	Object []*Field
	Seq    *Sequence
	Inline []*Value
	Group  *Group
	Lambda *query.Lambda
	Client *ClientValue

	// pos is the position segment of a lambda argument (".args[1]").
	pos string
}

// Field is a named member of an anonymous object.
type Field struct {
	Name  string
	Value *Value
}

// RowRef is a row source visible under Alias. Struct lists its columns;
// Column overrides on the properties name derived-table columns.
type RowRef struct {
	Alias  string
	Struct *typemap.Struct

	// Nullable rows come from outer joins.
	Nullable bool
}

// Group is the element of a grouped sequence.
type Group struct {
	Key     *Value
	Element *Value
}

// ClientValue is a call that runs after the rows are read.
type ClientValue struct {
	Method string
	Args   []*Value
}

// Sequence is a row set under construction: the root entity query, a
// nested query over another entity set, or an expanded collection.
type Sequence struct {
	Select  *sqlexpr.Select
	Element *Value

	// Order lists the keys reproducing the original element order when no
	// explicit ordering is applied, outermost first. Flattening appends the
	// inner collection's key after its parent's, so the elements of one
	// parent stay together.
	Order []*orderKey

	// Ordered is set once an explicit OrderBy has been applied.
	Ordered bool

	// Projected is set once a Select replaced the element.
	Projected bool
}

// orderKey is one level of element order: a column, or a table function
// whose ordinality column is only added when a later operation depends on
// element order.
type orderKey struct {
	expr  sqlexpr.Expr
	fn    *sqlexpr.TableFunction
	alias string
}

func scalar(e sqlexpr.Expr, t typemap.Type) *Value {
	return &Value{Expr: e, Type: t}
}

// IsScalar reports whether v is a plain SQL expression.
func (v *Value) IsScalar() bool {
	return v != nil && v.Expr != nil && v.Seq == nil && v.Row == nil && v.Object == nil &&
		v.Group == nil && v.Lambda == nil && v.Client == nil
}

// IsNativeArray reports whether v is an array expression that has not been
// turned into a queryable sequence.
func (v *Value) IsNativeArray() bool {
	return v.IsScalar() && v.Type.Kind == typemap.KindArray
}

// receiverKind is the recognizer kind of v.
func (v *Value) receiverKind() typemap.Kind {
	switch {
	case v.Group != nil:
		return KindGroup
	case v.Row != nil:
		return typemap.KindEntity
	case v.Object != nil:
		return typemap.KindStruct
	case v.Seq != nil && v.Type.Kind == "":
		return typemap.KindArray
	}
	return v.Type.Kind
}

// ElemType returns the element type of a collection value.
func (v *Value) ElemType() typemap.Type {
	if v.Seq != nil && v.Seq.Element != nil {
		return v.Seq.Element.Type
	}
	return v.Type.ElemType()
}

// field returns the object field with the given name.
func (v *Value) field(name string) (*Value, bool) {
	for _, f := range v.Object {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}
