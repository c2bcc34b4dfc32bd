package sqlexpr

import (
	"fmt"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

// Expr is a dialect-neutral SQL expression.
//
// This is a sealed interface - only types in this package implement it.
// Every node carries a resolved type mapping, set by its constructor. Nodes
// cannot be built without one: constructors panic on a nil mapping, which
// is an internal invariant violation (translators report a type mapping
// mismatch long before reaching that point).
type Expr interface {
	Mapping() *typemap.Mapping
	sqlNode() // Marker method - seals interface to this package
}

type typed struct {
	mapping *typemap.Mapping
}

func (t typed) Mapping() *typemap.Mapping { return t.mapping }
func (typed) sqlNode()                    {}

func mustType(node string, m *typemap.Mapping) typed {
	if m == nil {
		panic(fmt.Sprintf("sqlexpr: %s built without a type mapping", node))
	}
	return typed{mapping: m}
}

// ColumnRef is a qualified column: alias."Column".
type ColumnRef struct {
	typed
	Table    string
	Column   string
	Nullable bool
}

// NewColumn builds a column reference.
func NewColumn(table, column string, m *typemap.Mapping, nullable bool) *ColumnRef {
	return &ColumnRef{typed: mustType("ColumnRef", m), Table: table, Column: column, Nullable: nullable}
}

// Constant is a literal rendered inline through its mapping.
type Constant struct {
	typed
	Value ir.IRValue
}

// NewConstant builds a literal.
func NewConstant(v ir.IRValue, m *typemap.Mapping) *Constant {
	if v == nil {
		v = ir.IRNull{}
	}
	return &Constant{typed: mustType("Constant", m), Value: v}
}

// IsNull reports whether c is the NULL literal.
func (c *Constant) IsNull() bool { return ir.IsNull(c.Value) }

// ParamElement is one element of a folded array parameter: either a
// captured variable or a constant value.
type ParamElement struct {
	Captured string
	Value    ir.IRValue
}

// Parameter is a bound value sent alongside the SQL text.
//
// Key identifies the parameter for deduplication: nodes with equal keys
// share one placeholder. Hint is the preferred placeholder name (the
// captured variable name, empty for anonymous values). Name is assigned by
// the binder and is empty until then.
type Parameter struct {
	typed
	Key      string
	Hint     string
	Name     string
	Nullable bool

	// Captured names the host variable the value comes from.
	Captured string

	// Elements is set for array parameters folded from an inline collection.
	Elements []ParamElement

	// ElemNullable is set on array parameters whose elements may be null.
	ElemNullable bool
}

// NewParameter builds a parameter.
func NewParameter(key, hint string, m *typemap.Mapping, nullable bool) *Parameter {
	return &Parameter{typed: mustType("Parameter", m), Key: key, Hint: hint, Nullable: nullable}
}

// FunctionCall is a function or aggregate invocation.
type FunctionCall struct {
	typed
	Name      string
	Args      []Expr
	Star      bool // COUNT(*)
	Distinct  bool // aggregate over DISTINCT arguments
	Aggregate bool
	Nullable  bool
	OrderBy   []*Ordering // ordered-set aggregates: array_agg(x ORDER BY y)
}

// NewFunction builds a scalar function call.
func NewFunction(name string, m *typemap.Mapping, nullable bool, args ...Expr) *FunctionCall {
	return &FunctionCall{typed: mustType("FunctionCall", m), Name: name, Args: args, Nullable: nullable}
}

// NewAggregate builds an aggregate call. Aggregates over empty input yield
// NULL, so they are nullable except for COUNT.
func NewAggregate(name string, m *typemap.Mapping, args ...Expr) *FunctionCall {
	f := NewFunction(name, m, name != "COUNT", args...)
	f.Aggregate = true
	return f
}

// BinaryOp is an infix operator.
//
// NullSafe marks comparisons already expanded for three-valued equality, so
// the null-semantics rewriter leaves them alone on a second pass.
type BinaryOp struct {
	typed
	Op       string
	Left     Expr
	Right    Expr
	NullSafe bool
}

// NewBinary builds an infix operation.
func NewBinary(op string, left, right Expr, m *typemap.Mapping) *BinaryOp {
	return &BinaryOp{typed: mustType("BinaryOp", m), Op: op, Left: left, Right: right}
}

// UnaryOp is a prefix (NOT, -, ~, !!) or postfix (IS NULL, IS NOT NULL)
// operator.
type UnaryOp struct {
	typed
	Op      string
	Operand Expr
	Postfix bool
}

// NewUnary builds a prefix operation.
func NewUnary(op string, operand Expr, m *typemap.Mapping) *UnaryOp {
	return &UnaryOp{typed: mustType("UnaryOp", m), Op: op, Operand: operand}
}

// NewPostfix builds a postfix operation.
func NewPostfix(op string, operand Expr, m *typemap.Mapping) *UnaryOp {
	return &UnaryOp{typed: mustType("UnaryOp", m), Op: op, Operand: operand, Postfix: true}
}

// When is one branch of a CaseWhen.
type When struct {
	Cond   Expr
	Result Expr
}

// CaseWhen is CASE [operand] WHEN ... THEN ... [ELSE ...] END.
type CaseWhen struct {
	typed
	Operand Expr
	Whens   []When
	Else    Expr
}

// NewCase builds a searched CASE.
func NewCase(whens []When, els Expr, m *typemap.Mapping) *CaseWhen {
	return &CaseWhen{typed: mustType("CaseWhen", m), Whens: whens, Else: els}
}

// Subquery is a scalar subquery, or ARRAY(subquery) when Array is set.
type Subquery struct {
	typed
	Query Query
	Array bool
}

// NewSubquery builds a scalar subquery.
func NewSubquery(q Query, m *typemap.Mapping) *Subquery {
	return &Subquery{typed: mustType("Subquery", m), Query: q}
}

// NewArraySubquery builds ARRAY(subquery).
func NewArraySubquery(q Query, m *typemap.Mapping) *Subquery {
	return &Subquery{typed: mustType("Subquery", m), Query: q, Array: true}
}

// ArrayLiteral is ARRAY[e1, e2, ...] over arbitrary element expressions.
type ArrayLiteral struct {
	typed
	Elems []Expr
}

// NewArrayLiteral builds an array constructor.
func NewArrayLiteral(elems []Expr, m *typemap.Mapping) *ArrayLiteral {
	return &ArrayLiteral{typed: mustType("ArrayLiteral", m), Elems: elems}
}

// ArraySlice is array[lower:upper] with 1-based inclusive bounds. A nil
// bound is open.
type ArraySlice struct {
	typed
	Array Expr
	Lower Expr
	Upper Expr
}

// NewArraySlice builds a native array slice.
func NewArraySlice(array, lower, upper Expr) *ArraySlice {
	return &ArraySlice{typed: mustType("ArraySlice", array.Mapping()), Array: array, Lower: lower, Upper: upper}
}

// ArrayIndex is array[index] with a 1-based index.
type ArrayIndex struct {
	typed
	Array Expr
	Index Expr
}

// NewArrayIndex builds a native array subscript. The result is the element
// mapping of the array.
func NewArrayIndex(array, index Expr) *ArrayIndex {
	return &ArrayIndex{typed: mustType("ArrayIndex", array.Mapping().Element), Array: array, Index: index}
}

// Cast converts Operand to the node's mapping.
type Cast struct {
	typed
	Operand Expr
}

// NewCast builds a conversion to m.
func NewCast(operand Expr, m *typemap.Mapping) *Cast {
	return &Cast{typed: mustType("Cast", m), Operand: operand}
}

// Exists is [NOT] EXISTS (subquery).
type Exists struct {
	typed
	Query   Query
	Negated bool
}

// NewExists builds an EXISTS test.
func NewExists(q Query, negated bool, m *typemap.Mapping) *Exists {
	return &Exists{typed: mustType("Exists", m), Query: q, Negated: negated}
}

// In is operand [NOT] IN (values) or operand [NOT] IN (subquery).
type In struct {
	typed
	Operand  Expr
	Values   []Expr
	Query    Query
	Negated  bool
	NullSafe bool
}

// NewIn builds a membership test against a value list.
func NewIn(operand Expr, values []Expr, m *typemap.Mapping) *In {
	return &In{typed: mustType("In", m), Operand: operand, Values: values}
}

// NewInQuery builds a membership test against a subquery.
func NewInQuery(operand Expr, q Query, m *typemap.Mapping) *In {
	return &In{typed: mustType("In", m), Operand: operand, Query: q}
}

// Any is operand op ANY(array).
//
// ElemNullable records whether the array may hold NULL elements; the
// null-semantics rewriter uses it to add membership compensation.
type Any struct {
	typed
	Operand      Expr
	Op           string
	Array        Expr
	Negated      bool
	ElemNullable bool
	NullSafe     bool
}

// NewAny builds operand = ANY(array).
func NewAny(operand, array Expr, elemNullable bool, m *typemap.Mapping) *Any {
	return &Any{typed: mustType("Any", m), Operand: operand, Op: "=", Array: array, ElemNullable: elemNullable}
}

// JsonPath is chained JSON navigation: operand->'a'->'b' or, with
// ReturnsText, operand->'a'->>'b'. Path steps are text keys or integer
// array indices.
type JsonPath struct {
	typed
	Operand     Expr
	Path        []Expr
	ReturnsText bool
}

// NewJsonPath builds a JSON navigation node.
func NewJsonPath(operand Expr, path []Expr, returnsText bool, m *typemap.Mapping) *JsonPath {
	return &JsonPath{typed: mustType("JsonPath", m), Operand: operand, Path: path, ReturnsText: returnsText}
}

// Nullable reports whether e may evaluate to NULL.
func Nullable(e Expr) bool {
	switch n := e.(type) {
	case nil:
		return false
	case *ColumnRef:
		return n.Nullable
	case *Constant:
		return n.IsNull()
	case *Parameter:
		return n.Nullable
	case *FunctionCall:
		if n.Nullable {
			return true
		}
		if n.Aggregate {
			return false
		}
		switch n.Name {
		case "COALESCE":
			for _, a := range n.Args {
				if !Nullable(a) {
					return false
				}
			}
			return true
		}
		return anyNullable(n.Args)
	case *BinaryOp:
		if n.NullSafe {
			return false
		}
		return Nullable(n.Left) || Nullable(n.Right)
	case *UnaryOp:
		if n.Postfix {
			return false
		}
		return Nullable(n.Operand)
	case *CaseWhen:
		if n.Else == nil || Nullable(n.Else) {
			return true
		}
		for _, w := range n.Whens {
			if Nullable(w.Result) {
				return true
			}
		}
		return false
	case *Subquery:
		return !n.Array
	case *ArrayLiteral:
		return false
	case *ArraySlice:
		return Nullable(n.Array)
	case *ArrayIndex, *JsonPath:
		return true
	case *Cast:
		return Nullable(n.Operand)
	case *Exists:
		return false
	case *In:
		if n.NullSafe {
			return false
		}
		return Nullable(n.Operand) || anyNullable(n.Values) || n.Query != nil
	case *Any:
		if n.NullSafe {
			return false
		}
		return Nullable(n.Operand) || n.ElemNullable || Nullable(n.Array)
	}
	return true
}

func anyNullable(es []Expr) bool {
	for _, e := range es {
		if Nullable(e) {
			return true
		}
	}
	return false
}
