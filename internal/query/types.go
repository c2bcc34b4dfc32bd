package query

import (
	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

// Expr is a host expression node inside a query operation.
//
// This is a sealed interface - only types in this package implement it.
// Nodes are always handled by pointer; translators switch on *T cases.
//
// Expression types:
//   - Param: reference to a lambda parameter
//   - Member: property access (e.Int, e.Json.Orders)
//   - Call: method or static function call
//   - Index: indexer access (a[0], m["key"])
//   - Binary, Unary, Conditional: operators
//   - Constant, Captured: literal and host-variable values
//   - NewArray, NewObject: inline constructions
//   - Lambda: nested lambda passed to a call (Any(x => ...))
//   - Subquery: a nested query over another entity set
//   - ClientCall: a call only evaluable after materializing rows
//   - Convert: explicit type conversion
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Param references a parameter of an enclosing lambda by name.
type Param struct {
	Name string
}

func (Param) exprNode() {}

// Member is a property access.
//
// Example:
//
//	&Member{Target: &Param{Name: "e"}, Name: "Int"}  // e.Int
//
// Members that are not declared properties of the target's struct are
// resolved like zero-argument calls (e.g. a.Length, r.LowerBound, g.Key).
type Member struct {
	Target Expr
	Name   string
}

func (Member) exprNode() {}

// Call is a method call on Receiver, or a static function when Receiver is nil.
//
// Example:
//
//	&Call{
//	  Receiver: &Member{Target: &Param{Name: "e"}, Name: "Map"},
//	  Method:   "ContainsKey",
//	  Args:     []Expr{&Captured{Name: "key", ...}},
//	}
//
// Static functions (ToTsVector, JsonContains, Join) carry the function name
// in Method and every operand in Args.
type Call struct {
	Receiver Expr
	Method   string
	Args     []Expr
}

func (Call) exprNode() {}

// IsStatic reports whether the call is a free function.
func (c *Call) IsStatic() bool { return c.Receiver == nil }

// Index is an indexer access. Array indices are 0-based on the host side.
type Index struct {
	Target Expr
	Index  Expr
}

func (Index) exprNode() {}

// BinaryOp is a host binary operator.
type BinaryOp string

const (
	OpEqual        BinaryOp = "=="
	OpNotEqual     BinaryOp = "!="
	OpLess         BinaryOp = "<"
	OpLessEqual    BinaryOp = "<="
	OpGreater      BinaryOp = ">"
	OpGreaterEqual BinaryOp = ">="
	OpAndAlso      BinaryOp = "&&"
	OpOrElse       BinaryOp = "||"
	OpAdd          BinaryOp = "+"
	OpSubtract     BinaryOp = "-"
	OpMultiply     BinaryOp = "*"
	OpDivide       BinaryOp = "/"
	OpModulo       BinaryOp = "%"
	OpAnd          BinaryOp = "&"
	OpOr           BinaryOp = "|"
	OpCoalesce     BinaryOp = "??"
)

// Binary applies a binary operator.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (Binary) exprNode() {}

// UnaryOp is a host unary operator.
type UnaryOp string

const (
	OpNot        UnaryOp = "!"
	OpNegate     UnaryOp = "-"
	OpComplement UnaryOp = "~"
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (Unary) exprNode() {}

// Conditional is the ternary test ? then : else.
type Conditional struct {
	Test Expr
	Then Expr
	Else Expr
}

func (Conditional) exprNode() {}

// Constant is a literal embedded in the query. It is rendered inline.
//
// Type is required when Value is ir.IRNull or when the value's natural
// kind is ambiguous (e.g. a timestamp carried as a string).
type Constant struct {
	Value ir.IRValue
	Type  typemap.Type
}

func (Constant) exprNode() {}

// Captured is a host variable closed over by the query. It is always sent
// as a parameter, so queries that differ only in captured values share a
// shape and produce identical SQL.
type Captured struct {
	Name  string
	Value ir.IRValue
	Type  typemap.Type
}

func (Captured) exprNode() {}

// NewArray is an inline collection literal (new[] { a, b, c }).
type NewArray struct {
	Elems []Expr
	Elem  typemap.Type
}

func (NewArray) exprNode() {}

// Lambda is a function literal passed to an operation or a call.
type Lambda struct {
	Params []string
	Body   Expr
}

func (Lambda) exprNode() {}

// Field is a named member of a NewObject.
type Field struct {
	Name  string
	Value Expr
}

// NewObject constructs an anonymous object. Field order is preserved in
// the projection.
type NewObject struct {
	Fields []Field
}

func (NewObject) exprNode() {}

// Subquery embeds a query over another entity set, used as a queryable
// collection (Contains, Any, Count, ...) inside an outer expression.
type Subquery struct {
	Query *Query
}

func (Subquery) exprNode() {}

// ClientCall is a call that can only be evaluated on materialized rows.
// It is permitted only in the final projection of a query.
type ClientCall struct {
	Method string
	Args   []Expr
}

func (ClientCall) exprNode() {}

// Convert is an explicit conversion of Operand to Type.
type Convert struct {
	Operand Expr
	Type    typemap.Type
}

func (Convert) exprNode() {}

// Operation is one step of a query chain.
//
// This is a sealed interface - only types in this package implement it.
type Operation interface {
	operationNode() // Marker method - seals interface to this package
}

// Where filters rows with a one-parameter predicate lambda.
type Where struct {
	Predicate *Lambda
}

func (Where) operationNode() {}

// Select projects each row with a one-parameter selector lambda.
type Select struct {
	Selector *Lambda
}

func (Select) operationNode() {}

// OrderBy orders rows by a key. Then marks ThenBy/ThenByDescending, which
// refine a preceding ordering instead of replacing it.
type OrderBy struct {
	Key        *Lambda
	Descending bool
	Then       bool
}

func (OrderBy) operationNode() {}

// Join is an inner equi-join with another entity set.
//
// OuterKey and InnerKey are one-parameter lambdas over the outer and inner
// rows; Result is a two-parameter lambda (outer, inner).
type Join struct {
	Inner    *Query
	OuterKey *Lambda
	InnerKey *Lambda
	Result   *Lambda
}

func (Join) operationNode() {}

// GroupBy groups rows by a key. A following Select sees the group: g.Key,
// g.Count(), g.Sum(x => ...), g.RangeAgg(x => ...).
type GroupBy struct {
	Key *Lambda
}

func (GroupBy) operationNode() {}

// SelectMany flattens a collection-valued member of each row.
//
// Collection is a one-parameter lambda returning the collection; Result is
// an optional two-parameter lambda (row, element). Without Result, the
// element itself is the new row.
type SelectMany struct {
	Collection *Lambda
	Result     *Lambda
}

func (SelectMany) operationNode() {}

// Skip bypasses Count rows. Count must be a constant or captured integer.
type Skip struct {
	Count Expr
}

func (Skip) operationNode() {}

// Take limits the result to Count rows.
type Take struct {
	Count Expr
}

func (Take) operationNode() {}

// Distinct removes duplicate rows.
type Distinct struct{}

func (Distinct) operationNode() {}

// AggregateFunc names a terminal operator.
type AggregateFunc string

const (
	AggCount          AggregateFunc = "Count"
	AggLongCount      AggregateFunc = "LongCount"
	AggSum            AggregateFunc = "Sum"
	AggMin            AggregateFunc = "Min"
	AggMax            AggregateFunc = "Max"
	AggAverage        AggregateFunc = "Average"
	AggAny            AggregateFunc = "Any"
	AggAll            AggregateFunc = "All"
	AggFirst          AggregateFunc = "First"
	AggFirstOrDefault AggregateFunc = "FirstOrDefault"
	AggSingle         AggregateFunc = "Single"
)

// Aggregate is a terminal operator. Lambda is the optional predicate
// (Count, Any, All, First) or selector (Sum, Min, Max, Average).
// It must be the last operation of a query.
type Aggregate struct {
	Func   AggregateFunc
	Lambda *Lambda
}

func (Aggregate) operationNode() {}

// Query is an entity-set root plus a chain of operations.
//
// Example (conceptual):
//
//	ctx.Entities.Where(e => new[]{10, 999}.Contains(e.Int))
//
// is
//
//	&Query{
//	  Source: "Entity",
//	  Ops: []Operation{&Where{Predicate: &Lambda{
//	    Params: []string{"e"},
//	    Body: &Call{
//	      Receiver: &NewArray{Elems: []Expr{...}, Elem: typemap.Int()},
//	      Method:   "Contains",
//	      Args:     []Expr{&Member{Target: &Param{Name: "e"}, Name: "Int"}},
//	    },
//	  }}},
//	}
type Query struct {
	// Source names the root entity set (a typemap.Struct name).
	Source string
	Ops    []Operation
}
