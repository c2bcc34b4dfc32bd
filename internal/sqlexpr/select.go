package sqlexpr

// Query is a statement that produces rows: a Select or a SetOp.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Projection is one output column of a Select.
type Projection struct {
	Expr  Expr
	Alias string // empty when the expression's own name is kept
}

// Ordering is one ORDER BY key.
type Ordering struct {
	Expr       Expr
	Descending bool
}

// CTE is a named common table expression.
type CTE struct {
	Name  string
	Query Query
}

// Select is a SELECT statement.
//
// Semantics:
//
//	[WITH ctes] SELECT [DISTINCT] projection FROM from joins
//	WHERE where GROUP BY groupBy HAVING having ORDER BY orderBy
//	LIMIT limit OFFSET offset
//
// A nil From selects without a FROM clause (SELECT 1).
type Select struct {
	With       []*CTE
	Distinct   bool
	Projection []*Projection
	From       Source
	Joins      []*Join
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	OrderBy    []*Ordering
	Limit      Expr
	Offset     Expr
}

func (*Select) queryNode() {}

// AndWhere conjoins pred with the current WHERE clause.
func (s *Select) AndWhere(pred Expr) {
	if s.Where == nil {
		s.Where = pred
		return
	}
	s.Where = NewBinary("AND", s.Where, pred, pred.Mapping())
}

// IsLimited reports whether the select restricts or reshapes its row set in
// a way later operations may not be pushed past.
func (s *Select) IsLimited() bool {
	return s.Limit != nil || s.Offset != nil || s.Distinct || len(s.GroupBy) > 0 || s.Having != nil
}

// Aliases returns the row-source aliases introduced by the FROM clause and
// the joins, in order.
func (s *Select) Aliases() []string {
	var out []string
	if s.From != nil {
		out = append(out, s.From.SourceAlias())
	}
	for _, j := range s.Joins {
		out = append(out, j.Source.SourceAlias())
	}
	return out
}

// SetOpKind is a set operator.
type SetOpKind string

const (
	Union     SetOpKind = "UNION"
	UnionAll  SetOpKind = "UNION ALL"
	Except    SetOpKind = "EXCEPT"
	Intersect SetOpKind = "INTERSECT"
)

// SetOp combines two queries with a set operator.
type SetOp struct {
	Op    SetOpKind
	Left  Query
	Right Query
}

func (*SetOp) queryNode() {}

// Source is a FROM-clause row source.
//
// This is a sealed interface - only types in this package implement it.
type Source interface {
	SourceAlias() string
	sourceNode() // Marker method - seals interface to this package
}

// Table is a base table: "Schema"."Name" AS alias.
type Table struct {
	Name   string
	Schema string
	Alias  string
}

func (t *Table) SourceAlias() string { return t.Alias }
func (*Table) sourceNode()           {}

// DerivedTable is (query) AS alias.
type DerivedTable struct {
	Query Query
	Alias string
}

func (d *DerivedTable) SourceAlias() string { return d.Alias }
func (*DerivedTable) sourceNode()           {}

// ColumnDef is a typed column of a record-set column manifest.
type ColumnDef struct {
	Name string
	Type string
}

// TableFunction is a set-returning function call:
//
//	unnest(a) WITH ORDINALITY AS u(value, ordinality)
//	jsonb_to_recordset(j) AS o("Id" integer, "Price" numeric)
//
// ColumnNames aliases output columns; Columns declares a typed manifest.
// At most one of them is set.
type TableFunction struct {
	Call           *FunctionCall
	Alias          string
	ColumnNames    []string
	Columns        []ColumnDef
	WithOrdinality bool
}

func (f *TableFunction) SourceAlias() string { return f.Alias }
func (*TableFunction) sourceNode()           {}

// Values is an inline row source: (VALUES (a), (b)) AS alias(columns).
type Values struct {
	Rows    [][]Expr
	Alias   string
	Columns []string
}

func (v *Values) SourceAlias() string { return v.Alias }
func (*Values) sourceNode()           {}

// JoinKind is the kind of a join.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	CrossJoin JoinKind = "CROSS JOIN"
)

// Join attaches a row source to a Select. Lateral sources may reference
// aliases introduced before them.
type Join struct {
	Kind    JoinKind
	Lateral bool
	Source  Source
	On      Expr
}
