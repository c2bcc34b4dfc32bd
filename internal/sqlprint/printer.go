package sqlprint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// UnsupportedError reports a construct the target dialect cannot express.
type UnsupportedError struct {
	Dialect   string
	Construct string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("dialect %s does not support %s", e.Dialect, e.Construct)
}

// IsUnsupported reports whether err is (or wraps) an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// Result is printed SQL plus the parameter names in placeholder order.
//
// With PlaceholderQuestion a name is listed once per occurrence; the other
// styles list each name once, in order of first occurrence.
type Result struct {
	SQL    string
	Params []string
}

// Print renders a statement. Top-level clauses are separated by newlines;
// nested statements render on one line.
//
// Print is deterministic: the same tree and dialect always produce the same
// text and parameter order.
func Print(q sqlexpr.Query, d Dialect) (*Result, error) {
	p := newPrinter(d)
	p.query(q, true)
	return p.result()
}

// PrintExpr renders a single expression.
func PrintExpr(e sqlexpr.Expr, d Dialect) (*Result, error) {
	p := newPrinter(d)
	p.expr(e)
	return p.result()
}

type printer struct {
	d      Dialect
	b      strings.Builder
	params []string
	number map[string]int
	err    error
}

func newPrinter(d Dialect) *printer {
	if d.QuoteIdent == nil {
		d.QuoteIdent = quoteIfNeeded
	}
	return &printer{d: d, number: make(map[string]int)}
}

func (p *printer) result() (*Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &Result{SQL: p.b.String(), Params: p.params}, nil
}

func (p *printer) unsupported(format string, args ...any) {
	if p.err == nil {
		p.err = &UnsupportedError{Dialect: p.d.Name, Construct: fmt.Sprintf(format, args...)}
	}
}

func (p *printer) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *printer) w(s string) { p.b.WriteString(s) }

func (p *printer) query(q sqlexpr.Query, top bool) {
	switch n := q.(type) {
	case *sqlexpr.Select:
		p.selectStmt(n, top)
	case *sqlexpr.SetOp:
		p.query(n.Left, false)
		p.w(" " + string(n.Op) + " ")
		p.query(n.Right, false)
	case nil:
		p.fail("nil query")
	default:
		p.fail("unknown query type %T", q)
	}
}

func (p *printer) selectStmt(s *sqlexpr.Select, top bool) {
	sep := " "
	if top {
		sep = "\n"
	}

	if len(s.With) > 0 {
		p.w("WITH ")
		for i, c := range s.With {
			if i > 0 {
				p.w(", ")
			}
			p.w(p.d.QuoteIdent(c.Name) + " AS (")
			p.query(c.Query, false)
			p.w(")")
		}
		p.w(sep)
	}

	p.w("SELECT ")
	if s.Distinct {
		p.w("DISTINCT ")
	}
	if len(s.Projection) == 0 {
		p.w("1")
	}
	for i, proj := range s.Projection {
		if i > 0 {
			p.w(", ")
		}
		p.expr(proj.Expr)
		if proj.Alias != "" && !isColumnNamed(proj.Expr, proj.Alias) {
			p.w(" AS " + p.d.QuoteIdent(proj.Alias))
		}
	}

	if s.From != nil {
		p.w(sep + "FROM ")
		p.source(s.From)
	}
	for _, j := range s.Joins {
		p.w(sep + string(j.Kind) + " ")
		if j.Lateral {
			if !p.d.Lateral {
				p.unsupported("lateral joins")
			}
			p.w("LATERAL ")
		}
		p.source(j.Source)
		if j.On != nil {
			p.w(" ON ")
			p.expr(j.On)
		}
	}
	if s.Where != nil {
		p.w(sep + "WHERE ")
		p.expr(s.Where)
	}
	if len(s.GroupBy) > 0 {
		p.w(sep + "GROUP BY ")
		p.exprList(s.GroupBy)
	}
	if s.Having != nil {
		p.w(sep + "HAVING ")
		p.expr(s.Having)
	}
	if len(s.OrderBy) > 0 {
		p.w(sep + "ORDER BY ")
		p.orderings(s.OrderBy)
	}
	if s.Limit != nil {
		p.w(sep + "LIMIT ")
		p.expr(s.Limit)
	} else if s.Offset != nil && p.d.LimitForOffset != "" {
		p.w(sep + "LIMIT " + p.d.LimitForOffset)
	}
	if s.Offset != nil {
		p.w(sep + "OFFSET ")
		p.expr(s.Offset)
	}
}

func isColumnNamed(e sqlexpr.Expr, name string) bool {
	c, ok := e.(*sqlexpr.ColumnRef)
	return ok && c.Column == name
}

func (p *printer) orderings(os []*sqlexpr.Ordering) {
	for i, o := range os {
		if i > 0 {
			p.w(", ")
		}
		p.expr(o.Expr)
		if o.Descending {
			p.w(" DESC")
		}
	}
}

func (p *printer) exprList(es []sqlexpr.Expr) {
	for i, e := range es {
		if i > 0 {
			p.w(", ")
		}
		p.expr(e)
	}
}

func (p *printer) source(s sqlexpr.Source) {
	switch n := s.(type) {
	case *sqlexpr.Table:
		if n.Schema != "" {
			p.w(p.d.QuoteIdent(n.Schema) + ".")
		}
		p.w(p.d.QuoteIdent(n.Name))
		if n.Alias != "" {
			p.w(" AS " + n.Alias)
		}
	case *sqlexpr.DerivedTable:
		p.w("(")
		p.query(n.Query, false)
		p.w(") AS " + n.Alias)
	case *sqlexpr.TableFunction:
		if !p.d.Lateral {
			p.unsupported("table function %s", n.Call.Name)
		}
		if n.WithOrdinality && len(n.Columns) > 0 {
			p.rowsFrom(n)
			return
		}
		p.expr(n.Call)
		if n.WithOrdinality {
			p.w(" WITH ORDINALITY")
		}
		p.w(" AS " + n.Alias)
		switch {
		case len(n.Columns) > 0:
			p.w("(")
			p.columnDefs(n.Columns)
			p.w(")")
		case len(n.ColumnNames) > 0:
			p.w("(")
			for i, c := range n.ColumnNames {
				if i > 0 {
					p.w(", ")
				}
				p.w(p.d.QuoteIdent(c))
			}
			p.w(")")
		}
	case *sqlexpr.Values:
		p.values(n)
	case nil:
		p.fail("nil row source")
	default:
		p.fail("unknown row source %T", s)
	}
}

func (p *printer) columnDefs(cols []sqlexpr.ColumnDef) {
	for i, c := range cols {
		if i > 0 {
			p.w(", ")
		}
		p.w(p.d.QuoteIdent(c.Name) + " " + c.Type)
	}
}

// rowsFrom renders a record-returning function with an ordinality column.
// A column definition list cannot be combined with WITH ORDINALITY
// directly:
//
//	ROWS FROM (jsonb_to_recordset(x) AS ("Id" integer)) WITH ORDINALITY AS o("Id", ordinality)
func (p *printer) rowsFrom(n *sqlexpr.TableFunction) {
	p.w("ROWS FROM (")
	p.expr(n.Call)
	p.w(" AS (")
	p.columnDefs(n.Columns)
	p.w(")) WITH ORDINALITY AS " + n.Alias + "(")
	for _, c := range n.Columns {
		p.w(p.d.QuoteIdent(c.Name) + ", ")
	}
	p.w("ordinality)")
}

func (p *printer) values(v *sqlexpr.Values) {
	if len(v.Rows) == 0 {
		p.fail("VALUES without rows")
		return
	}
	p.w("(")
	if p.d.ValuesAsUnion {
		for i, row := range v.Rows {
			if i > 0 {
				p.w(" UNION ALL ")
			}
			p.w("SELECT ")
			for j, e := range row {
				if j > 0 {
					p.w(", ")
				}
				p.expr(e)
				if j < len(v.Columns) {
					p.w(" AS " + p.d.QuoteIdent(v.Columns[j]))
				}
			}
		}
		p.w(") AS " + v.Alias)
		return
	}
	p.w("VALUES ")
	for i, row := range v.Rows {
		if i > 0 {
			p.w(", ")
		}
		p.w("(")
		p.exprList(row)
		p.w(")")
	}
	p.w(") AS " + v.Alias)
	if len(v.Columns) > 0 {
		p.w("(")
		for i, c := range v.Columns {
			if i > 0 {
				p.w(", ")
			}
			p.w(p.d.QuoteIdent(c))
		}
		p.w(")")
	}
}

// Operator precedence, loosest first. Levels follow PostgreSQL.
const (
	precOr = iota + 1
	precAnd
	precNot
	precIs
	precCompare
	precOther
	precAdd
	precMul
	precUnary
	precSubscript
	precCast
	precAtom
)

func binaryPrec(op string) int {
	switch op {
	case "OR":
		return precOr
	case "AND":
		return precAnd
	case "=", "<>", "<", "<=", ">", ">=", "LIKE", "ILIKE", "IS DISTINCT FROM", "IS NOT DISTINCT FROM":
		return precCompare
	case "+", "-":
		return precAdd
	case "*", "/", "%":
		return precMul
	}
	return precOther
}

func (p *printer) prec(e sqlexpr.Expr) int {
	switch n := e.(type) {
	case *sqlexpr.BinaryOp:
		return binaryPrec(n.Op)
	case *sqlexpr.UnaryOp:
		switch {
		case n.Postfix:
			return precIs
		case n.Op == "NOT":
			return precNot
		}
		return precUnary
	case *sqlexpr.In, *sqlexpr.Any:
		return precCompare
	case *sqlexpr.JsonPath:
		return precOther
	case *sqlexpr.ArraySlice, *sqlexpr.ArrayIndex:
		return precSubscript
	case *sqlexpr.Cast:
		if p.d.Cast == CastPostfix {
			return precCast
		}
	case *sqlexpr.Constant:
		if n.Mapping().Style == typemap.LiteralCast && !n.IsNull() {
			return precCast
		}
	case *sqlexpr.Exists:
		if n.Negated {
			return precNot
		}
	}
	return precAtom
}

// child renders e, parenthesized when it binds looser than min.
func (p *printer) child(e sqlexpr.Expr, min int) {
	if p.prec(e) < min {
		p.w("(")
		p.expr(e)
		p.w(")")
		return
	}
	p.expr(e)
}

func isAnd(e sqlexpr.Expr) bool {
	b, ok := e.(*sqlexpr.BinaryOp)
	return ok && b.Op == "AND"
}

func (p *printer) expr(e sqlexpr.Expr) {
	if p.err != nil {
		return
	}
	switch n := e.(type) {
	case nil:
		p.fail("nil expression")

	case *sqlexpr.ColumnRef:
		if n.Table != "" {
			p.w(n.Table + ".")
		}
		p.w(p.d.QuoteIdent(n.Column))

	case *sqlexpr.Constant:
		p.constant(n)

	case *sqlexpr.Parameter:
		p.placeholder(n)

	case *sqlexpr.FunctionCall:
		name, ok := p.d.functionName(n.Name)
		if !ok {
			p.unsupported("function %s", n.Name)
			return
		}
		p.w(name + "(")
		if n.Distinct {
			p.w("DISTINCT ")
		}
		if n.Star {
			p.w("*")
		} else {
			p.exprList(n.Args)
		}
		if len(n.OrderBy) > 0 {
			p.w(" ORDER BY ")
			p.orderings(n.OrderBy)
		}
		p.w(")")

	case *sqlexpr.BinaryOp:
		if !p.d.supportsOperator(n.Op) {
			p.unsupported("operator %s", n.Op)
			return
		}
		prec := binaryPrec(n.Op)
		leftMin, rightMin := prec, prec+1
		switch {
		case n.Op == "AND" || n.Op == "OR":
			rightMin = prec
		case prec == precCompare:
			leftMin = prec + 1
		}
		p.operand(n.Left, leftMin, n.Op == "OR" && isAnd(n.Left))
		p.w(" " + n.Op + " ")
		p.operand(n.Right, rightMin, n.Op == "OR" && isAnd(n.Right))

	case *sqlexpr.UnaryOp:
		switch {
		case n.Postfix:
			p.child(n.Operand, precCompare+1)
			p.w(" " + n.Op)
		case n.Op == "NOT":
			if !p.d.supportsOperator("NOT") {
				p.unsupported("operator NOT")
				return
			}
			p.w("NOT (")
			p.expr(n.Operand)
			p.w(")")
		default:
			if !p.d.supportsOperator(n.Op) {
				p.unsupported("operator %s", n.Op)
				return
			}
			p.w(n.Op)
			switch n.Operand.(type) {
			case *sqlexpr.Constant, *sqlexpr.UnaryOp:
				p.w("(")
				p.expr(n.Operand)
				p.w(")")
			default:
				p.child(n.Operand, precUnary)
			}
		}

	case *sqlexpr.CaseWhen:
		p.w("CASE")
		if n.Operand != nil {
			p.w(" ")
			p.expr(n.Operand)
		}
		for _, wh := range n.Whens {
			p.w(" WHEN ")
			p.expr(wh.Cond)
			p.w(" THEN ")
			p.expr(wh.Result)
		}
		if n.Else != nil {
			p.w(" ELSE ")
			p.expr(n.Else)
		}
		p.w(" END")

	case *sqlexpr.Subquery:
		if n.Array {
			if !p.d.Arrays {
				p.unsupported("arrays")
				return
			}
			p.w("ARRAY")
		}
		p.w("(")
		p.query(n.Query, false)
		p.w(")")

	case *sqlexpr.ArrayLiteral:
		if !p.d.Arrays {
			p.unsupported("arrays")
			return
		}
		p.w("ARRAY[")
		p.exprList(n.Elems)
		p.w("]")
		if len(n.Elems) == 0 {
			p.w("::" + n.Mapping().StoreType)
		}

	case *sqlexpr.ArraySlice:
		if !p.d.Arrays {
			p.unsupported("arrays")
			return
		}
		p.subscripted(n.Array)
		p.w("[")
		if n.Lower != nil {
			p.expr(n.Lower)
		}
		p.w(":")
		if n.Upper != nil {
			p.expr(n.Upper)
		}
		p.w("]")

	case *sqlexpr.ArrayIndex:
		if !p.d.Arrays {
			p.unsupported("arrays")
			return
		}
		p.subscripted(n.Array)
		p.w("[")
		p.expr(n.Index)
		p.w("]")

	case *sqlexpr.Cast:
		typ, ok := p.d.typeName(n.Mapping().StoreType)
		if !ok {
			p.unsupported("cast to %s", n.Mapping().StoreType)
			return
		}
		if p.d.Cast == CastFunction {
			p.w("CAST(")
			p.expr(n.Operand)
			p.w(" AS " + typ + ")")
			return
		}
		p.child(n.Operand, precCast)
		p.w("::" + typ)

	case *sqlexpr.Exists:
		if n.Negated {
			p.w("NOT ")
		}
		p.w("EXISTS (")
		p.query(n.Query, false)
		p.w(")")

	case *sqlexpr.In:
		if n.Query == nil && len(n.Values) == 0 {
			if n.Negated {
				p.w("TRUE")
			} else {
				p.w("FALSE")
			}
			return
		}
		p.child(n.Operand, precCompare+1)
		if n.Negated {
			p.w(" NOT")
		}
		p.w(" IN (")
		if n.Query != nil {
			p.query(n.Query, false)
		} else {
			p.exprList(n.Values)
		}
		p.w(")")

	case *sqlexpr.Any:
		if !p.d.Arrays {
			p.unsupported("arrays")
			return
		}
		if n.Negated {
			p.w("NOT (")
		}
		p.child(n.Operand, precCompare+1)
		p.w(" " + n.Op + " ANY(")
		p.expr(n.Array)
		p.w(")")
		if n.Negated {
			p.w(")")
		}

	case *sqlexpr.JsonPath:
		p.child(n.Operand, precOther)
		for i, step := range n.Path {
			op := "->"
			if n.ReturnsText && i == len(n.Path)-1 {
				op = "->>"
			}
			if !p.d.supportsOperator(op) {
				p.unsupported("operator %s", op)
				return
			}
			p.w(op)
			if c, ok := step.(*sqlexpr.Constant); ok {
				p.bareLiteral(c)
				continue
			}
			// ->@key would lex as one operator.
			p.w("(")
			p.expr(step)
			p.w(")")
		}

	default:
		p.fail("unknown expression type %T", e)
	}
}

// operand renders a binary operand. AND inside OR is always parenthesized
// for readability even though precedence makes it unnecessary.
func (p *printer) operand(e sqlexpr.Expr, min int, forceParens bool) {
	if forceParens {
		p.w("(")
		p.expr(e)
		p.w(")")
		return
	}
	p.child(e, min)
}

// subscripted renders the target of [] which must be a column, a parameter
// or parenthesized. A subscripted target is parenthesized too, otherwise
// a[2:3][1] would read as a two-dimensional subscript.
func (p *printer) subscripted(e sqlexpr.Expr) {
	switch e.(type) {
	case *sqlexpr.ColumnRef, *sqlexpr.Parameter:
		p.expr(e)
	default:
		p.w("(")
		p.expr(e)
		p.w(")")
	}
}

func (p *printer) bareLiteral(c *sqlexpr.Constant) {
	s, err := c.Mapping().FormatLiteral(c.Value)
	if err != nil {
		p.fail("literal %s: %w", c.Mapping().StoreType, err)
		return
	}
	p.w(s)
}

func (p *printer) constant(c *sqlexpr.Constant) {
	m := c.Mapping()
	s, err := m.FormatLiteral(c.Value)
	if err != nil {
		p.fail("literal %s: %w", m.StoreType, err)
		return
	}
	if c.IsNull() {
		p.w(s)
		return
	}
	switch m.Style {
	case typemap.LiteralTagged:
		if p.d.TagLiterals {
			p.w(strings.ToUpper(m.StoreType) + " ")
		}
		p.w(s)
	case typemap.LiteralCast:
		if m.Kind == typemap.KindArray && !p.d.Arrays {
			p.unsupported("arrays")
			return
		}
		if p.d.Cast == CastFunction {
			typ, ok := p.d.typeName(m.StoreType)
			if !ok {
				p.unsupported("cast to %s", m.StoreType)
				return
			}
			p.w("CAST(" + s + " AS " + typ + ")")
			return
		}
		p.w(s + "::" + m.StoreType)
	default:
		p.w(s)
	}
}

func (p *printer) placeholder(param *sqlexpr.Parameter) {
	name := param.Name
	if name == "" {
		p.fail("parameter %s has not been bound", param.Key)
		return
	}
	switch p.d.Placeholder {
	case PlaceholderNamed:
		if _, ok := p.number[name]; !ok {
			p.params = append(p.params, name)
			p.number[name] = len(p.params)
		}
		p.w("@" + name)
	case PlaceholderDollar:
		n, ok := p.number[name]
		if !ok {
			p.params = append(p.params, name)
			n = len(p.params)
			p.number[name] = n
		}
		p.w("$" + strconv.Itoa(n))
	case PlaceholderQuestion:
		p.params = append(p.params, name)
		p.w("?")
	}
}
