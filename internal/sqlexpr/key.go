package sqlexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querylift/internal/ir"
)

// Key returns a canonical structural description of e. Two expressions
// with equal keys render identically in every dialect.
func Key(e Expr) string {
	var b strings.Builder
	writeKey(&b, e)
	return b.String()
}

// QueryKey is Key for queries.
func QueryKey(q Query) string {
	var b strings.Builder
	writeQueryKey(&b, q)
	return b.String()
}

func writeKeys(b *strings.Builder, es []Expr) {
	b.WriteByte('[')
	for i, e := range es {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeKey(b, e)
	}
	b.WriteByte(']')
}

func writeKey(b *strings.Builder, e Expr) {
	if e == nil {
		b.WriteString("nil")
		return
	}
	open := func(tag string) {
		b.WriteByte('(')
		b.WriteString(tag)
		b.WriteByte(' ')
	}
	end := func() { b.WriteByte(')') }

	switch n := e.(type) {
	case *ColumnRef:
		open("col")
		b.WriteString(strconv.Quote(n.Table))
		b.WriteByte('.')
		b.WriteString(strconv.Quote(n.Column))
		end()
	case *Constant:
		open("const")
		v, err := ir.MarshalCanonical(n.Value)
		if err != nil {
			fmt.Fprintf(b, "%v", n.Value)
		} else {
			b.Write(v)
		}
		b.WriteString("::")
		b.WriteString(n.Mapping().StoreType)
		end()
	case *Parameter:
		open("param")
		b.WriteString(n.Key)
		end()
	case *FunctionCall:
		open("fn")
		b.WriteString(n.Name)
		if n.Star {
			b.WriteString(" *")
		}
		if n.Distinct {
			b.WriteString(" distinct")
		}
		b.WriteByte(' ')
		writeKeys(b, n.Args)
		for _, o := range n.OrderBy {
			b.WriteString(" order ")
			writeKey(b, o.Expr)
			if o.Descending {
				b.WriteString(" desc")
			}
		}
		end()
	case *BinaryOp:
		open("op")
		b.WriteString(n.Op)
		b.WriteByte(' ')
		writeKey(b, n.Left)
		b.WriteByte(' ')
		writeKey(b, n.Right)
		end()
	case *UnaryOp:
		if n.Postfix {
			open("postfix")
		} else {
			open("prefix")
		}
		b.WriteString(n.Op)
		b.WriteByte(' ')
		writeKey(b, n.Operand)
		end()
	case *CaseWhen:
		open("case")
		writeKey(b, n.Operand)
		for _, w := range n.Whens {
			b.WriteString(" when ")
			writeKey(b, w.Cond)
			b.WriteString(" then ")
			writeKey(b, w.Result)
		}
		b.WriteString(" else ")
		writeKey(b, n.Else)
		end()
	case *Subquery:
		if n.Array {
			open("array-query")
		} else {
			open("query")
		}
		writeQueryKey(b, n.Query)
		end()
	case *ArrayLiteral:
		open("array")
		writeKeys(b, n.Elems)
		b.WriteString("::")
		b.WriteString(n.Mapping().StoreType)
		end()
	case *ArraySlice:
		open("slice")
		writeKeys(b, []Expr{n.Array, n.Lower, n.Upper})
		end()
	case *ArrayIndex:
		open("index")
		writeKeys(b, []Expr{n.Array, n.Index})
		end()
	case *Cast:
		open("cast")
		writeKey(b, n.Operand)
		b.WriteString("::")
		b.WriteString(n.Mapping().StoreType)
		end()
	case *Exists:
		open("exists")
		if n.Negated {
			b.WriteString("not ")
		}
		writeQueryKey(b, n.Query)
		end()
	case *In:
		open("in")
		if n.Negated {
			b.WriteString("not ")
		}
		writeKey(b, n.Operand)
		b.WriteByte(' ')
		if n.Query != nil {
			writeQueryKey(b, n.Query)
		} else {
			writeKeys(b, n.Values)
		}
		end()
	case *Any:
		open("any")
		if n.Negated {
			b.WriteString("not ")
		}
		b.WriteString(n.Op)
		b.WriteByte(' ')
		writeKey(b, n.Operand)
		b.WriteByte(' ')
		writeKey(b, n.Array)
		end()
	case *JsonPath:
		if n.ReturnsText {
			open("json-text")
		} else {
			open("json")
		}
		writeKey(b, n.Operand)
		b.WriteByte(' ')
		writeKeys(b, n.Path)
		end()
	default:
		fmt.Fprintf(b, "(%T)", e)
	}
}

func writeQueryKey(b *strings.Builder, q Query) {
	switch n := q.(type) {
	case nil:
		b.WriteString("nil")
	case *Select:
		b.WriteString("(select")
		for _, c := range n.With {
			fmt.Fprintf(b, " with %q ", c.Name)
			writeQueryKey(b, c.Query)
		}
		if n.Distinct {
			b.WriteString(" distinct")
		}
		for _, p := range n.Projection {
			b.WriteByte(' ')
			writeKey(b, p.Expr)
			if p.Alias != "" {
				fmt.Fprintf(b, " as %q", p.Alias)
			}
		}
		if n.From != nil {
			b.WriteString(" from ")
			writeSourceKey(b, n.From)
		}
		for _, j := range n.Joins {
			fmt.Fprintf(b, " %s", j.Kind)
			if j.Lateral {
				b.WriteString(" lateral")
			}
			b.WriteByte(' ')
			writeSourceKey(b, j.Source)
			if j.On != nil {
				b.WriteString(" on ")
				writeKey(b, j.On)
			}
		}
		if n.Where != nil {
			b.WriteString(" where ")
			writeKey(b, n.Where)
		}
		if len(n.GroupBy) > 0 {
			b.WriteString(" group ")
			writeKeys(b, n.GroupBy)
		}
		if n.Having != nil {
			b.WriteString(" having ")
			writeKey(b, n.Having)
		}
		for _, o := range n.OrderBy {
			b.WriteString(" order ")
			writeKey(b, o.Expr)
			if o.Descending {
				b.WriteString(" desc")
			}
		}
		if n.Limit != nil {
			b.WriteString(" limit ")
			writeKey(b, n.Limit)
		}
		if n.Offset != nil {
			b.WriteString(" offset ")
			writeKey(b, n.Offset)
		}
		b.WriteByte(')')
	case *SetOp:
		fmt.Fprintf(b, "(%s ", n.Op)
		writeQueryKey(b, n.Left)
		b.WriteByte(' ')
		writeQueryKey(b, n.Right)
		b.WriteByte(')')
	}
}

func writeSourceKey(b *strings.Builder, s Source) {
	switch n := s.(type) {
	case *Table:
		fmt.Fprintf(b, "(table %q.%q %s)", n.Schema, n.Name, n.Alias)
	case *DerivedTable:
		b.WriteString("(derived ")
		writeQueryKey(b, n.Query)
		fmt.Fprintf(b, " %s)", n.Alias)
	case *TableFunction:
		b.WriteString("(tablefn ")
		writeKey(b, n.Call)
		if n.WithOrdinality {
			b.WriteString(" ordinality")
		}
		fmt.Fprintf(b, " %s %v %v)", n.Alias, n.ColumnNames, n.Columns)
	case *Values:
		b.WriteString("(values")
		for _, row := range n.Rows {
			b.WriteByte(' ')
			writeKeys(b, row)
		}
		fmt.Fprintf(b, " %s %v)", n.Alias, n.Columns)
	}
}
