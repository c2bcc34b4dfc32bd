package translate

import (
	"strings"

	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// attachLaterals moves the lateral joins requested during translation onto
// their target selects. It runs before any pass that copies the tree.
func (c *Context) attachLaterals() {
	for _, s := range c.lateralOrder {
		s.Joins = append(s.Joins, c.laterals[s]...)
	}
	c.laterals = make(map[*sqlexpr.Select][]*sqlexpr.Join)
	c.lateralOrder = nil
}

// collapse removes pass-through derived tables: a FROM (SELECT ...) AS t
// whose inner select neither limits, groups nor deduplicates its rows is
// merged into the outer select. It descends into every nested query and
// modifies the tree in place.
func collapse(q sqlexpr.Query) sqlexpr.Query {
	switch n := q.(type) {
	case *sqlexpr.SetOp:
		n.Left = collapse(n.Left)
		n.Right = collapse(n.Right)
		return n
	case *sqlexpr.Select:
		collapseSelect(n)
		return n
	}
	return q
}

func collapseSelect(s *sqlexpr.Select) {
	for _, cte := range s.With {
		cte.Query = collapse(cte.Query)
	}
	collapseSource(s.From)
	for _, j := range s.Joins {
		collapseSource(j.Source)
		j.On = collapseExpr(j.On)
	}
	for _, p := range s.Projection {
		p.Expr = collapseExpr(p.Expr)
	}
	s.Where = collapseExpr(s.Where)
	s.Having = collapseExpr(s.Having)
	for i, g := range s.GroupBy {
		s.GroupBy[i] = collapseExpr(g)
	}
	for _, o := range s.OrderBy {
		o.Expr = collapseExpr(o.Expr)
	}

	for {
		dt, ok := s.From.(*sqlexpr.DerivedTable)
		if !ok || !mergeDerived(s, dt) {
			return
		}
	}
}

func collapseSource(src sqlexpr.Source) {
	if dt, ok := src.(*sqlexpr.DerivedTable); ok {
		dt.Query = collapse(dt.Query)
	}
}

func collapseExpr(e sqlexpr.Expr) sqlexpr.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *sqlexpr.Subquery:
		n.Query = collapse(n.Query)
		return n
	case *sqlexpr.Exists:
		n.Query = collapse(n.Query)
		return n
	case *sqlexpr.In:
		n.Operand = collapseExpr(n.Operand)
		for i, v := range n.Values {
			n.Values[i] = collapseExpr(v)
		}
		if n.Query != nil {
			n.Query = collapse(n.Query)
		}
		return n
	}
	return sqlexpr.MapChildren(e, collapseExpr)
}

// projectedName is the output column name of a projection, or "" when it
// has none the outer query could refer to.
func projectedName(p *sqlexpr.Projection) string {
	if p.Alias != "" {
		return p.Alias
	}
	if col, ok := p.Expr.(*sqlexpr.ColumnRef); ok {
		return col.Column
	}
	return ""
}

// mergeDerived merges the derived table dt into s when doing so keeps the
// row set and its order. It reports whether s changed.
func mergeDerived(s *sqlexpr.Select, dt *sqlexpr.DerivedTable) bool {
	inner, ok := dt.Query.(*sqlexpr.Select)
	if !ok || inner.IsLimited() || len(inner.With) > 0 || inner.From == nil {
		return false
	}
	if len(inner.OrderBy) > 0 && (len(s.OrderBy) > 0 || s.Distinct || len(s.GroupBy) > 0) {
		return false
	}

	cols := make(map[string]sqlexpr.Expr, len(inner.Projection))
	for _, p := range inner.Projection {
		name := projectedName(p)
		if name == "" {
			return false
		}
		cols[name] = p.Expr
	}

	// Every outer reference must resolve to an inner projection.
	resolvable := true
	check := func(e sqlexpr.Expr) bool {
		if col, ok := e.(*sqlexpr.ColumnRef); ok && col.Table == dt.Alias {
			if _, ok := cols[col.Column]; !ok {
				resolvable = false
			}
		}
		return resolvable
	}
	outer := *s
	outer.From = nil
	outer.With = nil
	sqlexpr.WalkQuery(&outer, check)
	if !resolvable {
		return false
	}

	subst := func(e sqlexpr.Expr) sqlexpr.Expr {
		if col, ok := e.(*sqlexpr.ColumnRef); ok && col.Table == dt.Alias {
			return cols[col.Column]
		}
		return e
	}
	rewritten := sqlexpr.RewriteSelect(&outer, subst)

	s.Projection = rewritten.Projection
	s.From = inner.From
	s.Joins = append(append([]*sqlexpr.Join(nil), inner.Joins...), rewritten.Joins...)
	s.Where = andExprs(inner.Where, rewritten.Where)
	s.GroupBy = rewritten.GroupBy
	s.Having = rewritten.Having
	s.OrderBy = rewritten.OrderBy
	if len(s.OrderBy) == 0 {
		s.OrderBy = inner.OrderBy
	}
	s.Limit = rewritten.Limit
	s.Offset = rewritten.Offset
	return true
}

func andExprs(l, r sqlexpr.Expr) sqlexpr.Expr {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	}
	return sqlexpr.NewBinary("AND", l, r, l.Mapping())
}

// dedupProjections drops repeated projections of the top-level select. The
// returned slice maps each original ordinal to its new one.
func dedupProjections(s *sqlexpr.Select) []int {
	remap := make([]int, len(s.Projection))
	seen := make(map[string]int)
	kept := s.Projection[:0:0]
	for i, p := range s.Projection {
		key := sqlexpr.Key(p.Expr)
		if j, ok := seen[key]; ok {
			remap[i] = j
			continue
		}
		seen[key] = len(kept)
		remap[i] = len(kept)
		kept = append(kept, p)
	}
	s.Projection = kept
	return remap
}

// jsonPrefix is a JSON navigation shared by several projected paths.
type jsonPrefix struct {
	key     string
	operand sqlexpr.Expr
	steps   []sqlexpr.Expr
	users   int
}

// dedupJSONPaths extracts JSON path prefixes shared by two or more
// projected paths of s into lateral single-row derived tables, so the
// document is walked once per prefix. Paths over hstore and other non-JSON
// operands are left alone. Running it again finds no shared prefix: every
// rewritten path starts from the extracted column with a single step.
func (c *Context) dedupJSONPaths(s *sqlexpr.Select) {
	if len(s.GroupBy) > 0 || s.Having != nil {
		return
	}

	var paths []*sqlexpr.JsonPath
	for _, p := range s.Projection {
		sqlexpr.Walk(p.Expr, func(e sqlexpr.Expr) bool {
			switch n := e.(type) {
			case *sqlexpr.JsonPath:
				if k := n.Operand.Mapping().Kind; (k == typemap.KindJSON || k == typemap.KindJSONB) && len(n.Path) > 1 {
					paths = append(paths, n)
				}
			case *sqlexpr.Subquery, *sqlexpr.Exists, *sqlexpr.In:
				return false
			}
			return true
		})
	}
	if len(paths) < 2 {
		return
	}

	prefixKey := func(jp *sqlexpr.JsonPath, n int) string {
		var b strings.Builder
		b.WriteString(sqlexpr.Key(jp.Operand))
		for _, step := range jp.Path[:n] {
			b.WriteString("/")
			b.WriteString(sqlexpr.Key(step))
		}
		return b.String()
	}

	// Count distinct paths per proper prefix.
	counts := make(map[string]int)
	seenPath := make(map[string]bool)
	var unique []*sqlexpr.JsonPath
	for _, jp := range paths {
		k := sqlexpr.Key(jp)
		if seenPath[k] {
			continue
		}
		seenPath[k] = true
		unique = append(unique, jp)
		for n := 1; n < len(jp.Path); n++ {
			counts[prefixKey(jp, n)]++
		}
	}

	// Each path uses its longest shared prefix.
	chosen := make(map[string]*jsonPrefix)
	var order []*jsonPrefix
	use := make(map[string]*jsonPrefix)
	for _, jp := range unique {
		for n := len(jp.Path) - 1; n >= 1; n-- {
			k := prefixKey(jp, n)
			if counts[k] < 2 {
				continue
			}
			px, ok := chosen[k]
			if !ok {
				px = &jsonPrefix{key: k, operand: jp.Operand, steps: jp.Path[:n]}
				chosen[k] = px
				order = append(order, px)
			}
			px.users++
			use[sqlexpr.Key(jp)] = px
			break
		}
	}

	lifted := make(map[*jsonPrefix]*sqlexpr.ColumnRef)
	for _, px := range order {
		if px.users < 2 {
			continue
		}
		m := px.operand.Mapping()
		alias := c.Alias("j")
		extract := sqlexpr.NewJsonPath(px.operand, append([]sqlexpr.Expr(nil), px.steps...), false, m)
		s.Joins = append(s.Joins, &sqlexpr.Join{
			Kind:    sqlexpr.CrossJoin,
			Lateral: true,
			Source: &sqlexpr.DerivedTable{
				Query: &sqlexpr.Select{Projection: []*sqlexpr.Projection{{Expr: extract, Alias: "value"}}},
				Alias: alias,
			},
		})
		lifted[px] = sqlexpr.NewColumn(alias, "value", m, true)
	}
	if len(lifted) == 0 {
		return
	}

	for _, p := range s.Projection {
		p.Expr = sqlexpr.Rewrite(p.Expr, func(e sqlexpr.Expr) sqlexpr.Expr {
			jp, ok := e.(*sqlexpr.JsonPath)
			if !ok {
				return e
			}
			px, ok := use[sqlexpr.Key(jp)]
			if !ok {
				return e
			}
			col, ok := lifted[px]
			if !ok {
				return e
			}
			rest := append([]sqlexpr.Expr(nil), jp.Path[len(px.steps):]...)
			return sqlexpr.NewJsonPath(col, rest, jp.ReturnsText, jp.Mapping())
		})
	}
}
