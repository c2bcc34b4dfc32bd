package translate

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// Context carries the state of one compilation.
//
// A Context is created per top-level query and discarded after printing.
// It is not safe for concurrent use.
type Context struct {
	reg   *typemap.Registry
	model *typemap.Model
	rec   *Recognizer
	opts  *Options
	log   *slog.Logger

	// aliases counts issued aliases per base letter; counters only grow.
	aliases map[string]int

	// laterals holds joins requested by collection expansions, attached to
	// their target select by the optimizer.
	laterals     map[*sqlexpr.Select][]*sqlexpr.Join
	lateralOrder []*sqlexpr.Select

	ctes     []*sqlexpr.CTE
	cteNames map[string]int

	scopes []map[string]*Value
	path   []string

	// clientOK is set while translating the final projection.
	clientOK bool
}

func newContext(reg *typemap.Registry, model *typemap.Model, rec *Recognizer, opts *Options) *Context {
	return &Context{
		reg:      reg,
		model:    model,
		rec:      rec,
		opts:     opts,
		log:      opts.Logger,
		aliases:  make(map[string]int),
		laterals: make(map[*sqlexpr.Select][]*sqlexpr.Join),
		cteNames: make(map[string]int),
	}
}

// Registry returns the type mapping registry of the compilation.
func (c *Context) Registry() *typemap.Registry { return c.reg }

// Bool returns the boolean mapping.
func (c *Context) Bool() *typemap.Mapping { return c.reg.Bool() }

// Mapping resolves the store mapping of t, reporting a type mapping
// mismatch when t has none.
func (c *Context) Mapping(t typemap.Type) (*typemap.Mapping, error) {
	m, err := c.reg.Find(t)
	if err != nil {
		return nil, c.fail(NewTypeMismatchError("", t.String(), "%v", err))
	}
	return m, nil
}

func (c *Context) mustScalar(k typemap.Kind) *typemap.Mapping {
	m, ok := c.reg.Scalar(k)
	if !ok {
		panic(fmt.Sprintf("translate: no built-in mapping for %s", k))
	}
	return m
}

// Alias returns a fresh row-source alias derived from base: the first
// letter of base, lower-cased, with a numeric suffix after the first use.
func (c *Context) Alias(base string) string {
	letter := "t"
	for _, r := range base {
		if unicode.IsLetter(r) {
			letter = string(unicode.ToLower(r))
			break
		}
	}
	n := c.aliases[letter]
	c.aliases[letter] = n + 1
	if n == 0 {
		return letter
	}
	return letter + strconv.Itoa(n)
}

// addLateral requests a lateral join on target.
func (c *Context) addLateral(target *sqlexpr.Select, j *sqlexpr.Join) {
	if _, ok := c.laterals[target]; !ok {
		c.lateralOrder = append(c.lateralOrder, target)
	}
	c.laterals[target] = append(c.laterals[target], j)
}

// addCTE registers a common table expression and returns its unique name.
func (c *Context) addCTE(base string, q sqlexpr.Query) string {
	n := c.cteNames[base]
	c.cteNames[base] = n + 1
	name := base
	if n > 0 {
		name = base + strconv.Itoa(n)
	}
	c.ctes = append(c.ctes, &sqlexpr.CTE{Name: name, Query: q})
	return name
}

// bind opens a lambda scope. The returned func closes it.
func (c *Context) bind(params []string, args []*Value) func() {
	scope := make(map[string]*Value, len(params))
	for i, p := range params {
		if i < len(args) {
			scope[p] = args[i]
		}
	}
	c.scopes = append(c.scopes, scope)
	return func() { c.scopes = c.scopes[:len(c.scopes)-1] }
}

func (c *Context) lookup(name string) (*Value, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// at pushes a position segment. The returned func pops it.
func (c *Context) at(segment string) func() {
	c.path = append(c.path, segment)
	return func() { c.path = c.path[:len(c.path)-1] }
}

// Position returns the current position in the query tree.
func (c *Context) Position() string {
	return strings.Join(c.path, "")
}

// fail stamps translation errors with the current position.
func (c *Context) fail(err error) error {
	var te *TranslationError
	if errors.As(err, &te) && te.Position == "" {
		te.Position = c.Position()
	}
	return err
}

// Unsupported builds a positioned unsupported-operation error.
func (c *Context) Unsupported(operation, member, format string, args ...any) error {
	return c.fail(NewUnsupportedError(operation, member, format, args...))
}

// Mismatch builds a positioned type-mapping-mismatch error.
func (c *Context) Mismatch(operation, member, format string, args ...any) error {
	return c.fail(NewTypeMismatchError(operation, member, format, args...))
}

// apply translates a lambda body with its parameters bound to args.
func (c *Context) apply(l *query.Lambda, args ...*Value) (*Value, error) {
	if l == nil {
		return nil, c.Unsupported("", "", "missing lambda")
	}
	if len(l.Params) != len(args) {
		return nil, c.Unsupported("", "", "lambda takes %d parameter(s), got %d", len(l.Params), len(args))
	}
	defer c.bind(l.Params, args)()
	defer c.at(".body")()
	return c.expr(l.Body)
}

// applyScalar is apply for lambdas that must yield a scalar expression.
func (c *Context) applyScalar(l *query.Lambda, args ...*Value) (*Value, error) {
	v, err := c.apply(l, args...)
	if err != nil {
		return nil, err
	}
	return c.toScalar(v)
}

// applyPredicate is apply for lambdas that must yield a boolean.
func (c *Context) applyPredicate(l *query.Lambda, args ...*Value) (sqlexpr.Expr, error) {
	v, err := c.applyScalar(l, args...)
	if err != nil {
		return nil, err
	}
	if v.Type.Kind != typemap.KindBool {
		return nil, c.Mismatch("", v.Type.String(), "predicate must be boolean, got %s", v.Type)
	}
	return v.Expr, nil
}

// capturedParam builds the parameter of a captured host variable. The key
// covers name, store type and value, so repeated references share one
// placeholder.
func (c *Context) capturedParam(cap *query.Captured, m *typemap.Mapping) (*sqlexpr.Parameter, error) {
	key, err := ir.ParameterKey(cap.Name, m.StoreType, cap.Value)
	if err != nil {
		return nil, c.Mismatch("", cap.Name, "captured %s: %v", cap.Name, err)
	}
	p := sqlexpr.NewParameter(key, cap.Name, m, cap.Type.Nullable)
	p.Captured = cap.Name
	if cap.Type.Kind == typemap.KindArray {
		p.ElemNullable = cap.Type.ElemType().Nullable
	}
	return p, nil
}

func (c *Context) constant(v ir.IRValue, m *typemap.Mapping) *sqlexpr.Constant {
	return sqlexpr.NewConstant(v, m)
}

func (c *Context) intConst(n int64) *sqlexpr.Constant {
	return sqlexpr.NewConstant(ir.IRInt(n), c.mustScalar(typemap.KindInt))
}

func (c *Context) boolConst(b bool) *sqlexpr.Constant {
	return sqlexpr.NewConstant(ir.IRBool(b), c.Bool())
}

func (c *Context) textConst(s string) *sqlexpr.Constant {
	return sqlexpr.NewConstant(ir.IRString(s), c.mustScalar(typemap.KindText))
}

func (c *Context) and(l, r sqlexpr.Expr) sqlexpr.Expr {
	if l == nil {
		return r
	}
	if r == nil {
		return l
	}
	return sqlexpr.NewBinary("AND", l, r, c.Bool())
}

func (c *Context) or(l, r sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewBinary("OR", l, r, c.Bool())
}

func (c *Context) not(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewUnary("NOT", e, c.Bool())
}

func (c *Context) isNull(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewPostfix("IS NULL", e, c.Bool())
}

func (c *Context) isNotNull(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewPostfix("IS NOT NULL", e, c.Bool())
}

func (c *Context) cmp(op string, l, r sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewBinary(op, l, r, c.Bool())
}
