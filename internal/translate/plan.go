package translate

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/typemap"
)

// DefaultMaxInlineList is the largest constant collection rendered as an
// inline IN list before it is sent as one array parameter.
const DefaultMaxInlineList = 32

// planNamespace seeds deterministic plan IDs.
var planNamespace = uuid.MustParse("5b0c8c1e-6f51-4d8e-9a53-2f1f8f0d7a64")

// Cache stores compiled plans by key. Concurrent callers asking for the
// same missing key must observe a single call to compute.
type Cache interface {
	GetOrCompute(key string, compute func() (*Plan, error)) (plan *Plan, hit bool, err error)
}

// Options configures a Translator.
type Options struct {
	// Dialect selects the SQL rendering. Defaults to sqlprint.Postgres.
	Dialect sqlprint.Dialect

	// AnonymousPrefix names parameters that have no captured variable
	// name: p0, p1, ...
	AnonymousPrefix string

	// MaxInlineList bounds the size of inline IN lists.
	MaxInlineList int

	// Logger receives per-compilation debug records. Defaults to a
	// handler that discards everything.
	Logger *slog.Logger

	// Cache, when set, memoizes plans by query shape.
	Cache Cache
}

// Option configures a Translator.
type Option func(*Options)

// WithDialect sets the SQL dialect.
func WithDialect(d sqlprint.Dialect) Option {
	return func(o *Options) { o.Dialect = d }
}

// WithAnonymousPrefix sets the name prefix of anonymous parameters.
func WithAnonymousPrefix(prefix string) Option {
	return func(o *Options) { o.AnonymousPrefix = prefix }
}

// WithMaxInlineList sets the largest inline IN list. Values below one
// disable inline lists entirely.
func WithMaxInlineList(n int) Option {
	return func(o *Options) { o.MaxInlineList = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithCache enables plan caching.
func WithCache(c Cache) Option {
	return func(o *Options) { o.Cache = c }
}

// Translator compiles query expression trees against one model.
//
// A Translator is safe for concurrent use: every compilation gets its own
// Context, and the only shared mutable state is the optional Cache.
type Translator struct {
	reg   *typemap.Registry
	model *typemap.Model
	rec   *Recognizer
	opts  Options
}

// New creates a Translator with the built-in family translators.
func New(reg *typemap.Registry, model *typemap.Model, opts ...Option) *Translator {
	return NewWithRecognizer(reg, model, DefaultRecognizer(), opts...)
}

// NewWithRecognizer creates a Translator that dispatches method calls
// through rec.
func NewWithRecognizer(reg *typemap.Registry, model *typemap.Model, rec *Recognizer, opts ...Option) *Translator {
	o := Options{
		Dialect:         sqlprint.Postgres,
		AnonymousPrefix: "p",
		MaxInlineList:   DefaultMaxInlineList,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return &Translator{reg: reg, model: model, rec: rec, opts: o}
}

// Dialect returns the dialect plans are rendered in.
func (t *Translator) Dialect() sqlprint.Dialect { return t.opts.Dialect }

// Translate compiles q and binds the captured values it carries.
func (t *Translator) Translate(q *query.Query) (*Command, error) {
	p, err := t.Compile(q)
	if err != nil {
		return nil, err
	}
	return p.Bind(query.CapturedValues(q))
}

// Compile translates q into a reusable plan. Queries of the same shape
// share one plan; only the values passed to Plan.Bind differ.
func (t *Translator) Compile(q *query.Query) (*Plan, error) {
	if vr := query.Validate(q); !vr.Valid {
		if is, ok := vr.ClientEvaluation(); ok {
			te := NewClientEvaluationError(is.ClientMethod)
			te.Position = is.Position
			return nil, te
		}
		return nil, vr.Err()
	}
	hash, err := query.ShapeHash(q)
	if err != nil {
		return nil, fmt.Errorf("hash query shape: %w", err)
	}
	log := t.opts.Logger.With("shape", hash, "dialect", t.opts.Dialect.Name)

	if t.opts.Cache == nil {
		return t.compile(q, hash, log)
	}
	p, hit, err := t.opts.Cache.GetOrCompute(t.cacheKey(hash), func() (*Plan, error) {
		return t.compile(q, hash, log)
	})
	if err != nil {
		return nil, err
	}
	log.Debug("plan cache lookup", "hit", hit)
	return p, nil
}

func (t *Translator) cacheKey(hash string) string {
	return fmt.Sprintf("%s/%s/%d/%s", t.opts.Dialect.Name, t.opts.AnonymousPrefix, t.opts.MaxInlineList, hash)
}

// compile runs the pipeline: translation, null semantics, tree
// optimization, parameter binding and printing.
func (t *Translator) compile(q *query.Query, hash string, log *slog.Logger) (*Plan, error) {
	c := newContext(t.reg, t.model, t.rec, &t.opts)
	c.log = log

	st, err := c.compile(q)
	if err != nil {
		log.Debug("translation failed", "code", CodeOf(err), "error", err)
		return nil, err
	}
	c.attachLaterals()

	sel := (&nullRewriter{boolean: t.reg.Bool()}).selectStmt(st.sel)
	collapse(sel)

	remap := dedupProjections(sel)
	columns := make([]Column, len(st.columns))
	for i, col := range st.columns {
		if col.Ordinal >= 0 {
			col.Ordinal = remap[col.Ordinal]
		}
		if col.Client != nil {
			cc := &ClientColumn{Method: col.Client.Method, Args: make([]int, len(col.Client.Args))}
			for j, a := range col.Client.Args {
				cc.Args[j] = remap[a]
			}
			col.Client = cc
		}
		columns[i] = col
	}
	if t.opts.Dialect.Lateral {
		c.dedupJSONPaths(sel)
	}

	slots := newBinder(t.opts.AnonymousPrefix).bind(sel)

	res, err := sqlprint.Print(sel, t.opts.Dialect)
	if err != nil {
		if sqlprint.IsUnsupported(err) {
			return nil, NewUnsupportedError("", "", "%v", err)
		}
		return nil, fmt.Errorf("print statement: %w", err)
	}

	p := &Plan{
		ID:           uuid.NewSHA1(planNamespace, []byte(t.cacheKey(hash))),
		ShapeHash:    hash,
		SQL:          res.SQL,
		Dialect:      t.opts.Dialect.Name,
		Slots:        slots,
		Placeholders: res.Params,
		Columns:      columns,
		Shape:        st.shape,
	}
	log.Debug("plan compiled",
		"plan", p.ID,
		"parameters", len(slots),
		"columns", len(columns),
	)
	return p, nil
}

// Plan is a compiled query. It is immutable and may be bound concurrently.
type Plan struct {
	ID        uuid.UUID
	ShapeHash string
	SQL       string
	Dialect   string

	// Slots lists the distinct parameters in first-use order.
	Slots []*Slot

	// Placeholders lists slot names in placeholder order. For dialects
	// with positional ? placeholders a name repeats per occurrence.
	Placeholders []string

	Columns []Column
	Shape   ResultShape
}

// HasClientColumns reports whether rows need post-processing on the client.
func (p *Plan) HasClientColumns() bool {
	for _, c := range p.Columns {
		if c.Client != nil {
			return true
		}
	}
	return false
}

// Parameter is one value sent alongside the SQL text.
type Parameter struct {
	Name      string
	Value     any
	StoreType string
}

// Command is an executable statement.
type Command struct {
	SQL        string
	Parameters []Parameter
	Plan       *Plan
}

// Args returns the parameter values in placeholder order.
func (c *Command) Args() []any {
	out := make([]any, len(c.Parameters))
	for i, p := range c.Parameters {
		out[i] = p.Value
	}
	return out
}

// Bind resolves every slot against the captured values of one execution.
// The plan itself is not modified.
func (p *Plan) Bind(captured map[string]ir.IRValue) (*Command, error) {
	byName := make(map[string]Parameter, len(p.Slots))
	for _, s := range p.Slots {
		v, err := s.resolve(captured)
		if err != nil {
			return nil, err
		}
		dv, err := s.Mapping().FormatParam(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", s.Name, err)
		}
		byName[s.Name] = Parameter{Name: s.Name, Value: dv, StoreType: s.StoreType}
	}
	cmd := &Command{SQL: p.SQL, Plan: p, Parameters: make([]Parameter, len(p.Placeholders))}
	for i, name := range p.Placeholders {
		cmd.Parameters[i] = byName[name]
	}
	return cmd, nil
}
