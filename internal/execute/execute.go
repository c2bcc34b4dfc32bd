// Package execute runs translated commands through database/sql.
//
// Two drivers are supported: PostgreSQL through lib/pq and SQLite through
// go-sqlite3. Array parameters are wrapped with pq.Array for PostgreSQL.
// Rows come back keyed by the host column names of the plan, with client
// columns evaluated after each row is read.
package execute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/translate"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	// ErrNoRows is returned when a Single or scalar query produced no row.
	ErrNoRows = errors.New("sequence contains no elements")
	// ErrNotSingle is returned when a Single query matched more than one row.
	ErrNotSingle = errors.New("sequence contains more than one element")
)

// Executor runs commands against one database.
type Executor struct {
	db     *sql.DB
	driver string
	client map[string]ClientFunc
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for statement tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClientFunc registers fn for client columns calling method.
func WithClientFunc(method string, fn ClientFunc) Option {
	return func(e *Executor) { e.client[method] = fn }
}

// Open connects to a database and verifies the connection.
//
// SQLite connections are limited to one so that in-memory databases are
// shared by every statement.
func Open(driver, dsn string, opts ...Option) (*Executor, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	return New(db, driver, opts...), nil
}

// New wraps an open database. driver selects parameter conversion.
func New(db *sql.DB, driver string, opts ...Option) *Executor {
	e := &Executor{
		db:     db,
		driver: driver,
		client: defaultClientFuncs(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Close closes the database.
func (e *Executor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// DB returns the underlying database.
func (e *Executor) DB() *sql.DB {
	return e.db
}

// Dialect returns the print dialect matching the driver's placeholders.
func (e *Executor) Dialect() sqlprint.Dialect {
	return DialectFor(e.driver)
}

// DialectFor returns the print dialect for a driver name. lib/pq only
// understands $n placeholders.
func DialectFor(driver string) sqlprint.Dialect {
	if driver == DriverSQLite {
		return sqlprint.SQLite
	}
	return sqlprint.PostgresPositional
}

// Row is one result row keyed by host column name.
type Row map[string]any

// Result holds the rows of one command.
type Result struct {
	Columns []string
	Rows    []Row
	Shape   translate.ResultShape
}

// Scalar returns the single value of a scalar result.
func (r *Result) Scalar() (any, error) {
	if len(r.Rows) == 0 || len(r.Columns) == 0 {
		return nil, ErrNoRows
	}
	return r.Rows[0][r.Columns[0]], nil
}

// Query runs cmd and decodes its rows according to the plan.
func (e *Executor) Query(ctx context.Context, cmd *translate.Command) (*Result, error) {
	args, err := e.args(cmd)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing command", "sql", cmd.SQL, "parameters", len(args))

	rows, err := e.db.QueryContext(ctx, cmd.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	width, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	res := &Result{}
	var columns []translate.Column
	if cmd.Plan != nil {
		columns = cmd.Plan.Columns
		res.Shape = cmd.Plan.Shape
	}
	if len(columns) == 0 {
		for i, name := range width {
			columns = append(columns, translate.Column{Name: name, Ordinal: i})
		}
	}
	for _, c := range columns {
		if isInternal(c.Name) {
			continue
		}
		res.Columns = append(res.Columns, c.Name)
	}

	raw := make([]any, len(width))
	ptrs := make([]any, len(width))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row, err := e.decode(columns, raw)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	switch res.Shape {
	case translate.ShapeSingle:
		if len(res.Rows) == 0 {
			return nil, ErrNoRows
		}
		if len(res.Rows) > 1 {
			return nil, ErrNotSingle
		}
	case translate.ShapeScalar:
		if len(res.Rows) == 0 {
			return nil, ErrNoRows
		}
	}
	return res, nil
}

// args converts parameters for the driver.
func (e *Executor) args(cmd *translate.Command) ([]any, error) {
	out := make([]any, len(cmd.Parameters))
	for i, p := range cmd.Parameters {
		v, err := e.driverValue(p.Name, p.Value)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Executor) driverValue(name string, v any) (any, error) {
	arr, ok := v.([]any)
	if !ok {
		return v, nil
	}
	if e.driver != DriverPostgres {
		return nil, fmt.Errorf("parameter %s: %s does not support array parameters", name, e.driver)
	}
	return pq.Array(arr), nil
}

func (e *Executor) decode(columns []translate.Column, raw []any) (Row, error) {
	row := make(Row, len(columns))
	for _, c := range columns {
		if isInternal(c.Name) {
			continue
		}
		if c.Client == nil {
			row[c.Name] = normalize(raw[c.Ordinal])
			continue
		}
		fn, ok := e.client[c.Client.Method]
		if !ok {
			return nil, fmt.Errorf("column %s: no client function %q", c.Name, c.Client.Method)
		}
		args := make([]any, len(c.Client.Args))
		for i, ord := range c.Client.Args {
			args[i] = normalize(raw[ord])
		}
		v, err := fn(args...)
		if err != nil {
			return nil, fmt.Errorf("column %s: %s: %w", c.Name, c.Client.Method, err)
		}
		row[c.Name] = v
	}
	return row, nil
}

// isInternal reports columns that only feed client functions
// ("Name.$0").
func isInternal(name string) bool {
	return strings.Contains(name, ".$")
}

// normalize turns driver byte slices into strings. Both drivers return
// text columns as []byte when scanning into any.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
