package sqlprint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// PlaceholderStyle selects how parameters appear in SQL text.
type PlaceholderStyle int

const (
	// PlaceholderNamed renders @name; each name appears once in the
	// parameter list.
	PlaceholderNamed PlaceholderStyle = iota
	// PlaceholderDollar renders $1, $2 numbered by first occurrence.
	PlaceholderDollar
	// PlaceholderQuestion renders ?; the parameter list repeats a name for
	// every occurrence.
	PlaceholderQuestion
)

// CastStyle selects the conversion syntax.
type CastStyle int

const (
	CastPostfix  CastStyle = iota // x::integer
	CastFunction                  // CAST(x AS INTEGER)
)

// Dialect holds every dialect-dependent printing decision. The printer has
// no dialect knowledge of its own.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	Cast        CastStyle

	// QuoteIdent quotes a table, column or CTE name. Aliases are generated
	// identifiers and are never quoted.
	QuoteIdent func(string) string

	// TagLiterals prefixes type-tagged literals with their type name
	// (INET '10.0.0.1'). Without it they render bare.
	TagLiterals bool

	// Arrays enables ARRAY constructors, subscripts, slices and ANY.
	Arrays bool

	// Lateral enables LATERAL joins and set-returning table functions.
	Lateral bool

	// LimitForOffset is the LIMIT value required before a lone OFFSET, or
	// empty when OFFSET may stand alone.
	LimitForOffset string

	// Operators lists supported infix and prefix operators; nil means all.
	Operators map[string]bool

	// Functions lists supported function names after renaming; nil means all.
	Functions map[string]bool

	// FunctionNames renames functions for this dialect.
	FunctionNames map[string]string

	// TypeNames renames store types in casts; a missing entry makes the
	// cast unsupported when the map is non-nil.
	TypeNames map[string]string

	// ValuesAsUnion renders VALUES row sources as UNION ALL selects, for
	// dialects without column aliases on VALUES.
	ValuesAsUnion bool
}

var simpleIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var reserved = map[string]bool{
	"all": true, "and": true, "any": true, "array": true, "as": true, "asc": true,
	"case": true, "cast": true, "check": true, "column": true, "default": true,
	"desc": true, "distinct": true, "else": true, "end": true, "except": true,
	"false": true, "for": true, "from": true, "group": true, "having": true,
	"in": true, "intersect": true, "is": true, "join": true, "limit": true,
	"not": true, "null": true, "offset": true, "on": true, "or": true,
	"order": true, "select": true, "table": true, "then": true, "true": true,
	"union": true, "user": true, "using": true, "when": true, "where": true,
	"with": true,
}

// quoteIfNeeded double-quotes identifiers that are not plain lower-case
// words, so e."Int" is quoted and u.value is not.
func quoteIfNeeded(name string) string {
	if simpleIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Postgres renders named @name placeholders, as accepted by drivers that
// bind parameters by name.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: PlaceholderNamed,
	Cast:        CastPostfix,
	QuoteIdent:  quoteIfNeeded,
	TagLiterals: true,
	Arrays:      true,
	Lateral:     true,
}

// PostgresPositional renders $n placeholders for lib/pq and quotes every
// identifier through pq.QuoteIdentifier.
var PostgresPositional = Dialect{
	Name:        "postgres-positional",
	Placeholder: PlaceholderDollar,
	Cast:        CastPostfix,
	QuoteIdent:  pq.QuoteIdentifier,
	TagLiterals: true,
	Arrays:      true,
	Lateral:     true,
}

// SQLite renders ? placeholders and supports the scalar subset: no arrays,
// no lateral joins, and none of the PostgreSQL containment operators.
var SQLite = Dialect{
	Name:           "sqlite",
	Placeholder:    PlaceholderQuestion,
	Cast:           CastFunction,
	QuoteIdent:     quoteIfNeeded,
	LimitForOffset: "-1",
	ValuesAsUnion:  true,
	Operators: setOf(
		"=", "<>", "<", "<=", ">", ">=", "AND", "OR", "NOT",
		"+", "-", "*", "/", "%", "||", "&", "|", "<<", ">>", "~",
		"LIKE", "->", "->>",
	),
	Functions: setOf(
		"COALESCE", "NULLIF", "COUNT", "SUM", "MIN", "MAX", "AVG", "TOTAL",
		"abs", "lower", "upper", "length", "substr", "instr", "trim", "ltrim", "rtrim",
		"replace", "round", "max", "min", "json_array_length", "json_type",
		"group_concat",
	),
	FunctionNames: map[string]string{
		"GREATEST":    "max",
		"LEAST":       "min",
		"strpos":      "instr",
		"substring":   "substr",
		"btrim":       "trim",
		"json_typeof": "json_type",
		"string_agg":  "group_concat",
	},
	TypeNames: map[string]string{
		"integer":          "INTEGER",
		"bigint":           "INTEGER",
		"smallint":         "INTEGER",
		"boolean":          "INTEGER",
		"double precision": "REAL",
		"real":             "REAL",
		"numeric":          "NUMERIC",
		"text":             "TEXT",
		"bytea":            "BLOB",
	},
}

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

var dialects = map[string]Dialect{
	Postgres.Name:           Postgres,
	PostgresPositional.Name: PostgresPositional,
	SQLite.Name:             SQLite,
}

// Lookup returns a built-in dialect by name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown dialect %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names lists the built-in dialects in sorted order.
func Names() []string {
	out := make([]string, 0, len(dialects))
	for n := range dialects {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (d Dialect) supportsOperator(op string) bool {
	return d.Operators == nil || d.Operators[op]
}

func (d Dialect) functionName(name string) (string, bool) {
	if renamed, ok := d.FunctionNames[name]; ok {
		name = renamed
	}
	if d.Functions == nil {
		return name, true
	}
	return name, d.Functions[name]
}

func (d Dialect) typeName(store string) (string, bool) {
	if d.TypeNames == nil {
		return store, true
	}
	t, ok := d.TypeNames[store]
	return t, ok
}
