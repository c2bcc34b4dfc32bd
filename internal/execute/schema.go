package execute

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

// CreateTable creates the table of entity e. Column types come from reg
// for PostgreSQL and from SQLite type affinity otherwise.
func (e *Executor) CreateTable(ctx context.Context, reg *typemap.Registry, ent *typemap.Struct) error {
	d := e.Dialect()
	cols := make([]string, 0, len(ent.Properties))
	for _, p := range ent.Properties {
		typ, err := e.columnType(reg, p.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", ent.Name, p.Name, err)
		}
		col := d.QuoteIdent(p.ColumnName()) + " " + typ
		if !p.Type.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", tableName(e, ent), strings.Join(cols, ", "))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", ent.Table, err)
	}
	return nil
}

// Insert adds one row to the table of ent. Values are host values keyed by
// property name and converted through reg; missing properties are NULL.
func (e *Executor) Insert(ctx context.Context, reg *typemap.Registry, ent *typemap.Struct, values map[string]ir.IRValue) error {
	d := e.Dialect()
	names := make([]string, 0, len(ent.Properties))
	marks := make([]string, 0, len(ent.Properties))
	args := make([]any, 0, len(ent.Properties))
	for i, p := range ent.Properties {
		v, ok := values[p.Name]
		if !ok {
			v = ir.IRNull{}
		}
		m, err := reg.Find(p.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", ent.Name, p.Name, err)
		}
		dv, err := m.FormatParam(v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", ent.Name, p.Name, err)
		}
		if dv, err = e.driverValue(p.Name, dv); err != nil {
			return err
		}
		names = append(names, d.QuoteIdent(p.ColumnName()))
		if e.driver == DriverSQLite {
			marks = append(marks, "?")
		} else {
			marks = append(marks, fmt.Sprintf("$%d", i+1))
		}
		args = append(args, dv)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName(e, ent), strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", ent.Table, err)
	}
	return nil
}

func (e *Executor) columnType(reg *typemap.Registry, t typemap.Type) (string, error) {
	m, err := reg.Find(t)
	if err != nil {
		return "", err
	}
	if e.driver == DriverPostgres {
		return m.StoreType, nil
	}
	switch m.Kind {
	case typemap.KindInt, typemap.KindBigInt, typemap.KindSmallInt, typemap.KindBool:
		return "INTEGER", nil
	case typemap.KindDouble, typemap.KindReal, typemap.KindDecimal:
		return "REAL", nil
	case typemap.KindBytes:
		return "BLOB", nil
	}
	return "TEXT", nil
}

func tableName(e *Executor, ent *typemap.Struct) string {
	d := e.Dialect()
	if ent.Schema != "" && e.driver == DriverPostgres {
		return d.QuoteIdent(ent.Schema) + "." + d.QuoteIdent(ent.Table)
	}
	return d.QuoteIdent(ent.Table)
}
