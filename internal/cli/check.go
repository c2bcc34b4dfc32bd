package cli

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// CheckError reports SQL that the PostgreSQL parser rejected.
type CheckError struct {
	SQL string
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("generated SQL does not parse: %v", e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// CheckSQL parses sql with the PostgreSQL parser and requires exactly one
// statement. Only positional ($n) output parses: named @p placeholders are
// not PostgreSQL syntax.
func CheckSQL(sql string) error {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return &CheckError{SQL: sql, Err: err}
	}
	if n := len(tree.GetStmts()); n != 1 {
		return &CheckError{SQL: sql, Err: fmt.Errorf("expected one statement, got %d", n)}
	}
	return nil
}
