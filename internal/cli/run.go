package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/querylift/internal/execute"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver string
	DSN    string
}

// RunResult holds the rows produced by one query.
type RunResult struct {
	SQL     string        `json:"sql"`
	Shape   string        `json:"shape"`
	Columns []string      `json:"columns"`
	Rows    []execute.Row `json:"rows"`
}

func (r *RunResult) renderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			if v := row[c]; v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(r.Rows))
	return err
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query-file>",
		Short: "Translate a query and execute it",
		Long: `Translate a query document and execute it against a database.

The SQL dialect follows the driver: sqlite3 renders SQLite, postgres
renders PostgreSQL with positional placeholders. Client-side projections
are evaluated on the fetched rows.

Examples:
  querylift run -m model.cue --driver sqlite3 --dsn ./shop.db orders.yaml
  querylift run -m ./model --driver postgres --dsn "postgres://localhost/shop?sslmode=disable" orders.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", execute.DriverSQLite, "database driver (sqlite3|postgres)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name (required)")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

func runQuery(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg := opts.config()
	logger := opts.Logger()

	lm, err := loadModel(opts.fs(), cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	doc, err := loadQuery(opts.fs(), path, cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitFailure, err)
	}

	tr := newTranslator(lm, cfg, execute.DialectFor(opts.Driver), logger)
	command, err := tr.Translate(doc.Query)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Errorf("%s: %w", path, err))
	}

	logger.Info("opening database", "driver", opts.Driver)
	exec, err := execute.Open(opts.Driver, opts.DSN, execute.WithLogger(logger))
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	defer func() {
		if closeErr := exec.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := exec.Query(ctx, command)
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	logger.Debug("query executed", "file", path, "rows", len(res.Rows))

	return f.Success(&RunResult{
		SQL:     command.SQL,
		Shape:   string(res.Shape),
		Columns: res.Columns,
		Rows:    res.Rows,
	})
}
