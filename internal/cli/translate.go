package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/translate"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Check bool
}

// TranslateResult is the translation of one query document.
type TranslateResult struct {
	Name       string            `json:"name,omitempty"`
	File       string            `json:"file"`
	Dialect    string            `json:"dialect"`
	SQL        string            `json:"sql"`
	Parameters []ParameterOutput `json:"parameters,omitempty"`
	Shape      string            `json:"shape"`
	ShapeHash  string            `json:"shape_hash"`
	PlanID     string            `json:"plan_id"`
	Columns    []ColumnOutput    `json:"columns"`
	Checked    bool              `json:"checked,omitempty"`
}

// ParameterOutput is one distinct parameter of a command.
type ParameterOutput struct {
	Name      string `json:"name"`
	StoreType string `json:"store_type"`
	Value     any    `json:"value"`
}

// ColumnOutput describes one result column.
type ColumnOutput struct {
	Name      string `json:"name"`
	StoreType string `json:"store_type,omitempty"`
	Client    string `json:"client,omitempty"`
}

type translateResults []TranslateResult

func (rs translateResults) renderText(w io.Writer) error {
	for i, r := range rs {
		if len(rs) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "-- %s (%s)\n", r.Name, r.File)
		}
		fmt.Fprintln(w, r.SQL)
		if len(r.Parameters) > 0 {
			fmt.Fprintln(w, "-- parameters")
			for _, p := range r.Parameters {
				fmt.Fprintf(w, "--   %s %s %s\n", p.Name, p.StoreType, renderValue(p.Value))
			}
		}
		fmt.Fprintf(w, "-- shape: %s\n", r.Shape)
		if r.Checked {
			fmt.Fprintln(w, "-- ✓ parses as PostgreSQL")
		}
	}
	return nil
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <query-file>...",
		Short: "Translate query documents to SQL",
		Long: `Translate query documents to SQL against a CUE model.

Each query file is a YAML or JSON document; "-" reads one from stdin.
Documents of the same shape share a compiled plan.

With --check the query is also rendered for PostgreSQL with positional
placeholders and parsed with the PostgreSQL parser.

Examples:
  querylift translate --model ./model orders.yaml
  querylift translate -m model.cue -d sqlite q1.yaml q2.yaml
  querylift translate -m model.cue --check --format json orders.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "parse the PostgreSQL rendering with the PostgreSQL parser")

	return cmd
}

func runTranslate(opts *TranslateOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg := opts.config()
	logger := opts.Logger()

	lm, err := loadModel(opts.fs(), cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	dialect := cfg.SQLDialect()
	tr := newTranslator(lm, cfg, dialect, logger)
	checker := tr
	if opts.Check && dialect.Name != sqlprint.PostgresPositional.Name {
		checker = newTranslator(lm, cfg, sqlprint.PostgresPositional, logger)
	}

	results := make(translateResults, 0, len(files))
	for _, path := range files {
		doc, err := loadQuery(opts.fs(), path, cmd.InOrStdin())
		if err != nil {
			return f.Fail(ExitFailure, err)
		}
		command, err := tr.Translate(doc.Query)
		if err != nil {
			return f.Fail(ExitFailure, fmt.Errorf("%s: %w", path, err))
		}
		result := newTranslateResult(path, doc.Name, command)

		if opts.Check {
			checked, err := checker.Compile(doc.Query)
			if err != nil {
				return f.Fail(ExitFailure, fmt.Errorf("%s: %w", path, err))
			}
			if err := CheckSQL(checked.SQL); err != nil {
				return f.Fail(ExitFailure, fmt.Errorf("%s: %w", path, err))
			}
			result.Checked = true
		}
		logger.Debug("query translated", "file", path, "plan", result.PlanID, "parameters", len(result.Parameters))
		results = append(results, result)
	}

	return f.Success(results)
}

func newTranslateResult(path, name string, cmd *translate.Command) TranslateResult {
	p := cmd.Plan
	r := TranslateResult{
		Name:      name,
		File:      path,
		Dialect:   p.Dialect,
		SQL:       cmd.SQL,
		Shape:     string(p.Shape),
		ShapeHash: p.ShapeHash,
		PlanID:    p.ID.String(),
	}
	seen := make(map[string]bool)
	for _, param := range cmd.Parameters {
		if seen[param.Name] {
			continue
		}
		seen[param.Name] = true
		r.Parameters = append(r.Parameters, ParameterOutput{
			Name:      param.Name,
			StoreType: param.StoreType,
			Value:     param.Value,
		})
	}
	for _, c := range p.Columns {
		// client call arguments
		if strings.Contains(c.Name, ".$") {
			continue
		}
		col := ColumnOutput{Name: c.Name, StoreType: c.StoreType}
		if c.Client != nil {
			col.Client = c.Client.Method
		}
		r.Columns = append(r.Columns, col)
	}
	return r
}

// renderValue prints a parameter value as canonical JSON.
func renderValue(v any) string {
	iv, err := ir.FromGo(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	out, err := ir.MarshalCanonical(iv)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
