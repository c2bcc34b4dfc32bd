package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/querylift/internal/query"
)

// ValidationResult holds the outcome of validating a model and queries.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Model    string            `json:"model"`
	Entities int               `json:"entities"`
	Queries  []QueryValidation `json:"queries,omitempty"`
}

// QueryValidation holds the structural issues of one query document.
type QueryValidation struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

func (r *ValidationResult) renderText(w io.Writer) error {
	fmt.Fprintf(w, "✓ Model %s: %d entities\n", r.Model, r.Entities)
	for _, q := range r.Queries {
		if q.Valid {
			fmt.Fprintf(w, "✓ %s\n", q.File)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", q.File)
		for _, issue := range q.Issues {
			fmt.Fprintf(w, "  %s\n", issue)
		}
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [query-file]...",
		Short: "Validate a model and query documents without translating",
		Long: `Validate the CUE model and, optionally, query documents.

The model is loaded and every property type is checked against the type
mapping registry. Query documents are decoded and checked for structural
problems (unknown lambda parameters, misplaced client calls, empty
projections). Unsupported operations are only found by translate.

Examples:
  querylift validate --model ./model
  querylift validate -m model.cue queries/*.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg := opts.config()

	lm, err := loadModel(opts.fs(), cfg, opts.Logger())
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	f.VerboseLog("Loaded %d entities from %s", len(lm.Model.Entities()), cfg.Model)

	result := &ValidationResult{
		Valid:    true,
		Model:    cfg.Model,
		Entities: len(lm.Model.Entities()),
	}
	for _, path := range files {
		qv := QueryValidation{File: path, Valid: true}
		doc, err := loadQuery(opts.fs(), path, cmd.InOrStdin())
		if err != nil {
			qv.Valid = false
			qv.Issues = []string{err.Error()}
		} else if vr := query.Validate(doc.Query); !vr.Valid {
			qv.Valid = false
			for _, issue := range vr.Issues {
				qv.Issues = append(qv.Issues, issue.String())
			}
		}
		if !qv.Valid {
			result.Valid = false
		}
		result.Queries = append(result.Queries, qv)
	}

	if !result.Valid {
		if f.Format == "json" {
			if err := f.Error(ErrCodeInvalidQuery, "validation failed", result); err != nil {
				return err
			}
		} else if err := result.renderText(f.Writer); err != nil {
			return err
		}
		return NewExitError(ExitFailure, ErrCodeInvalidQuery+": validation failed")
	}
	return f.Success(result)
}
