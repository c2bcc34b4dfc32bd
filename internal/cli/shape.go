package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
)

// ShapeResult describes the plan-cache identity of a query.
type ShapeResult struct {
	File     string           `json:"file"`
	Hash     string           `json:"hash"`
	Shape    json.RawMessage  `json:"shape"`
	Captured []CapturedOutput `json:"captured,omitempty"`
}

// CapturedOutput is one captured variable: part of the shape by name and
// type, excluded from it by value.
type CapturedOutput struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (r *ShapeResult) renderText(w io.Writer) error {
	fmt.Fprintf(w, "hash: %s\n", r.Hash)
	fmt.Fprintf(w, "shape: %s\n", r.Shape)
	for _, c := range r.Captured {
		fmt.Fprintf(w, "captured %s %s = %s\n", c.Name, c.Type, c.Value)
	}
	return nil
}

// NewShapeCommand creates the shape command.
func NewShapeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shape <query-file>",
		Short: "Print the shape hash of a query document",
		Long: `Print the canonical shape of a query document and its hash.

Queries that differ only in captured values have the same shape and share
one compiled plan. No model is needed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShape(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runShape(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	doc, err := loadQuery(opts.fs(), path, cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	shape, err := query.Shape(doc.Query)
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	canonical, err := ir.MarshalCanonical(shape)
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	hash, err := ir.ShapeHash(shape)
	if err != nil {
		return f.Fail(ExitFailure, err)
	}

	result := &ShapeResult{File: path, Hash: hash, Shape: canonical}
	for _, c := range query.Captures(doc.Query) {
		value, err := ir.MarshalCanonical(c.Value)
		if err != nil {
			return f.Fail(ExitFailure, fmt.Errorf("captured %s: %w", c.Name, err))
		}
		result.Captured = append(result.Captured, CapturedOutput{
			Name:  c.Name,
			Type:  c.Type.String(),
			Value: value,
		})
	}
	return f.Success(result)
}
