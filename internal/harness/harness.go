package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/roach88/querylift/internal/execute"
	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/model"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/translate"
	"github.com/roach88/querylift/internal/typemap"
)

// Harness runs scenarios against models read from a filesystem.
type Harness struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New creates a harness reading model files from fsys.
func New(fsys afero.Fs, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{fs: fsys, logger: logger}
}

// Run translates the scenario query, executes it when the scenario is
// seeded, and checks every expectation.
//
// The returned error covers problems with the scenario itself (missing
// model, bad seed data). Unmet expectations are reported in the Result.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	reg := typemap.NewRegistry()
	m, err := model.Load(h.fs, s.Model, model.WithRegistry(reg), model.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	tr, err := h.translator(s, reg, m)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := NewResult()
	cmd, err := tr.Translate(s.ParsedQuery())
	if err != nil {
		result.ErrorCode = translate.CodeOf(err)
		result.Error = err.Error()
		checkError(s.Expect, result)
		return result, nil
	}
	result.SQL = cmd.SQL
	result.Parameters = cmd.Parameters
	result.Shape = cmd.Plan.Shape

	if len(s.Seed) > 0 {
		rows, err := h.execute(ctx, s, reg, m, cmd)
		if err != nil {
			result.AddFailure(fmt.Sprintf("execution failed: %v", err))
		} else {
			result.Rows = rows
		}
	}

	checkExpect(s.Expect, result)
	h.logger.Debug("scenario finished", "scenario", s.Name, "pass", result.Pass, "failures", len(result.Failures))
	return result, nil
}

func (h *Harness) translator(s *Scenario, reg *typemap.Registry, m *typemap.Model) (*translate.Translator, error) {
	d, err := sqlprint.Lookup(s.Dialect)
	if err != nil {
		return nil, err
	}
	opts := []translate.Option{translate.WithDialect(d), translate.WithLogger(h.logger)}
	if o := s.Options; o != nil {
		if o.MaxInlineList > 0 {
			opts = append(opts, translate.WithMaxInlineList(o.MaxInlineList))
		}
		if o.ParameterPrefix != "" {
			opts = append(opts, translate.WithAnonymousPrefix(o.ParameterPrefix))
		}
	}
	return translate.New(reg, m, opts...), nil
}

// execute runs cmd against a fresh in-memory SQLite database holding the
// seed rows.
func (h *Harness) execute(ctx context.Context, s *Scenario, reg *typemap.Registry, m *typemap.Model, cmd *translate.Command) ([]execute.Row, error) {
	exec, err := execute.Open(execute.DriverSQLite, ":memory:", execute.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	for name := range s.Seed {
		if _, ok := m.Entity(name); !ok {
			return nil, fmt.Errorf("seed: unknown entity %q", name)
		}
	}
	for _, ent := range m.Entities() {
		if err := exec.CreateTable(ctx, reg, ent); err != nil {
			return nil, err
		}
		for i, row := range s.Seed[ent.Name] {
			values := make(map[string]ir.IRValue, len(row))
			for k, v := range row {
				iv, err := ir.FromGo(v)
				if err != nil {
					return nil, fmt.Errorf("seed %s[%d].%s: %w", ent.Name, i, k, err)
				}
				values[k] = iv
			}
			if err := exec.Insert(ctx, reg, ent, values); err != nil {
				return nil, fmt.Errorf("seed %s[%d]: %w", ent.Name, i, err)
			}
		}
	}

	res, err := exec.Query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
