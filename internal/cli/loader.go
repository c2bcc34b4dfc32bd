package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/roach88/querylift/internal/model"
	"github.com/roach88/querylift/internal/plancache"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/translate"
	"github.com/roach88/querylift/internal/typemap"
)

// stdinPath reads a query document from standard input.
const stdinPath = "-"

// loadedModel is a model with the registry it was checked against.
type loadedModel struct {
	Registry *typemap.Registry
	Model    *typemap.Model
}

// loadModel loads the CUE model named by the config.
func loadModel(fsys afero.Fs, cfg *Config, logger *slog.Logger) (*loadedModel, error) {
	if cfg.Model == "" {
		return nil, NewExitError(ExitCommandError, "no model: set --model, QUERYLIFT_MODEL or model: in the config file")
	}
	reg := typemap.NewRegistry()
	m, err := model.Load(fsys, cfg.Model, model.WithRegistry(reg), model.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded", "path", cfg.Model, "entities", len(m.Entities()))
	return &loadedModel{Registry: reg, Model: m}, nil
}

// loadQuery decodes a query document from path, or from stdin when path
// is "-".
func loadQuery(fsys afero.Fs, path string, stdin io.Reader) (*query.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == stdinPath {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = afero.ReadFile(fsys, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read query %s: %w", path, err)
	}
	doc, err := query.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// newTranslator builds a translator for dialect from the config. A
// positive cache size shares one plan cache across every query of the
// command.
func newTranslator(lm *loadedModel, cfg *Config, dialect sqlprint.Dialect, logger *slog.Logger) *translate.Translator {
	opts := []translate.Option{
		translate.WithDialect(dialect),
		translate.WithLogger(logger),
		translate.WithMaxInlineList(cfg.MaxInlineList),
		translate.WithAnonymousPrefix(cfg.ParameterPrefix),
	}
	if cfg.CacheSize > 0 {
		opts = append(opts, translate.WithCache(plancache.New[*translate.Plan](cfg.CacheSize)))
	}
	return translate.New(lm.Registry, lm.Model, opts...)
}
