package harness

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlprint"
)

// Scenario is one translation test case.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Model is the CUE model file or directory, relative to the scenario.
	Model string `yaml:"model"`

	// Dialect is a sqlprint dialect name. Defaults to postgres.
	Dialect string `yaml:"dialect,omitempty"`

	Options *OptionsSpec `yaml:"options,omitempty"`

	// Query is a query document (see query.Decode).
	Query yaml.Node `yaml:"query"`

	// Seed maps entity names to rows inserted before execution.
	Seed map[string][]map[string]any `yaml:"seed,omitempty"`

	Expect Expect `yaml:"expect"`

	query *query.Query
}

// OptionsSpec overrides translator options.
type OptionsSpec struct {
	MaxInlineList   int    `yaml:"max_inline_list,omitempty"`
	ParameterPrefix string `yaml:"parameter_prefix,omitempty"`
}

// Expect lists the checks applied to a translation.
type Expect struct {
	SQL         string           `yaml:"sql,omitempty"`
	Contains    []string         `yaml:"contains,omitempty"`
	NotContains []string         `yaml:"not_contains,omitempty"`
	Parameters  []ParameterSpec  `yaml:"parameters,omitempty"`
	Shape       string           `yaml:"shape,omitempty"`
	Error       string           `yaml:"error,omitempty"`
	Rows        []map[string]any `yaml:"rows,omitempty"`
}

// ParameterSpec describes one expected parameter. A nil Value is not
// checked.
type ParameterSpec struct {
	Name      string `yaml:"name"`
	StoreType string `yaml:"store_type,omitempty"`
	Value     any    `yaml:"value,omitempty"`
}

// ParsedQuery returns the decoded query.
func (s *Scenario) ParsedQuery() *query.Query {
	return s.query
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so that typos do not silently disable checks.
func LoadScenario(fsys afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Model != "" && !filepath.IsAbs(s.Model) {
		s.Model = filepath.Join(filepath.Dir(path), s.Model)
	}
	return s, nil
}

// ParseScenario parses scenario YAML. The model path is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	raw, err := yaml.Marshal(&s.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	doc, err := query.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	s.query = doc.Query
	return &s, nil
}

// LoadScenarios loads every .yaml file in dir, sorted by file name.
func LoadScenarios(fsys afero.Fs, dir string) ([]*Scenario, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(fsys, p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, p)
		}
		seen[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if s.Query.Kind == 0 {
		return fmt.Errorf("query is required")
	}
	if s.Dialect == "" {
		s.Dialect = sqlprint.Postgres.Name
	}
	if _, err := sqlprint.Lookup(s.Dialect); err != nil {
		return err
	}
	if len(s.Seed) > 0 && s.Dialect != sqlprint.SQLite.Name {
		return fmt.Errorf("seed requires the %s dialect", sqlprint.SQLite.Name)
	}
	if len(s.Expect.Rows) > 0 && len(s.Seed) == 0 {
		return fmt.Errorf("expect.rows requires seed")
	}
	if s.Expect.Error != "" && (s.Expect.SQL != "" || len(s.Expect.Contains) > 0 || len(s.Expect.Rows) > 0) {
		return fmt.Errorf("expect.error cannot be combined with SQL or row expectations")
	}
	return nil
}
