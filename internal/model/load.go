// Package model builds entity models from CUE definitions.
//
// A model directory holds one or more .cue files declaring three kinds of
// types:
//
//	entity: Order: {
//		table: "orders"
//		key: ["Id"]
//		properties: {
//			Id:       "int"
//			Tags:     "text[]"
//			Customer: {struct: "Customer", nullable: true}
//			Lines:    {list: "Line", store: "json"}
//			Origin:   {composite: "Point"}
//			Created:  {type: "timestamp", column: "created_at"}
//		}
//	}
//	struct: Customer: properties: {Name: "text"}
//	composite: Point: {store: "point_t", properties: {X: "int", Y: "int"}}
//
// Entities map to tables. Structs are owned JSON objects stored inside a
// json or jsonb column. Composites are user-defined record types.
package model

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/afero"

	"github.com/roach88/querylift/internal/typemap"
)

// Option configures loading.
type Option func(*options)

type options struct {
	registry *typemap.Registry
	logger   *slog.Logger
}

// WithRegistry checks every entity property against r, failing with
// UNMAPPED_TYPE when a property type has no store mapping.
func WithRegistry(r *typemap.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Load compiles the model at path, which is either a single .cue file or
// a directory of them.
func Load(fsys afero.Fs, path string, opts ...Option) (*typemap.Model, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model %s: %v", path, err)}
	}
	if info.IsDir() {
		return LoadDir(fsys, path, opts...)
	}
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	v := cuecontext.New().CompileBytes(src, cue.Filename(path))
	return Compile(v, opts...)
}

// LoadDir reads every .cue file under dir (recursively, in lexical order),
// unifies them and compiles the result.
func LoadDir(fsys afero.Fs, dir string, opts ...Option) (*typemap.Model, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model directory %s: %v", dir, err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(fsys, dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	var v cue.Value
	for i, path := range files {
		src, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		fv := ctx.CompileBytes(src, cue.Filename(path))
		if err := fv.Err(); err != nil {
			return nil, fromCUE(err)
		}
		if i == 0 {
			v = fv
		} else {
			v = v.Unify(fv)
		}
	}

	o := buildOptions(opts)
	o.logger.Debug("model files loaded", "dir", dir, "files", len(files))
	return compile(v, o)
}

// FindCUEFiles returns the .cue files under dir in lexical order.
func FindCUEFiles(fsys afero.Fs, dir string) ([]string, error) {
	var files []string
	err := afero.Walk(fsys, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// CompileString compiles a model from CUE source.
func CompileString(src string, opts ...Option) (*typemap.Model, error) {
	v := cuecontext.New().CompileString(src, cue.Filename("model.cue"))
	return Compile(v, opts...)
}

// Compile builds a model from an evaluated CUE value.
func Compile(v cue.Value, opts ...Option) (*typemap.Model, error) {
	return compile(v, buildOptions(opts))
}

type compiler struct {
	opts       *options
	structs    map[string]*typemap.Struct
	composites map[string]*typemap.Struct
	stores     map[string]string // composite name -> store type
}

func compile(v cue.Value, o *options) (*typemap.Model, error) {
	if err := v.Validate(); err != nil {
		return nil, fromCUE(err)
	}
	c := &compiler{
		opts:       o,
		structs:    make(map[string]*typemap.Struct),
		composites: make(map[string]*typemap.Struct),
		stores:     make(map[string]string),
	}

	// Declare named types first so properties can refer to them in any
	// order, including recursively.
	structDefs, err := section(v, "struct")
	if err != nil {
		return nil, err
	}
	for _, d := range structDefs {
		c.structs[d.name] = &typemap.Struct{Name: d.name}
	}
	compositeDefs, err := section(v, "composite")
	if err != nil {
		return nil, err
	}
	for _, d := range compositeDefs {
		if _, clash := c.structs[d.name]; clash {
			return nil, invalid(d.value, "%s is declared as both a struct and a composite", d.name)
		}
		store, err := optionalString(d.value, "store")
		if err != nil {
			return nil, err
		}
		if store == "" {
			store = strings.ToLower(d.name)
		}
		c.composites[d.name] = &typemap.Struct{Name: d.name}
		c.stores[d.name] = store
	}

	for _, d := range structDefs {
		if err := c.fillProperties(c.structs[d.name], d.value); err != nil {
			return nil, err
		}
	}
	for _, d := range compositeDefs {
		if err := c.fillProperties(c.composites[d.name], d.value); err != nil {
			return nil, err
		}
	}

	entityDefs, err := section(v, "entity")
	if err != nil {
		return nil, err
	}
	if len(entityDefs) == 0 {
		return nil, &LoadError{Code: ErrCodeInvalidModel, Message: "model declares no entities"}
	}

	m, _ := typemap.NewModel()
	for _, d := range entityDefs {
		e := &typemap.Struct{Name: d.name}
		if e.Table, err = optionalString(d.value, "table"); err != nil {
			return nil, err
		}
		if e.Table == "" {
			e.Table = d.name
		}
		if e.Schema, err = optionalString(d.value, "schema"); err != nil {
			return nil, err
		}
		if e.Key, err = optionalStrings(d.value, "key"); err != nil {
			return nil, err
		}
		if err := c.fillProperties(e, d.value); err != nil {
			return nil, err
		}
		if err := c.checkMapped(e, d.value); err != nil {
			return nil, err
		}
		if err := m.Add(e); err != nil {
			return nil, invalid(d.value, "%v", err)
		}
		o.logger.Debug("entity compiled", "entity", e.Name, "table", e.Table, "properties", len(e.Properties))
	}
	return m, nil
}

type definition struct {
	name  string
	value cue.Value
}

// section lists the named definitions under a top-level field, in
// declaration order.
func section(v cue.Value, field string) ([]definition, error) {
	sv := v.LookupPath(cue.ParsePath(field))
	if !sv.Exists() {
		return nil, nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return nil, invalid(sv, "%s must be a struct of named definitions", field)
	}
	var defs []definition
	for iter.Next() {
		defs = append(defs, definition{name: iter.Selector().Unquoted(), value: iter.Value()})
	}
	return defs, nil
}

func (c *compiler) fillProperties(s *typemap.Struct, v cue.Value) error {
	pv := v.LookupPath(cue.ParsePath("properties"))
	if !pv.Exists() {
		return invalid(v, "%s declares no properties", s.Name)
	}
	iter, err := pv.Fields()
	if err != nil {
		return invalid(pv, "properties must be a struct")
	}
	for iter.Next() {
		p, err := c.property(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return err
		}
		s.Properties = append(s.Properties, p)
	}
	if len(s.Properties) == 0 {
		return invalid(pv, "%s declares no properties", s.Name)
	}
	return nil
}

// property compiles one property. The short form is a type string; the
// long form is a struct with exactly one of type, struct, list or
// composite.
func (c *compiler) property(name string, v cue.Value) (*typemap.Property, error) {
	p := &typemap.Property{Name: name}

	if v.IncompleteKind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return nil, fromCUE(err)
		}
		if p.Type, err = parseType(v, s); err != nil {
			return nil, err
		}
		return p, nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, invalid(v, "property %s must be a type string or a struct", name)
	}

	fields := map[string]string{}
	for _, f := range []string{"type", "struct", "list", "composite", "column", "store"} {
		s, err := optionalString(v, f)
		if err != nil {
			return nil, err
		}
		fields[f] = s
	}
	nullable, err := optionalBool(v, "nullable")
	if err != nil {
		return nil, err
	}
	array, err := optionalBool(v, "array")
	if err != nil {
		return nil, err
	}
	p.Column = fields["column"]

	set := 0
	for _, f := range []string{"type", "struct", "list", "composite"} {
		if fields[f] != "" {
			set++
		}
	}
	if set != 1 {
		return nil, invalid(v, "property %s needs exactly one of type, struct, list or composite", name)
	}

	store := fields["store"]
	switch {
	case fields["type"] != "":
		if p.Type, err = parseType(v, fields["type"]); err != nil {
			return nil, err
		}
	case fields["struct"] != "":
		s, err := c.lookupStruct(v, fields["struct"])
		if err != nil {
			return nil, err
		}
		if store, err = jsonStore(v, store); err != nil {
			return nil, err
		}
		p.Type = typemap.StructOf(s, store)
	case fields["list"] != "":
		s, err := c.lookupStruct(v, fields["list"])
		if err != nil {
			return nil, err
		}
		if store, err = jsonStore(v, store); err != nil {
			return nil, err
		}
		p.Type = typemap.ListOf(typemap.StructOf(s, store), store)
	case fields["composite"] != "":
		s, ok := c.composites[fields["composite"]]
		if !ok {
			return nil, &LoadError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("unknown composite %q", fields["composite"]), Path: v.Path().String(), Pos: v.Pos()}
		}
		p.Type = typemap.CompositeOf(s, c.stores[s.Name])
	}

	if nullable {
		p.Type = p.Type.WithNullable(true)
	}
	if array {
		p.Type = typemap.ArrayOf(p.Type)
	}
	return p, nil
}

func (c *compiler) lookupStruct(v cue.Value, name string) (*typemap.Struct, error) {
	s, ok := c.structs[name]
	if !ok {
		return nil, &LoadError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("unknown struct %q", name), Path: v.Path().String(), Pos: v.Pos()}
	}
	return s, nil
}

func (c *compiler) checkMapped(e *typemap.Struct, v cue.Value) error {
	if c.opts.registry == nil {
		return nil
	}
	for _, p := range e.Properties {
		if _, err := c.opts.registry.Find(p.Type); err != nil {
			return &LoadError{
				Code:    ErrCodeUnmapped,
				Message: fmt.Sprintf("%s.%s: %v", e.Name, p.Name, err),
				Path:    v.Path().String() + ".properties." + p.Name,
				Pos:     v.Pos(),
			}
		}
	}
	return nil
}

func parseType(v cue.Value, s string) (typemap.Type, error) {
	t, err := typemap.ParseType(s)
	if err != nil {
		return typemap.Type{}, &LoadError{Code: ErrCodeUnknownType, Message: err.Error(), Path: v.Path().String(), Pos: v.Pos()}
	}
	return t, nil
}

func jsonStore(v cue.Value, store string) (string, error) {
	switch store {
	case "":
		return "jsonb", nil
	case "json", "jsonb":
		return store, nil
	}
	return "", invalid(v, "owned JSON store must be json or jsonb, got %q", store)
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", invalid(fv, "%s must be a string", field)
	}
	return s, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	var out []string
	if err := fv.Decode(&out); err != nil {
		return nil, invalid(fv, "%s must be a list of strings", field)
	}
	return out, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, invalid(fv, "%s must be a bool", field)
	}
	return b, nil
}

func invalid(v cue.Value, format string, args ...any) *LoadError {
	return &LoadError{
		Code:    ErrCodeInvalidModel,
		Message: fmt.Sprintf(format, args...),
		Path:    v.Path().String(),
		Pos:     v.Pos(),
	}
}
