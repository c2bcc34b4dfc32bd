package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

// DecodeError reports a malformed query document.
type DecodeError struct {
	Line    int    // 1-based source line, 0 if unknown
	Path    string // document path, e.g. "ops[0].where.body"
	Message string
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Document is a named query loaded from YAML or JSON.
type Document struct {
	Name  string
	Query *Query
}

// docHeader is the non-expression part of a document.
type docHeader struct {
	Name     string                 `mapstructure:"name"`
	Source   string                 `mapstructure:"source"`
	Captured map[string]capturedDef `mapstructure:"captured"`
}

type capturedDef struct {
	Type  string `mapstructure:"type"`
	Value any    `mapstructure:"value"`
}

// Decode parses a query document. JSON documents are accepted as YAML.
//
// Document format:
//
//	name: nullable-contains
//	source: Entity
//	captured:
//	  nullableIntArray: {type: "int?[]", value: [1, null]}
//	ops:
//	  - where:
//	      params: [e]
//	      body:
//	        call: Contains
//	        receiver: {captured: nullableIntArray}
//	        args: [{path: e.NullableInt}]
//
// Expression forms: {path: "e.A.B"}, {param: e}, {member: Name, target: X},
// {call: M, receiver: X, args: [...]}, {static: F, args: [...]},
// {index: I, target: X}, {op: "==", left: L, right: R}, {op: "!", operand: X},
// {if: T, then: A, else: B}, {const: V, type: T}, {captured: name},
// {array: [...], type: T}, {new: {Field: X, ...}}, {params: [...], body: X},
// {query: {source: S, ops: [...]}}, {client: M, args: [...]},
// {convert: X, type: T}. A bare scalar is a constant.
func Decode(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &DecodeError{Message: "empty document"}
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &DecodeError{Line: doc.Line, Message: "document must be a mapping"}
	}

	var raw map[string]any
	if err := doc.Decode(&raw); err != nil {
		return nil, &DecodeError{Line: doc.Line, Message: err.Error()}
	}
	delete(raw, "ops")

	var hdr docHeader
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &hdr,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, &DecodeError{Line: doc.Line, Message: err.Error()}
	}

	d := &decoder{captured: make(map[string]*Captured, len(hdr.Captured))}
	for name, def := range hdr.Captured {
		c, err := decodeCaptured(name, def)
		if err != nil {
			return nil, err
		}
		d.captured[name] = c
	}

	q, err := d.query(doc, "")
	if err != nil {
		return nil, err
	}
	return &Document{Name: hdr.Name, Query: q}, nil
}

func decodeCaptured(name string, def capturedDef) (*Captured, error) {
	path := "captured." + name
	if def.Type == "" {
		return nil, &DecodeError{Path: path, Message: "captured value needs a type"}
	}
	t, err := typemap.ParseType(def.Type)
	if err != nil {
		return nil, &DecodeError{Path: path, Message: err.Error()}
	}
	v, err := ir.FromGo(def.Value)
	if err != nil {
		return nil, &DecodeError{Path: path, Message: err.Error()}
	}
	return &Captured{Name: name, Type: t, Value: v}, nil
}

type decoder struct {
	captured map[string]*Captured
}

func errAt(n *yaml.Node, path, format string, args ...any) error {
	return &DecodeError{Line: n.Line, Path: path, Message: fmt.Sprintf(format, args...)}
}

// fields returns the key/value pairs of a mapping node in document order.
func fields(n *yaml.Node, path string) ([]string, map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nil, errAt(n, path, "expected a mapping")
	}
	keys := make([]string, 0, len(n.Content)/2)
	vals := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		if _, dup := vals[k]; dup {
			return nil, nil, errAt(n.Content[i], path, "duplicate key %q", k)
		}
		keys = append(keys, k)
		vals[k] = n.Content[i+1]
	}
	return keys, vals, nil
}

func (d *decoder) query(n *yaml.Node, path string) (*Query, error) {
	_, f, err := fields(n, path)
	if err != nil {
		return nil, err
	}
	q := &Query{}
	if src, ok := f["source"]; ok {
		q.Source = src.Value
	}
	opsNode, ok := f["ops"]
	if !ok {
		return q, nil
	}
	if opsNode.Kind != yaml.SequenceNode {
		return nil, errAt(opsNode, path+"ops", "ops must be a list")
	}
	for i, on := range opsNode.Content {
		op, err := d.operation(on, fmt.Sprintf("%sops[%d]", path, i))
		if err != nil {
			return nil, err
		}
		q.Ops = append(q.Ops, op)
	}
	return q, nil
}

func (d *decoder) operation(n *yaml.Node, path string) (Operation, error) {
	keys, f, err := fields(n, path)
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, errAt(n, path, "operation must have exactly one key, got %d", len(keys))
	}
	name := keys[0]
	body := f[name]
	path += "." + name

	lambda := func() (*Lambda, error) { return d.lambda(body, path) }

	switch name {
	case "where":
		l, err := lambda()
		return &Where{Predicate: l}, err
	case "select":
		l, err := lambda()
		return &Select{Selector: l}, err
	case "orderBy", "orderByDescending", "thenBy", "thenByDescending":
		l, err := lambda()
		return &OrderBy{
			Key:        l,
			Descending: strings.HasSuffix(name, "Descending"),
			Then:       strings.HasPrefix(name, "thenBy"),
		}, err
	case "groupBy":
		l, err := lambda()
		return &GroupBy{Key: l}, err
	case "join":
		_, jf, err := fields(body, path)
		if err != nil {
			return nil, err
		}
		j := &Join{}
		if in, ok := jf["inner"]; ok {
			if j.Inner, err = d.query(in, path+".inner."); err != nil {
				return nil, err
			}
		}
		for key, dst := range map[string]**Lambda{"outerKey": &j.OuterKey, "innerKey": &j.InnerKey, "result": &j.Result} {
			if ln, ok := jf[key]; ok {
				if *dst, err = d.lambda(ln, path+"."+key); err != nil {
					return nil, err
				}
			}
		}
		return j, nil
	case "selectMany":
		_, sf, err := fields(body, path)
		if err != nil {
			return nil, err
		}
		sm := &SelectMany{}
		if _, isLambda := sf["body"]; isLambda {
			sm.Collection, err = d.lambda(body, path)
			return sm, err
		}
		if cn, ok := sf["collection"]; ok {
			if sm.Collection, err = d.lambda(cn, path+".collection"); err != nil {
				return nil, err
			}
		}
		if rn, ok := sf["result"]; ok {
			if sm.Result, err = d.lambda(rn, path+".result"); err != nil {
				return nil, err
			}
		}
		return sm, nil
	case "skip":
		e, err := d.expr(body, path)
		return &Skip{Count: e}, err
	case "take":
		e, err := d.expr(body, path)
		return &Take{Count: e}, err
	case "distinct":
		return &Distinct{}, nil
	}

	for _, fn := range []AggregateFunc{AggCount, AggLongCount, AggSum, AggMin, AggMax, AggAverage, AggAny, AggAll, AggFirst, AggFirstOrDefault, AggSingle} {
		if OpName(&Aggregate{Func: fn}) != name {
			continue
		}
		agg := &Aggregate{Func: fn}
		if body.Kind == yaml.MappingNode && len(body.Content) > 0 {
			if agg.Lambda, err = d.lambda(body, path); err != nil {
				return nil, err
			}
		}
		return agg, nil
	}
	return nil, errAt(n, path, "unknown operation %q", name)
}

func (d *decoder) lambda(n *yaml.Node, path string) (*Lambda, error) {
	_, f, err := fields(n, path)
	if err != nil {
		return nil, err
	}
	l := &Lambda{}
	if pn, ok := f["params"]; ok {
		if err := pn.Decode(&l.Params); err != nil {
			return nil, errAt(pn, path+".params", "params must be a list of names")
		}
	}
	bn, ok := f["body"]
	if !ok {
		return nil, errAt(n, path, "lambda has no body")
	}
	if l.Body, err = d.expr(bn, path+".body"); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *decoder) exprs(n *yaml.Node, path string) ([]Expr, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errAt(n, path, "expected a list")
	}
	out := make([]Expr, len(n.Content))
	for i, c := range n.Content {
		e, err := d.expr(c, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (d *decoder) typ(n *yaml.Node, path string) (typemap.Type, error) {
	t, err := typemap.ParseType(n.Value)
	if err != nil {
		return typemap.Type{}, errAt(n, path, "%v", err)
	}
	return t, nil
}

func (d *decoder) value(n *yaml.Node, path string) (ir.IRValue, error) {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return nil, errAt(n, path, "%v", err)
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, errAt(n, path, "%v", err)
	}
	return v, nil
}

func (d *decoder) expr(n *yaml.Node, path string) (Expr, error) {
	if n.Kind == yaml.ScalarNode || n.Kind == yaml.SequenceNode {
		v, err := d.value(n, path)
		if err != nil {
			return nil, err
		}
		return Const(v), nil
	}

	_, f, err := fields(n, path)
	if err != nil {
		return nil, err
	}
	sub := func(key string) (Expr, error) {
		c, ok := f[key]
		if !ok {
			return nil, errAt(n, path, "missing %q", key)
		}
		return d.expr(c, path+"."+key)
	}
	optArgs := func() ([]Expr, error) {
		a, ok := f["args"]
		if !ok {
			return nil, nil
		}
		return d.exprs(a, path+".args")
	}

	switch {
	case f["path"] != nil:
		return Path(f["path"].Value), nil

	case f["param"] != nil:
		return &Param{Name: f["param"].Value}, nil

	case f["member"] != nil:
		target, err := sub("target")
		if err != nil {
			return nil, err
		}
		return &Member{Target: target, Name: f["member"].Value}, nil

	case f["call"] != nil:
		c := &Call{Method: f["call"].Value}
		if _, ok := f["receiver"]; ok {
			if c.Receiver, err = sub("receiver"); err != nil {
				return nil, err
			}
		}
		c.Args, err = optArgs()
		return c, err

	case f["static"] != nil:
		args, err := optArgs()
		return &Call{Method: f["static"].Value, Args: args}, err

	case f["index"] != nil:
		idx, err := sub("index")
		if err != nil {
			return nil, err
		}
		target, err := sub("target")
		if err != nil {
			return nil, err
		}
		return &Index{Target: target, Index: idx}, nil

	case f["op"] != nil:
		op := f["op"].Value
		if _, unary := f["operand"]; unary {
			operand, err := sub("operand")
			if err != nil {
				return nil, err
			}
			return &Unary{Op: UnaryOp(op), Operand: operand}, nil
		}
		left, err := sub("left")
		if err != nil {
			return nil, err
		}
		right, err := sub("right")
		if err != nil {
			return nil, err
		}
		return &Binary{Op: BinaryOp(op), Left: left, Right: right}, nil

	case f["if"] != nil:
		test, err := sub("if")
		if err != nil {
			return nil, err
		}
		then, err := sub("then")
		if err != nil {
			return nil, err
		}
		els, err := sub("else")
		if err != nil {
			return nil, err
		}
		return &Conditional{Test: test, Then: then, Else: els}, nil

	case f["const"] != nil:
		v, err := d.value(f["const"], path+".const")
		if err != nil {
			return nil, err
		}
		c := Const(v)
		if tn, ok := f["type"]; ok {
			if c.Type, err = d.typ(tn, path+".type"); err != nil {
				return nil, err
			}
		}
		return c, nil

	case f["captured"] != nil:
		name := f["captured"].Value
		c, ok := d.captured[name]
		if !ok {
			return nil, errAt(n, path, "captured %q is not declared", name)
		}
		return c, nil

	case f["array"] != nil:
		elems, err := d.exprs(f["array"], path+".array")
		if err != nil {
			return nil, err
		}
		arr := &NewArray{Elems: elems}
		tn, ok := f["type"]
		if !ok {
			return nil, errAt(n, path, "array needs an element type")
		}
		arr.Elem, err = d.typ(tn, path+".type")
		return arr, err

	case f["new"] != nil:
		keys, nf, err := fields(f["new"], path+".new")
		if err != nil {
			return nil, err
		}
		obj := &NewObject{}
		for _, k := range keys {
			v, err := d.expr(nf[k], path+".new."+k)
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, Field{Name: k, Value: v})
		}
		return obj, nil

	case f["body"] != nil:
		return d.lambda(n, path)

	case f["query"] != nil:
		q, err := d.query(f["query"], path+".query.")
		if err != nil {
			return nil, err
		}
		return &Subquery{Query: q}, nil

	case f["client"] != nil:
		args, err := optArgs()
		return &ClientCall{Method: f["client"].Value, Args: args}, err

	case f["convert"] != nil:
		operand, err := sub("convert")
		if err != nil {
			return nil, err
		}
		tn, ok := f["type"]
		if !ok {
			return nil, errAt(n, path, "convert needs a type")
		}
		t, err := d.typ(tn, path+".type")
		return &Convert{Operand: operand, Type: t}, err
	}

	return nil, errAt(n, path, "unrecognized expression")
}
