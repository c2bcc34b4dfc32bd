package translate

import (
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// jsonPath splits a JSON value into the document it was extracted from and
// the steps taken so far, so navigation keeps extending a single path.
func jsonPath(v *Value) (sqlexpr.Expr, []sqlexpr.Expr) {
	if jp, ok := v.Expr.(*sqlexpr.JsonPath); ok && !jp.ReturnsText {
		return jp.Operand, append([]sqlexpr.Expr(nil), jp.Path...)
	}
	return v.Expr, nil
}

// jsonStep extends the path of doc by one step and types the result as t.
// Scalar results are extracted as text and cast; JSON text extraction is
// always textual, so the cast is never left implicit.
func (c *Context) jsonStep(doc *Value, step sqlexpr.Expr, t typemap.Type) (*Value, error) {
	store := doc.Type.JSONStore()
	operand, path := jsonPath(doc)
	path = append(path, step)
	t.Nullable = true

	switch t.Kind {
	case typemap.KindStruct, typemap.KindList:
		t.Store = store
		if t.Struct != nil {
			t.Struct = ownedStruct(t.Struct, store)
		}
		fallthrough
	case typemap.KindJSON, typemap.KindJSONB:
		m := c.mustScalar(typemap.Kind(store))
		return scalar(sqlexpr.NewJsonPath(operand, path, false, m), t), nil
	}

	m, err := c.Mapping(t)
	if err != nil {
		return nil, err
	}
	text := c.mustScalar(typemap.KindText)
	var e sqlexpr.Expr = sqlexpr.NewJsonPath(operand, path, true, text)
	if m.StoreType != text.StoreType {
		e = sqlexpr.NewCast(e, m)
	}
	return scalar(e, t), nil
}

// jsonMember navigates to a declared property of an owned JSON object.
func (c *Context) jsonMember(target *Value, name string) (*Value, bool, error) {
	st := target.Type.Struct
	if st == nil {
		return nil, false, nil
	}
	p, ok := st.Property(name)
	if !ok {
		return nil, false, nil
	}
	v, err := c.jsonStep(target, c.textConst(p.ColumnName()), p.Type)
	return v, true, err
}

// jsonText extracts a JSON value as text: the last step of a path becomes
// ->>, and a whole document is unwrapped with #>> '{}'.
func (c *Context) jsonText(v *Value) sqlexpr.Expr {
	text := c.mustScalar(typemap.KindText)
	if jp, ok := v.Expr.(*sqlexpr.JsonPath); ok {
		if jp.ReturnsText {
			return jp
		}
		return sqlexpr.NewJsonPath(jp.Operand, jp.Path, true, text)
	}
	return sqlexpr.NewBinary("#>>", v.Expr, c.textConst("{}"), text)
}

func isJSONDocument(v *Value) bool {
	if !v.IsScalar() {
		return false
	}
	k := v.Expr.Mapping().Kind
	return k == typemap.KindJSON || k == typemap.KindJSONB
}

func registerJSON(r *Recognizer) {
	dom := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(InCategory(typemap.CategoryJSON, method, arity), fn)
	}

	dom("GetProperty", 1, jsonGetProperty)
	dom("GetArrayLength", 0, jsonArrayLength)
	dom("ValueKind", 0, jsonTypeof)
	dom("EnumerateArray", 0, jsonEnumerate)
	dom("GetRawText", 0, jsonRawText)

	getters := map[string]typemap.Type{
		"GetString":   typemap.Text(),
		"GetInt16":    typemap.SmallInt(),
		"GetInt32":    typemap.Int(),
		"GetInt64":    typemap.BigInt(),
		"GetDouble":   typemap.Double(),
		"GetSingle":   typemap.Real(),
		"GetDecimal":  typemap.Decimal(),
		"GetBoolean":  typemap.Bool(),
		"GetGuid":     typemap.UUID(),
		"GetDateTime": typemap.Timestamp(),
	}
	for method, t := range getters {
		dom(method, 0, jsonGetter(t))
	}

	// Indexers resolve per kind: lists are also collections, and an
	// indexer registered for both categories would be ambiguous.
	for _, k := range []typemap.Kind{typemap.KindJSON, typemap.KindJSONB, typemap.KindList} {
		r.MustRegister(Exact(k, "Index", 1), jsonIndex)
		r.MustRegister(Exact(k, "ElementAt", 1), jsonIndex)
	}

	r.MustRegister(Static("JsonContains", 2), jsonOperator("@>"))
	r.MustRegister(Static("JsonContained", 2), jsonOperator("<@"))
	r.MustRegister(Static("JsonExists", 2), jsonKeyOperator("?", false))
	r.MustRegister(Static("JsonExistAny", 2), jsonKeyOperator("?|", true))
	r.MustRegister(Static("JsonExistAll", 2), jsonKeyOperator("?&", true))
	r.MustRegister(Static("JsonTypeof", 1), func(c *Context, inv *Invocation) (*Value, error) {
		return jsonTypeof(c, &Invocation{Method: inv.Method, Receiver: inv.Arg(0)})
	})
}

func jsonGetProperty(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if !isJSONDocument(doc) {
		return nil, nil
	}
	name, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if !name.Expr.Mapping().IsText() {
		return nil, c.Mismatch("GetProperty", name.Type.String(), "property name must be text, got %s", name.Expr.Mapping())
	}
	return c.jsonStep(doc, name.Expr, typemap.Type{Kind: typemap.Kind(doc.Type.JSONStore())})
}

// jsonIndex translates doc[i], doc["key"] and list[i].
func jsonIndex(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if !isJSONDocument(doc) {
		return nil, nil
	}
	idx, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	im := idx.Expr.Mapping()
	switch {
	case isIntegral(im.Kind):
	case im.IsText() && doc.Type.Kind != typemap.KindList:
	default:
		return nil, c.Mismatch(inv.Method, idx.Type.String(), "cannot index %s with %s", doc.Type, im)
	}

	t := typemap.Type{Kind: typemap.Kind(doc.Type.JSONStore())}
	if doc.Type.Kind == typemap.KindList {
		t = doc.Type.ElemType()
	}
	return c.jsonStep(doc, idx.Expr, t)
}

func jsonArrayLength(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if !isJSONDocument(doc) {
		return nil, nil
	}
	fn := doc.Type.JSONStore() + "_array_length"
	return scalar(sqlexpr.NewFunction(fn, c.mustScalar(typemap.KindInt), false, doc.Expr), typemap.Int().WithNullable(true)), nil
}

func jsonTypeof(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if doc == nil || !isJSONDocument(doc) {
		return nil, nil
	}
	fn := doc.Type.JSONStore() + "_typeof"
	if doc.Expr.Mapping().Kind == typemap.KindJSON {
		fn = "json_typeof"
	}
	return scalar(sqlexpr.NewFunction(fn, c.mustScalar(typemap.KindText), false, doc.Expr), typemap.Text().WithNullable(true)), nil
}

func jsonEnumerate(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if !isJSONDocument(doc) {
		return nil, nil
	}
	seq, err := c.sequence(doc)
	if err != nil {
		return nil, err
	}
	return c.seqValue(seq), nil
}

func jsonRawText(c *Context, inv *Invocation) (*Value, error) {
	doc := inv.Receiver
	if !isJSONDocument(doc) {
		return nil, nil
	}
	return scalar(sqlexpr.NewCast(doc.Expr, c.mustScalar(typemap.KindText)), typemap.Text().WithNullable(doc.Type.Nullable)), nil
}

// jsonGetter extracts a JSON scalar as t. GetString on a whole document
// unwraps it; every other target type is cast from the extracted text.
func jsonGetter(t typemap.Type) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		doc := inv.Receiver
		if !isJSONDocument(doc) {
			return nil, nil
		}
		m, err := c.Mapping(t)
		if err != nil {
			return nil, err
		}
		e := c.jsonText(doc)
		if !m.IsText() {
			e = sqlexpr.NewCast(e, m)
		}
		return scalar(e, t.WithNullable(true)), nil
	}
}

// jsonbOnly rejects json operands of operators that exist only for jsonb.
func (c *Context) jsonbOnly(op string, v *Value) error {
	if !isJSONDocument(v) {
		return c.Mismatch(op, v.Type.String(), "%s needs a JSON document, got %s", op, v.Type)
	}
	if v.Expr.Mapping().Kind != typemap.KindJSONB {
		return c.Mismatch(op, v.Type.String(), "%s is only defined for jsonb, got %s", op, v.Expr.Mapping())
	}
	return nil
}

// asJSONB casts a text operand to jsonb so JsonContains(e.Doc, "{...}")
// compares documents, not strings.
func (c *Context) asJSONB(v *Value) *Value {
	if v.IsScalar() && v.Expr.Mapping().IsText() {
		m := c.mustScalar(typemap.KindJSONB)
		return scalar(sqlexpr.NewCast(v.Expr, m), typemap.JSONB().WithNullable(v.Type.Nullable))
	}
	return v
}

// jsonOperator translates the containment helpers. They are distinct from
// == which compares whole documents for equality.
func jsonOperator(op string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		l, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		r, err := c.toScalar(inv.Arg(1))
		if err != nil {
			return nil, err
		}
		l, r = c.asJSONB(l), c.asJSONB(r)
		if err := c.jsonbOnly(inv.Method, l); err != nil {
			return nil, err
		}
		if err := c.jsonbOnly(inv.Method, r); err != nil {
			return nil, err
		}
		return scalar(sqlexpr.NewBinary(op, l.Expr, r.Expr, c.Bool()), typemap.Bool()), nil
	}
}

// jsonKeyOperator translates the key existence helpers: ? takes one key,
// ?| and ?& take a text array.
func jsonKeyOperator(op string, array bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		doc, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		if err := c.jsonbOnly(inv.Method, doc); err != nil {
			return nil, err
		}
		key, err := c.toScalar(inv.Arg(1))
		if err != nil {
			return nil, err
		}
		km := key.Expr.Mapping()
		ok := km.IsText()
		if array {
			ok = km.IsArray() && km.Element.IsText()
		}
		if !ok {
			return nil, c.Mismatch(inv.Method, key.Type.String(), "%s cannot take %s keys", op, km)
		}
		return scalar(sqlexpr.NewBinary(op, doc.Expr, key.Expr, c.Bool()), typemap.Bool()), nil
	}
}
