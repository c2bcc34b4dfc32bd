package typemap

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/querylift/internal/ir"
)

// LiteralStyle controls how a dialect decorates a rendered literal.
type LiteralStyle int

const (
	// LiteralBare literals need no decoration (numbers, booleans, text).
	LiteralBare LiteralStyle = iota
	// LiteralTagged literals are prefixed with their type name: INET '10.0.0.1'.
	LiteralTagged
	// LiteralCast literals are cast to their type: ARRAY[1,2]::integer[].
	LiteralCast
)

// LiteralFormatter renders a value as undecorated SQL literal text.
type LiteralFormatter func(v ir.IRValue) (string, error)

// ParameterFormatter converts a value into a database/sql driver value.
type ParameterFormatter func(v ir.IRValue) (any, error)

// ElementComparer reports whether two array elements are equal.
type ElementComparer func(a, b ir.IRValue) bool

// Mapping resolves a host kind to its SQL representation.
type Mapping struct {
	Kind      Kind
	StoreType string

	// Element is the element mapping of arrays and the subtype of ranges.
	Element *Mapping

	// Comparer compares array elements; set on array mappings only.
	Comparer ElementComparer

	Literal LiteralFormatter
	Param   ParameterFormatter
	Style   LiteralStyle

	// PerValueSQL marks values that cannot travel inside an array parameter
	// and must be rendered individually (composite records).
	PerValueSQL bool

	// Fields lists composite record fields in declaration order.
	Fields []*Property
}

// String returns the store type name.
func (m *Mapping) String() string {
	if m == nil {
		return "<unmapped>"
	}
	return m.StoreType
}

// IsArray reports whether m maps a native array.
func (m *Mapping) IsArray() bool { return m != nil && m.Kind == KindArray }

// IsText reports whether m maps a textual store type.
func (m *Mapping) IsText() bool { return m != nil && m.Kind == KindText }

// FormatLiteral renders v, handling null uniformly.
func (m *Mapping) FormatLiteral(v ir.IRValue) (string, error) {
	if ir.IsNull(v) {
		return "NULL", nil
	}
	if m.Literal == nil {
		return "", fmt.Errorf("type %s has no literal representation", m.StoreType)
	}
	return m.Literal(v)
}

// FormatParam converts v to a driver value, handling null uniformly.
func (m *Mapping) FormatParam(v ir.IRValue) (any, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	if m.Param == nil {
		return nil, fmt.Errorf("type %s cannot be sent as a parameter", m.StoreType)
	}
	return m.Param(v)
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func intLiteral(v ir.IRValue) (string, error) {
	switch n := v.(type) {
	case ir.IRInt:
		return strconv.FormatInt(int64(n), 10), nil
	case ir.IRFloat:
		if float64(n) != float64(int64(n)) {
			return "", fmt.Errorf("%v is not an integer", n)
		}
		return strconv.FormatInt(int64(n), 10), nil
	}
	return "", fmt.Errorf("expected integer, got %T", v)
}

func intParam(v ir.IRValue) (any, error) {
	switch n := v.(type) {
	case ir.IRInt:
		return int64(n), nil
	case ir.IRFloat:
		return int64(n), nil
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func floatLiteral(v ir.IRValue) (string, error) {
	switch n := v.(type) {
	case ir.IRInt:
		return strconv.FormatInt(int64(n), 10), nil
	case ir.IRFloat:
		s := strconv.FormatFloat(float64(n), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s, nil
	case ir.IRString:
		// Decimals may arrive as strings to keep precision.
		if _, err := strconv.ParseFloat(string(n), 64); err != nil {
			return "", fmt.Errorf("invalid numeric %q", n)
		}
		return string(n), nil
	}
	return "", fmt.Errorf("expected number, got %T", v)
}

func floatParam(v ir.IRValue) (any, error) {
	switch n := v.(type) {
	case ir.IRInt:
		return float64(n), nil
	case ir.IRFloat:
		return float64(n), nil
	case ir.IRString:
		return string(n), nil
	}
	return nil, fmt.Errorf("expected number, got %T", v)
}

func textLiteral(v ir.IRValue) (string, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return QuoteString(string(s)), nil
}

func textParam(v ir.IRValue) (any, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return string(s), nil
}

func boolLiteral(v ir.IRValue) (string, error) {
	b, ok := v.(ir.IRBool)
	if !ok {
		return "", fmt.Errorf("expected bool, got %T", v)
	}
	if b {
		return "TRUE", nil
	}
	return "FALSE", nil
}

func boolParam(v ir.IRValue) (any, error) {
	b, ok := v.(ir.IRBool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return bool(b), nil
}

func uuidLiteral(v ir.IRValue) (string, error) {
	id, err := parseUUID(v)
	if err != nil {
		return "", err
	}
	return QuoteString(id.String()), nil
}

func uuidParam(v ir.IRValue) (any, error) {
	return parseUUID(v)
}

func parseUUID(v ir.IRValue) (uuid.UUID, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return uuid.Nil, fmt.Errorf("expected uuid string, got %T", v)
	}
	id, err := uuid.Parse(string(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return id, nil
}

func timestampLiteral(v ir.IRValue) (string, error) {
	t, err := parseTimestamp(v)
	if err != nil {
		return "", err
	}
	return QuoteString(t.UTC().Format("2006-01-02T15:04:05.999999Z")), nil
}

func timestampParam(v ir.IRValue) (any, error) {
	return parseTimestamp(v)
}

func parseTimestamp(v ir.IRValue) (time.Time, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return time.Time{}, fmt.Errorf("expected RFC 3339 string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, string(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func dateLiteral(v ir.IRValue) (string, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("expected date string, got %T", v)
	}
	if _, err := time.Parse(time.DateOnly, string(s)); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return QuoteString(string(s)), nil
}

func bytesLiteral(v ir.IRValue) (string, error) {
	b, err := decodeHex(v)
	if err != nil {
		return "", err
	}
	return QuoteString(`\x` + strings.ToUpper(hex.EncodeToString(b))), nil
}

func bytesParam(v ir.IRValue) (any, error) {
	return decodeHex(v)
}

func decodeHex(v ir.IRValue) ([]byte, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("expected hex string, got %T", v)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(string(s), `\x`))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// jsonText renders a JSON document value. Strings are taken to be raw JSON.
func jsonText(v ir.IRValue) (string, error) {
	if s, ok := v.(ir.IRString); ok {
		return string(s), nil
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func jsonLiteral(v ir.IRValue) (string, error) {
	s, err := jsonText(v)
	if err != nil {
		return "", err
	}
	return QuoteString(s), nil
}

func jsonParam(v ir.IRValue) (any, error) {
	return jsonText(v)
}

func quotedLiteral(v ir.IRValue) (string, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return QuoteString(string(s)), nil
}

// networkText renders an address, a prefix, or a composite {address, subnet}
// object as one textual value. Composite values are never split.
func networkText(kind Kind) func(v ir.IRValue) (string, error) {
	return func(v ir.IRValue) (string, error) {
		switch val := v.(type) {
		case ir.IRString:
			s := string(val)
			if strings.Contains(s, "/") {
				p, err := netip.ParsePrefix(s)
				if err != nil {
					return "", fmt.Errorf("invalid network %q: %w", s, err)
				}
				if kind == KindCidr && p.Masked() != p {
					return "", fmt.Errorf("cidr %q has bits set to the right of the mask", s)
				}
				return p.String(), nil
			}
			a, err := netip.ParseAddr(s)
			if err != nil {
				return "", fmt.Errorf("invalid address %q: %w", s, err)
			}
			return a.String(), nil
		case ir.IRObject:
			addr, ok := val["address"].(ir.IRString)
			if !ok {
				return "", fmt.Errorf("composite network value needs a string address")
			}
			subnet, ok := val["subnet"].(ir.IRInt)
			if !ok {
				return "", fmt.Errorf("composite network value needs an integer subnet")
			}
			a, err := netip.ParseAddr(string(addr))
			if err != nil {
				return "", fmt.Errorf("invalid address %q: %w", addr, err)
			}
			p, err := a.Prefix(int(subnet))
			if err != nil {
				return "", fmt.Errorf("invalid subnet /%d: %w", subnet, err)
			}
			if kind == KindInet {
				// inet keeps host bits
				return netip.PrefixFrom(a, int(subnet)).String(), nil
			}
			return p.String(), nil
		}
		return "", fmt.Errorf("expected network address, got %T", v)
	}
}

func macText(v ir.IRValue) (string, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("expected mac address string, got %T", v)
	}
	hw, err := net.ParseMAC(string(s))
	if err != nil {
		return "", fmt.Errorf("invalid mac address %q: %w", s, err)
	}
	return hw.String(), nil
}

func quoteAfter(f func(ir.IRValue) (string, error)) LiteralFormatter {
	return func(v ir.IRValue) (string, error) {
		s, err := f(v)
		if err != nil {
			return "", err
		}
		return QuoteString(s), nil
	}
}

func textAfter(f func(ir.IRValue) (string, error)) ParameterFormatter {
	return func(v ir.IRValue) (any, error) {
		return f(v)
	}
}

// hstoreText renders a string->string|null object in hstore input syntax.
func hstoreText(v ir.IRValue) (string, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		if s, isString := v.(ir.IRString); isString {
			return string(s), nil
		}
		return "", fmt.Errorf("expected object, got %T", v)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch val := obj[k].(type) {
		case ir.IRNull, nil:
			parts = append(parts, hstoreQuote(k)+"=>NULL")
		case ir.IRString:
			parts = append(parts, hstoreQuote(k)+"=>"+hstoreQuote(string(val)))
		default:
			return "", fmt.Errorf("hstore value for %q must be a string, got %T", k, val)
		}
	}
	return strings.Join(parts, ", "), nil
}

func hstoreQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// rangeText renders a range value. Objects carry lower/upper bounds plus
// optional inclusivity flags; strings are passed through verbatim.
func rangeText(subtype *Mapping) func(v ir.IRValue) (string, error) {
	return func(v ir.IRValue) (string, error) {
		switch val := v.(type) {
		case ir.IRString:
			return string(val), nil
		case ir.IRObject:
			if empty, _ := val["empty"].(ir.IRBool); empty {
				return "empty", nil
			}
			lowerInc := true
			if b, ok := val["lower_inclusive"].(ir.IRBool); ok {
				lowerInc = bool(b)
			}
			upperInc := false
			if b, ok := val["upper_inclusive"].(ir.IRBool); ok {
				upperInc = bool(b)
			}
			lower, err := rangeBound(subtype, val["lower"])
			if err != nil {
				return "", fmt.Errorf("lower bound: %w", err)
			}
			upper, err := rangeBound(subtype, val["upper"])
			if err != nil {
				return "", fmt.Errorf("upper bound: %w", err)
			}
			var b strings.Builder
			if lowerInc && lower != "" {
				b.WriteByte('[')
			} else {
				b.WriteByte('(')
			}
			b.WriteString(lower)
			b.WriteByte(',')
			b.WriteString(upper)
			if upperInc && upper != "" {
				b.WriteByte(']')
			} else {
				b.WriteByte(')')
			}
			return b.String(), nil
		}
		return "", fmt.Errorf("expected range, got %T", v)
	}
}

func rangeBound(subtype *Mapping, v ir.IRValue) (string, error) {
	if ir.IsNull(v) {
		return "", nil
	}
	switch b := v.(type) {
	case ir.IRInt:
		return strconv.FormatInt(int64(b), 10), nil
	case ir.IRFloat:
		return strconv.FormatFloat(float64(b), 'g', -1, 64), nil
	case ir.IRString:
		if subtype != nil && subtype.Kind == KindTimestamp {
			if _, err := parseTimestamp(b); err != nil {
				return "", err
			}
		}
		return `"` + strings.ReplaceAll(string(b), `"`, `\"`) + `"`, nil
	}
	return "", fmt.Errorf("unsupported bound %T", v)
}

// arrayLiteral renders ARRAY[e1, e2, ...] with element literals.
func arrayLiteral(elem *Mapping) LiteralFormatter {
	return func(v ir.IRValue) (string, error) {
		arr, ok := v.(ir.IRArray)
		if !ok {
			return "", fmt.Errorf("expected array, got %T", v)
		}
		parts := make([]string, len(arr))
		for i, e := range arr {
			s, err := elem.FormatLiteral(e)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			parts[i] = s
		}
		return "ARRAY[" + strings.Join(parts, ",") + "]", nil
	}
}

// arrayParam converts every element through the element mapping.
func arrayParam(elem *Mapping) ParameterFormatter {
	return func(v ir.IRValue) (any, error) {
		arr, ok := v.(ir.IRArray)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			p, err := elem.FormatParam(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	}
}

// compositeLiteral renders ROW(f1, f2, ...) in field declaration order.
func compositeLiteral(fields []*Property, lookup func(Type) (*Mapping, error)) LiteralFormatter {
	return func(v ir.IRValue) (string, error) {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return "", fmt.Errorf("expected object, got %T", v)
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			m, err := lookup(f.Type)
			if err != nil {
				return "", err
			}
			s, err := m.FormatLiteral(obj[f.Name])
			if err != nil {
				return "", fmt.Errorf("field %s: %w", f.Name, err)
			}
			parts[i] = s
		}
		return "ROW(" + strings.Join(parts, ", ") + ")", nil
	}
}

// compositeParam renders record text, (1,"a b"), which PostgreSQL casts
// to the composite type. NULL fields are left empty.
func compositeParam(fields []*Property, lookup func(Type) (*Mapping, error)) ParameterFormatter {
	return func(v ir.IRValue) (any, error) {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			fv := obj[f.Name]
			if fv == nil || ir.IsNull(fv) {
				continue
			}
			m, err := lookup(f.Type)
			if err != nil {
				return nil, err
			}
			p, err := m.FormatParam(fv)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			parts[i] = recordField(fmt.Sprint(p))
		}
		return "(" + strings.Join(parts, ",") + ")", nil
	}
}

func recordField(s string) string {
	if s != "" && !strings.ContainsAny(s, "(),\\\" \t") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
