package typemap

import (
	"fmt"
	"strings"
)

var kindNames = map[string]Kind{
	"int":       KindInt,
	"integer":   KindInt,
	"bigint":    KindBigInt,
	"long":      KindBigInt,
	"smallint":  KindSmallInt,
	"short":     KindSmallInt,
	"double":    KindDouble,
	"float":     KindDouble,
	"real":      KindReal,
	"decimal":   KindDecimal,
	"numeric":   KindDecimal,
	"text":      KindText,
	"string":    KindText,
	"bool":      KindBool,
	"boolean":   KindBool,
	"uuid":      KindUUID,
	"guid":      KindUUID,
	"timestamp": KindTimestamp,
	"date":      KindDate,
	"bytes":     KindBytes,
	"bytea":     KindBytes,
	"json":      KindJSON,
	"jsonb":     KindJSONB,
	"hstore":    KindHstore,
	"inet":      KindInet,
	"cidr":      KindCidr,
	"macaddr":   KindMacAddr,
	"macaddr8":  KindMacAddr8,
	"tsvector":  KindTsVector,
	"tsquery":   KindTsQuery,
	"regconfig": KindRegConfig,
}

// ParseType parses a textual host type such as "int", "int?", "text[]",
// "int?[]", "range<int>" or "range<timestamp>?".
//
// Struct, list and composite types cannot be spelled textually; they come
// from a model definition.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, fmt.Errorf("empty type")
	}

	nullable := false
	if strings.HasSuffix(s, "?") {
		nullable = true
		s = strings.TrimSuffix(s, "?")
	}

	if strings.HasSuffix(s, "[]") {
		elem, err := ParseType(strings.TrimSuffix(s, "[]"))
		if err != nil {
			return Type{}, fmt.Errorf("array element: %w", err)
		}
		return ArrayOf(elem).WithNullable(nullable), nil
	}

	if strings.HasPrefix(s, "range<") && strings.HasSuffix(s, ">") {
		sub, err := ParseType(s[len("range<") : len(s)-1])
		if err != nil {
			return Type{}, fmt.Errorf("range subtype: %w", err)
		}
		if _, ok := rangeStores[sub.Kind]; !ok {
			return Type{}, fmt.Errorf("no built-in range over %s", sub.Kind)
		}
		return RangeOf(sub).WithNullable(nullable), nil
	}

	k, ok := kindNames[strings.ToLower(s)]
	if !ok {
		return Type{}, fmt.Errorf("unknown type %q", s)
	}
	return Type{Kind: k, Nullable: nullable}, nil
}

// MustParseType is like ParseType but panics on error.
// Use only in tests or for types known to be valid.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}
