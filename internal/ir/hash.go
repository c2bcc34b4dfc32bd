package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainShape     = "querylift/shape/v1"
	DomainParameter = "querylift/parameter/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ShapeHash computes the content-addressed key of a query tree shape.
// The shape document must already have captured values stripped; it is
// canonicalized here so map ordering never leaks into the key.
func ShapeHash(shape any) (string, error) {
	canonical, err := MarshalCanonical(shape)
	if err != nil {
		return "", fmt.Errorf("ShapeHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainShape, canonical), nil
}

// ParameterKey computes the dedup key for a bound parameter.
// Two parameters share a slot only when name, store type and value all match.
func ParameterKey(name, storeType string, value IRValue) (string, error) {
	obj := IRObject{
		"name":  IRString(name),
		"type":  IRString(storeType),
		"value": value,
	}
	if value == nil {
		obj["value"] = IRNull{}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ParameterKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainParameter, canonical), nil
}

// MustShapeHash is like ShapeHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustShapeHash(shape any) string {
	h, err := ShapeHash(shape)
	if err != nil {
		panic(err)
	}
	return h
}
