// Package ir provides the host value representation shared by every layer of
// querylift: constants and captured values in query trees, parameter values
// handed to executors, and the canonical encoding used for content-addressed
// keys.
//
// This package contains value definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed set (IRNull, IRString, IRInt, IRFloat, IRBool,
//     IRArray, IRObject); richer host values (network addresses, ranges,
//     JSON documents) are encoded with these and interpreted by type mappings
//   - Canonical JSON (RFC 8785, NFC strings) is the only encoding used for
//     shape keys and parameter dedup keys
package ir
