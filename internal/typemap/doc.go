// Package typemap resolves host value kinds to SQL store types.
//
// A Mapping carries everything the translator and printer need to know about
// a store type: its name, how to render a value as a literal, how to hand a
// value to a driver as a parameter, and (for arrays and ranges) the mapping
// of its elements. Entity and owned JSON shapes are described by Struct.
package typemap
