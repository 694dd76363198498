// Package schema compiles declarative value-shape descriptions into
// executable validators.
//
// A shape description is a JSON-schema-like document supporting object,
// string, number, boolean and array types plus an implicit "any" fallback
// for absent or unrecognized type tags. Compile interprets the description
// recursively into a composed Validator; validating a value reports every
// failing leaf with a dotted path rather than stopping at the first error.
package schema
