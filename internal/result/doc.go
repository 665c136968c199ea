// Package result defines query results and the cardinality contract that
// callers declare for them.
//
// A Mask states how many rows a caller expects. Shape classifies a raw
// Result against a validated Mask and produces either an Outcome or a
// *QueryResultError describing the mismatch.
//
// # Masks
//
//   - One:        exactly one row
//   - Many:       one or more rows
//   - None:       no rows
//   - OneOrNone:  zero or one row
//   - ManyOrNone: any number of rows (also the implicit default, Any)
//
// One|Many is contradictory and always rejected, with or without None.
package result
