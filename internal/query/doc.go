// Package query defines the forms a query can take and reduces them to
// executable text plus parameters.
//
// Callers build a Descriptor with one of the constructors (Raw, FromFile,
// Prepared, Parameterized, Function) and the engine passes it through
// Normalize before formatting and dispatch.
package query
