// Package batch runs a YAML file of independent queries through the engine
// and checks each outcome against its expectation.
//
// A batch file looks like:
//
//	name: users
//	description: user lookups
//	parallel: 4
//	setup:
//	  - CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)
//	  - INSERT INTO users VALUES (1, 'ann'), (2, 'bob')
//	calls:
//	  - name: find-ann
//	    query: SELECT name FROM users WHERE id = $1
//	    values: [1]
//	    mask: one
//	    expect:
//	      row: {name: ann}
//	  - name: none-expected
//	    query: SELECT name FROM users
//	    mask: none
//	    expect:
//	      error: not_empty
//
// Setup statements run first, in order. Calls then run with at most parallel
// in flight (default 1, which keeps file order). Each call gets its own
// scope and correlation id; a failed call never stops the others.
//
// Golden comparison (RunWithGolden) snapshots names, shapes, rows and
// errors. Durations and correlation ids are excluded so snapshots are
// stable across runs.
package batch
