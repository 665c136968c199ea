// Package store executes queries over database/sql and keeps an append-only
// audit log of query events.
//
// # Execution
//
// Store implements engine.Client. Statements with a name are prepared once
// per store and reused; unnamed statements run directly. Every result set a
// driver reports (via Rows.NextResultSet) becomes one result.Result, in order.
//
// Supported drivers:
//   - sqlite3 (github.com/mattn/go-sqlite3), the default
//   - postgres (github.com/lib/pq)
//   - mysql (github.com/go-sql-driver/mysql)
//
// # Audit Log
//
// Auditor writes one row per hook notification (query, receive, error) into
// the query_log table of a SQLite store:
//   - Ordering uses seq INTEGER from a logical clock, never timestamps
//   - Reads are ORDER BY seq ASC, so the log of one call replays in order
//   - Audit write failures are logged and never fail the query
//
// # Database Configuration (sqlite3)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
