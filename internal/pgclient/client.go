// Package pgclient is an execution client speaking the PostgreSQL protocol
// natively through pgx.
//
// Unlike the database/sql client in internal/store, it reports every result
// set of a multi-statement query and uses server-side named prepared
// statements.
package pgclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// Client executes statements on a pgx connection pool.
// It implements engine.Client.
type Client struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Close closes the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Exec runs stmt.
//
// Text without parameters or a name goes over the simple protocol, which
// accepts several statements and yields one result per statement. Anything
// else uses the extended protocol with a single result.
func (c *Client) Exec(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if stmt.Name == "" && len(stmt.Params) == 0 {
		return execSimple(ctx, conn.Conn(), stmt.Text)
	}

	sql := stmt.Text
	if stmt.Name != "" {
		// Prepare is idempotent per connection for the same name and text.
		if _, err := conn.Conn().Prepare(ctx, stmt.Name, stmt.Text); err != nil {
			return nil, fmt.Errorf("prepare %q: %w", stmt.Name, err)
		}
		sql = stmt.Name
	}

	rows, err := conn.Query(ctx, sql, stmt.Params...)
	if err != nil {
		return nil, err
	}
	res, err := collect(rows)
	if err != nil {
		return nil, err
	}
	return []*result.Result{res}, nil
}

// collect drains rows into a Result.
func collect(rows pgx.Rows) (*result.Result, error) {
	defer rows.Close()

	res := &result.Result{Columns: columnNames(rows.FieldDescriptions()), Rows: []result.Row{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		res.Rows = append(res.Rows, makeRow(res.Columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	res.Command = commandVerb(tag)
	res.RowsAffected = tag.RowsAffected()
	return res, nil
}

// execSimple runs text over the simple protocol and decodes every result.
func execSimple(ctx context.Context, conn *pgx.Conn, text string) ([]*result.Result, error) {
	raw, err := conn.PgConn().Exec(ctx, text).ReadAll()
	if err != nil {
		return nil, err
	}

	tm := conn.TypeMap()
	results := make([]*result.Result, 0, len(raw))
	for _, r := range raw {
		res := &result.Result{
			Command:      commandVerb(r.CommandTag),
			RowsAffected: r.CommandTag.RowsAffected(),
			Columns:      columnNames(r.FieldDescriptions),
			Rows:         make([]result.Row, 0, len(r.Rows)),
		}
		for _, cells := range r.Rows {
			values := make([]any, len(cells))
			for i, cell := range cells {
				v, err := decode(tm, r.FieldDescriptions[i], cell)
				if err != nil {
					return nil, fmt.Errorf("decode column %q: %w", res.Columns[i], err)
				}
				values[i] = v
			}
			res.Rows = append(res.Rows, makeRow(res.Columns, values))
		}
		results = append(results, res)
	}
	return results, nil
}

// decode converts one wire value using the connection's type map. Unknown
// types are returned as text.
func decode(tm *pgtype.Map, fd pgconn.FieldDescription, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}
	t, ok := tm.TypeForOID(fd.DataTypeOID)
	if !ok {
		return string(src), nil
	}
	return t.Codec.DecodeValue(tm, fd.DataTypeOID, fd.Format, src)
}

func columnNames(fds []pgconn.FieldDescription) []string {
	names := make([]string, len(fds))
	for i, fd := range fds {
		names[i] = fd.Name
	}
	return names
}

func makeRow(columns []string, values []any) result.Row {
	row := make(result.Row, len(columns))
	for i, name := range columns {
		row[name] = values[i]
	}
	return row
}

// commandVerb returns the verb of a command tag ("INSERT 0 1" -> "INSERT").
func commandVerb(tag pgconn.CommandTag) string {
	verb, _, _ := strings.Cut(tag.String(), " ")
	return verb
}
