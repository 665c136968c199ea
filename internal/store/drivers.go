package store

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Registered database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var driverAliases = map[string]string{
	"":           DriverSQLite,
	"sqlite":     DriverSQLite,
	"sqlite3":    DriverSQLite,
	"postgres":   DriverPostgres,
	"postgresql": DriverPostgres,
	"pq":         DriverPostgres,
	"mysql":      DriverMySQL,
}

// driverName resolves a configured driver name to a registered one.
func driverName(name string) (string, error) {
	d, ok := driverAliases[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unsupported driver %q", name)
	}
	return d, nil
}
