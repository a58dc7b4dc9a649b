// Package ident checks database names before they are placed in a DSN.
package ident

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MySQLMaxNameLength is the maximum length of a MySQL database name, in
	// characters.
	MySQLMaxNameLength = 64

	// PostgresMaxNameLength is the maximum length of a PostgreSQL database
	// name, in bytes. Longer names are truncated by the server.
	PostgresMaxNameLength = 63
)

// CheckMySQLName reports whether name can be used as a MySQL database name.
// Quoted names may hold any character except NUL, the path separators and a
// dot, and may not end with a space.
func CheckMySQLName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if n := utf8.RuneCountInString(name); n > MySQLMaxNameLength {
		return fmt.Errorf("name is %d characters, limit is %d", n, MySQLMaxNameLength)
	}
	if i := strings.IndexAny(name, "\x00/\\."); i >= 0 {
		return fmt.Errorf("name contains %q", name[i])
	}
	if strings.HasSuffix(name, " ") {
		return fmt.Errorf("name ends with a space")
	}
	return nil
}

// CheckPostgresName reports whether name can be used as a PostgreSQL
// database name.
func CheckPostgresName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len(name) > PostgresMaxNameLength {
		return fmt.Errorf("name is %d bytes, limit is %d", len(name), PostgresMaxNameLength)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("name contains a NUL byte")
	}
	return nil
}
