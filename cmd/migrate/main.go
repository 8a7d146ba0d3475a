// Command migrate applies the audit schema to the configured Postgres
// database. It is the only writer of that schema's DDL; the running API
// server only ever inserts rows into tables this command created.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
)

func main() {
	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		fmt.Fprintln(os.Stderr, "POSTGRES_URL must be set")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	schema, err := os.ReadFile("migrations/001_audit_schema.up.sql")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read migration: %v\n", err)
		os.Exit(1)
	}

	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			fmt.Fprintf(os.Stderr, "migration statement failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("audit schema migration applied")
}
