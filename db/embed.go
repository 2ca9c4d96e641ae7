// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL applied at startup.
//
//go:embed migrations/001_schema.sql
var Schema string
