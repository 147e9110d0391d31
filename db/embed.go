// Package db provides the embedded schema for the PostgreSQL key-value backend.
package db

import _ "embed"

// Schema contains the DDL for the kv_entries table.
//
//go:embed migrations/001_schema.sql
var Schema string
