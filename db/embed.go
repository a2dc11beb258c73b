// Package db provides the embedded database schema for the PostgreSQL
// document-store backend.
package db

import _ "embed"

// Schema contains the DDL for the documents table.
//
//go:embed migrations/001_schema.sql
var Schema string
