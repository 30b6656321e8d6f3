// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for products, orders, order items and
// order logs.
//
//go:embed migrations/001_schema.sql
var Schema string
