// Package sqlite persists prediction runs and their per-class metrics.
//
// The schema is managed by embedded golang-migrate migrations; Open applies
// the pragmas the store relies on and MigrateUp brings the schema current.
package sqlite
