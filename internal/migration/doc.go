// Package migration manages database schema migrations with embedded SQL
// files, one set per supported database. It wraps golang-migrate and
// exposes apply, rollback, status and version operations plus a small CLI
// helper used by the migrate subcommand.
package migration
