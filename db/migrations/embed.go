// Package dbmigrations exposes embedded SQL migrations for orderdesk binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into orderdesk binaries.
//
//go:embed *.sql
var Files embed.FS
