// Package audit embeds SQL migration files for the audit-service schema.
// Migrations are embedded so they work regardless of working directory.
package audit

import "embed"

// FS is the embedded migrations filesystem.
//
//go:embed *.sql
var FS embed.FS
