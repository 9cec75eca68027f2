// Package ledger embeds SQL migration files for the transaction-service schema.
// Migrations are embedded so they work regardless of working directory.
package ledger

import "embed"

// FS is the embedded migrations filesystem.
//
//go:embed *.sql
var FS embed.FS
