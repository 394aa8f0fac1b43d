// Package migrations embeds SQL migration files for the Postgres store.
//
// Migrations may contain the token {{dimensions}}, which is replaced with the
// configured embedding dimension before execution.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
