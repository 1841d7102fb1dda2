package index

import "embed"

// FS holds the schema migrations applied by Open
//
//go:embed migrations/*.sql
var FS embed.FS
