// Package migrations embeds the relay's SQL schema into the binary.
//
// Importing this package (usually with a blank import) registers the
// files with the database package, so db.Migrate needs nothing on disk.
package migrations

import (
	"embed"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
