package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	sca "github.com/goliatone/go-psd2-sca"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// ActivityTable holds one row per recorded authorisation step.
const ActivityTable = "sca_activity_entries"

const (
	migrationsDir     = "data/sql/migrations"
	activityMigration = "00001_sca_activity"
)

// ActivitySchema returns the migration directory for dialect after checking
// it carries the activity up/down pair and that every up file has its down
// counterpart. The embedded migrations are used unless a source is given.
func ActivitySchema(dialect string, sources ...fs.FS) (fs.FS, error) {
	root := sca.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	dir, err := dialectDir(dialect)
	if err != nil {
		return nil, err
	}
	schema, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s schema: %w", dialect, err)
	}
	if err := validateSchema(schema, dir); err != nil {
		return nil, err
	}
	return schema, nil
}

// RegisterActivitySchema resolves the schema for dialect and hands it to
// register, typically a persistence client's migration registry.
func RegisterActivitySchema(dialect string, register func(fs.FS)) error {
	if register == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	schema, err := ActivitySchema(dialect)
	if err != nil {
		return err
	}
	register(schema)
	return nil
}

func dialectDir(dialect string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		return migrationsDir, nil
	case DialectSQLite:
		return path.Join(migrationsDir, DialectSQLite), nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}

func validateSchema(schema fs.FS, dir string) error {
	ups, err := fs.Glob(schema, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	hasActivity := false
	for _, up := range ups {
		base := strings.TrimSuffix(up, ".up.sql")
		if base == activityMigration {
			hasActivity = true
		}
		if _, err := fs.Stat(schema, base+".down.sql"); err != nil {
			return fmt.Errorf("migrations: %s/%s has no down migration", dir, up)
		}
	}
	if !hasActivity {
		return fmt.Errorf("migrations: %s is missing %s.up.sql", dir, activityMigration)
	}
	return nil
}
