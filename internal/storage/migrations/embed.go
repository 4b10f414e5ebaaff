// Package migrations embeds the versioned SQL schema of the entity store
// and the snapshot sink. The stores apply them; this package only loads.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// Migration is one versioned SQL file.
type Migration struct {
	Version string // file name without .sql, e.g. 001_entities
	SQL     string
}

// Postgres returns the entity store migrations in version order.
func Postgres() ([]Migration, error) {
	return Load(postgresFS, "postgres")
}

// ClickHouse returns the snapshot sink migrations in version order.
func ClickHouse() ([]Migration, error) {
	return Load(clickhouseFS, "clickhouse")
}

// Load reads every dir/*.sql file of fsys sorted by name. Blank files are skipped.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(path.Base(name), ".sql"),
			SQL:     string(data),
		})
	}
	return out, nil
}
