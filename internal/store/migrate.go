package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ApplyMigrations runs every .sql file in dir in lexical order and returns
// the applied file names. The scripts are written to be re-runnable.
func ApplyMigrations(ctx context.Context, db Pool, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read migrations dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	applied := make([]string, 0, len(names))
	for _, name := range names {
		script, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, eris.Wrapf(err, "store: read migration %s", name)
		}
		if _, err := db.Exec(ctx, string(script)); err != nil {
			return applied, eris.Wrapf(err, "store: apply migration %s", name)
		}
		applied = append(applied, name)
	}
	return applied, nil
}
