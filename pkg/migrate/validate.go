package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	upHeader            = "-- +goose Up"
	downHeader          = "-- +goose Down"
	noTransactionHeader = "-- +goose NO TRANSACTION"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks file names, version uniqueness and the goose annotations
// of every .sql file in dir. Postgres refuses CONCURRENTLY inside a
// transaction, so such files must opt out with NO TRANSACTION.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateBody(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func validateBody(txt string) error {
	up := strings.Index(txt, upHeader)
	down := strings.Index(txt, downHeader)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", upHeader)
	case down < 0:
		return fmt.Errorf("missing %q", downHeader)
	case down < up:
		return fmt.Errorf("%q must precede %q", upHeader, downHeader)
	}
	if strings.Contains(strings.ToUpper(txt), "CONCURRENTLY") && !strings.Contains(txt, noTransactionHeader) {
		return fmt.Errorf("CONCURRENTLY requires %q", noTransactionHeader)
	}
	return nil
}
