package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateOptions tunes the generated file. NoTransaction emits the goose
// header required for statements such as CREATE INDEX CONCURRENTLY.
type CreateOptions struct {
	NoTransaction bool
	Now           func() time.Time
}

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its
// path. Existing files are never overwritten.
func CreateSQLMigration(dir, name string, opts CreateOptions) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now().UTC().Format(versionLayout), safe))
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("migration already exists: %s", fullpath)
		}
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	defer f.Close()

	if _, err := f.WriteString(renderTemplate(safe, opts.NoTransaction)); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

func renderTemplate(name string, noTx bool) string {
	var b strings.Builder
	if noTx {
		b.WriteString(noTransactionHeader + "\n\n")
	}
	fmt.Fprintf(&b, "%s\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n\n", upHeader, name)
	fmt.Fprintf(&b, "%s\n-- +goose StatementBegin\n-- rollback %s\n-- +goose StatementEnd\n", downHeader, name)
	return b.String()
}
