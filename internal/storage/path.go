package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotKey names a timestamped snapshot of a database file, e.g.
// snapshots/sqlite/shop-20260219T090500Z.db.
func BuildSnapshotKey(dialect, fileName string, createdAt time.Time) (string, error) {
	if err := validatePathComponent(dialect, "dialect"); err != nil {
		return "", err
	}
	if err := validatePathComponent(fileName, "file name"); err != nil {
		return "", err
	}
	ext := path.Ext(fileName)
	stem := fileName[:len(fileName)-len(ext)]
	if stem == "" {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}
	ts := createdAt.UTC().Format("20060102T150405Z")
	return path.Join("snapshots", dialect, fmt.Sprintf("%s-%s%s", stem, ts, ext)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
