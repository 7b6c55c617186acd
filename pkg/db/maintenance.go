package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BackupSQLite writes a consistent copy of the embedded store into dir using
// VACUUM INTO and returns the file path.
func (c *Client) BackupSQLite(ctx context.Context, dir string, now time.Time) (string, error) {
	if !c.IsSQLite() {
		return "", fmt.Errorf("backup is only supported for sqlite, driver is %q", c.driver)
	}
	if dir == "" {
		return "", fmt.Errorf("backup dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}
	target := filepath.Join(dir, fmt.Sprintf("vitroscience_%s.db", now.UTC().Format("20060102_150405")))
	if err := c.Exec(ctx, "VACUUM INTO ?", target).Error; err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}
	return target, nil
}

// Vacuum compacts the store. Postgres gets a plain VACUUM ANALYZE.
func (c *Client) Vacuum(ctx context.Context) error {
	stmt := "VACUUM"
	if !c.IsSQLite() {
		stmt = "VACUUM ANALYZE"
	}
	if err := c.Exec(ctx, stmt).Error; err != nil {
		return fmt.Errorf("%s: %w", stmt, err)
	}
	return nil
}
