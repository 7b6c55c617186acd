package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// CreateForDialects writes an empty goose migration with one shared version
// into every dialect directory under baseDir. The version must sort after
// everything already present so goose never sees an out-of-order file.
func CreateForDialects(baseDir, name string, now time.Time) ([]string, error) {
	slug, err := slugify(name)
	if err != nil {
		return nil, err
	}
	version := now.UTC().Format(versionLayout)

	for _, dialect := range Dialects {
		existing, err := versionsIn(filepath.Join(baseDir, dialect))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if n := len(existing); n > 0 && existing[n-1] >= version {
			return nil, fmt.Errorf("%s already has version %s; %s would apply out of order", dialect, existing[n-1], version)
		}
	}

	paths := make([]string, 0, len(Dialects))
	for _, dialect := range Dialects {
		dir := filepath.Join(baseDir, dialect)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, fmt.Errorf("mkdir %q: %w", dir, err)
		}
		path := filepath.Join(dir, version+"_"+slug+".sql")
		body := fmt.Sprintf("-- +goose Up\n-- %s: %s\n\n-- +goose Down\n-- %s: undo %s\n", dialect, slug, dialect, slug)
		// O_EXCL keeps a rerun within the same second from clobbering edits
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return paths, fmt.Errorf("create %q: %w", path, err)
		}
		_, werr := f.WriteString(body)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return paths, fmt.Errorf("write %q: %w", path, werr)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func slugify(name string) (string, error) {
	slug := strings.Trim(nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	return slug, nil
}
