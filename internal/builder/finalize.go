package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// KeepFileName is the marker placed in directories that would otherwise be
// empty, since some transfer tools drop empty directories.
const KeepFileName = "KEEP_ME"

// PreserveEmptyDirectories creates a KeepFileName marker in every empty
// directory below destination and returns the markers created. Failures on
// single directories are logged and returned together once the sweep is done.
func (b *Builder) PreserveEmptyDirectories(destination string) ([]string, error) {
	var dirs []string
	err := afero.Walk(b.dst, destination, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && p != destination {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", destination, err)
	}

	var markers []string
	var errs []error
	for _, dir := range dirs {
		empty, err := afero.IsEmpty(b.dst, dir)
		if err != nil {
			b.logger.Error("cannot read directory", "path", dir, "error", err)
			errs = append(errs, err)
			continue
		}
		if !empty {
			continue
		}

		marker := filepath.Join(dir, KeepFileName)
		if err := afero.WriteFile(b.dst, marker, nil, 0o644); err != nil {
			b.logger.Error("cannot create marker", "path", marker, "error", err)
			errs = append(errs, fmt.Errorf("failed to create %s: %w", marker, err))
			continue
		}
		b.logger.Debug("marked empty directory", "path", dir)
		markers = append(markers, marker)
	}

	return markers, errors.Join(errs...)
}
