package builder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// StagedFile is a file copied into the output tree.
type StagedFile struct {
	Path   string // forward-slash path relative to the output root
	Size   int64
	Origin string // root the surviving copy came from
}

// CollectReport describes what Collect did.
type CollectReport struct {
	Staged          map[string]StagedFile // keyed by StagedFile.Path
	Ignored         []string              // source paths skipped by the ignore filter
	Skipped         []string              // source paths that are not regular files
	MissingOverlays []string
	Failed          []error // per-file copy failures, already logged
}

// Collect copies primaryRoot and then each overlay root into destination,
// preserving relative paths. Files from later roots replace files copied
// from earlier ones. Files whose base name matches an ignore pattern are
// skipped.
//
// Symlinks are followed, both for roots and for files inside them.
// Entries that are not regular files, including symlinked directories, are
// reported in Skipped.
//
// A missing primary root is an error. Missing overlays are reported and
// skipped, as are individual files that cannot be read.
func (b *Builder) Collect(primaryRoot string, overlayRoots, ignoreNames []string, destination string) (*CollectReport, error) {
	report := &CollectReport{Staged: map[string]StagedFile{}}
	ignore := newIgnoreList(ignoreNames)

	if err := b.dst.MkdirAll(destination, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", destination, err)
	}

	if _, err := b.src.Stat(primaryRoot); err != nil {
		return nil, fmt.Errorf("failed to stat game directory: %w", err)
	}
	if err := b.collectRoot(primaryRoot, ignore, destination, report); err != nil {
		return nil, err
	}

	for _, root := range overlayRoots {
		exists, err := afero.DirExists(b.src, root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat overlay %s: %w", root, err)
		}
		if !exists {
			b.logger.Warn("overlay does not exist, skipping", "overlay", root)
			report.MissingOverlays = append(report.MissingOverlays, root)
			continue
		}
		if err := b.collectRoot(root, ignore, destination, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (b *Builder) collectRoot(root string, ignore ignoreList, destination string, report *CollectReport) error {
	logger := b.logger.With("root", root)

	walkRoot, err := b.resolveRoot(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if walkRoot != root {
		logger.Info("following symlinked root", "target", walkRoot)
	}
	logger.Info("copying files to output directory", "output", destination)

	copied := 0
	err = afero.Walk(b.src, walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == walkRoot {
				return err
			}
			logger.Error("cannot read source entry", "path", p, "error", err)
			report.Failed = append(report.Failed, fmt.Errorf("reading %s: %w", p, err))
			return nil
		}

		rel, err := filepath.Rel(walkRoot, p)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, rel)

		if info.Mode()&os.ModeSymlink != 0 {
			linked, err := b.src.Stat(p)
			if err != nil {
				logger.Error("cannot follow symlink, skipping", "path", p, "error", err)
				report.Failed = append(report.Failed, fmt.Errorf("following %s: %w", p, err))
				return nil
			}
			if !linked.Mode().IsRegular() {
				logger.Warn("skipping symlink to non-regular file", "path", p, "mode", linked.Mode())
				report.Skipped = append(report.Skipped, p)
				return nil
			}
			info = linked
		}

		if info.IsDir() {
			if err := b.dst.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			logger.Warn("skipping non-regular file", "path", p, "mode", info.Mode())
			report.Skipped = append(report.Skipped, p)
			return nil
		}

		if ignore.Match(info.Name()) {
			logger.Info("skipping ignored file", "path", p)
			report.Ignored = append(report.Ignored, p)
			return nil
		}

		logger.Debug("copying file", "path", rel)
		n, err := b.copyFile(p, target, info.Mode().Perm())
		if errors.Is(err, errSourceUnreadable) {
			logger.Error("cannot read source file, skipping", "path", p, "error", err)
			report.Failed = append(report.Failed, err)
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		report.Staged[name] = StagedFile{Path: name, Size: n, Origin: root}
		copied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", root, err)
	}

	logger.Info("copy complete", "files", copied)
	return nil
}

// resolveRoot returns the directory root points to. afero.Walk does not
// follow a symlinked root on the OS filesystem.
func (b *Builder) resolveRoot(root string) (string, error) {
	if _, ok := b.src.(*afero.OsFs); !ok {
		return root, nil
	}
	return filepath.EvalSymlinks(root)
}

var errSourceUnreadable = errors.New("source file unreadable")

// copyFile copies src from the source filesystem to dst on the output
// filesystem, replacing any existing file. The data goes to a temporary
// file next to dst that is renamed over it once complete, so a failed copy
// leaves the previous dst in place. Open and read failures on src wrap
// errSourceUnreadable.
func (b *Builder) copyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := b.src.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSourceUnreadable, err)
	}
	defer in.Close()

	tmp, err := afero.TempFile(b.dst, filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	r := &sourceReader{r: in}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = b.dst.Chmod(tmpName, perm|0o200)
	}
	if err == nil {
		err = b.dst.Rename(tmpName, dst)
	}
	if err != nil {
		b.dst.Remove(tmpName)
		if r.err != nil {
			return n, fmt.Errorf("%w: %s: %w", errSourceUnreadable, src, r.err)
		}
		return n, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return n, nil
}

// sourceReader remembers the first read error so it can be told apart
// from write errors after io.Copy.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// ignoreList matches file base names against exact names or glob patterns.
type ignoreList []string

func newIgnoreList(names []string) ignoreList {
	var l ignoreList
	for _, n := range names {
		if n != "" {
			l = append(l, n)
		}
	}
	return l
}

// Match reports whether a file called name should be skipped.
func (l ignoreList) Match(name string) bool {
	for _, pattern := range l {
		if pattern == name {
			return true
		}
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
