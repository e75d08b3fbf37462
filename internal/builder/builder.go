// Package builder turns a game directory and its overlays into an output
// tree of PACK archives plus the files that must stay loose.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// CommandLineFileName is written next to the output directory when the
// build carries an engine command line.
const CommandLineFileName = "commandline.txt"

// ErrOutputOverlapsSource is returned when the output directory and a source
// root contain one another. The output directory is deleted on every build.
var ErrOutputOverlapsSource = errors.New("output directory overlaps a source directory")

// ErrInvalidArchiveName is returned for an archive name pattern that does not
// hold exactly one %d verb or that names a path.
var ErrInvalidArchiveName = errors.New("archive name must contain exactly one %d and no path separator")

// Options describes one build.
type Options struct {
	GameDir          string   // primary root
	Overlays         []string // applied in order after GameDir
	Ignore           []string // base names (or globs) never copied
	OutputDir        string   // deleted and recreated
	MaxFilesPerChunk int      // DefaultMaxFilesPerChunk if zero
	ArchiveName      string   // fmt pattern taking the chunk index, DefaultArchiveName if empty
	CommandLine      string   // written to CommandLineFileName if set
}

// Result summarizes a build.
type Result struct {
	Archives        []string // archive file names, in index order
	Plan            *Plan
	Collect         *CollectReport
	Markers         []string
	CommandLineFile string
	Failed          []error // best-effort failures, already logged
}

// Builder runs the pipeline. Sources are read from src and everything is
// written to dst; both are usually the OS filesystem, while a dry run writes
// to memory.
type Builder struct {
	src    afero.Fs
	dst    afero.Fs
	logger *slog.Logger
}

// New returns a Builder. A nil logger uses slog.Default.
func New(src, dst afero.Fs, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{src: src, dst: dst, logger: logger}
}

// Build deletes opts.OutputDir, collects the sources into it, packs its
// subdirectories into archives and marks empty directories.
func (b *Builder) Build(opts Options) (*Result, error) {
	if opts.MaxFilesPerChunk == 0 {
		opts.MaxFilesPerChunk = DefaultMaxFilesPerChunk
	}
	if opts.MaxFilesPerChunk < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, opts.MaxFilesPerChunk)
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = DefaultArchiveName
	}
	if err := validateArchiveName(opts.ArchiveName); err != nil {
		return nil, err
	}
	for _, root := range append([]string{opts.GameDir}, opts.Overlays...) {
		if overlaps(root, opts.OutputDir) {
			return nil, fmt.Errorf("%w: %s and %s", ErrOutputOverlapsSource, opts.OutputDir, root)
		}
	}

	logger := b.logger.With("output", opts.OutputDir)

	if err := b.dst.RemoveAll(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to clear output directory: %w", err)
	}
	if err := b.dst.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	res := &Result{}

	collected, err := b.Collect(opts.GameDir, opts.Overlays, opts.Ignore, opts.OutputDir)
	if err != nil {
		return nil, err
	}
	res.Collect = collected
	res.Failed = append(res.Failed, collected.Failed...)

	plan, err := b.PlanArchives(opts.OutputDir, opts.MaxFilesPerChunk)
	if err != nil {
		return nil, err
	}
	for _, c := range plan.Chunks {
		for i := range c.Files {
			c.Files[i].Origin = collected.Staged[c.Files[i].Path].Origin
		}
	}
	res.Plan = plan

	res.Archives, err = b.BuildArchives(opts.OutputDir, plan, opts.ArchiveName)
	if err != nil {
		return nil, err
	}

	res.Markers, err = b.PreserveEmptyDirectories(opts.OutputDir)
	if err != nil {
		res.Failed = append(res.Failed, err)
	}

	if opts.CommandLine != "" {
		path := filepath.Join(filepath.Dir(filepath.Clean(opts.OutputDir)), CommandLineFileName)
		logger.Info("writing command line", "path", path)
		if err := afero.WriteFile(b.dst, path, []byte(opts.CommandLine), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", CommandLineFileName, err)
		}
		res.CommandLineFile = path
	}

	logger.Info("build complete",
		"archives", len(res.Archives),
		"packed", plan.FileCount(),
		"loose", len(plan.Loose),
		"viewmodels", len(plan.Viewmodels),
		"excluded", len(plan.Excluded),
		"skipped", len(collected.Skipped),
		"failed", len(res.Failed),
	)

	return res, nil
}

func validateArchiveName(pattern string) error {
	if strings.Count(pattern, "%") != 1 || !strings.Contains(pattern, "%d") ||
		strings.ContainsAny(pattern, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidArchiveName, pattern)
	}
	return nil
}

// overlaps reports whether a and b are the same directory or one contains
// the other.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
