package builder

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/ossyrian/hlpak/internal/pak"
)

// DefaultMaxFilesPerChunk is the largest number of files put in one archive.
const DefaultMaxFilesPerChunk = 3900

// DefaultArchiveName is the name pattern of produced archives.
const DefaultArchiveName = "pak%d.pak"

// ErrInvalidChunkSize is returned for a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("max files per chunk must be positive")

// Chunk is one group of files destined for a single archive.
type Chunk struct {
	Index int
	Files []StagedFile
}

// Exclusion is a file left out of every archive.
type Exclusion struct {
	Path string
	Err  error
}

// Plan is the partition of an output tree into archives.
type Plan struct {
	Chunks     []Chunk
	Loose      []string // root-level files, left in place
	Viewmodels []string // deleted viewmodel assets
	Excluded   []Exclusion
}

// FileCount returns the number of files assigned to archives.
func (p *Plan) FileCount() int {
	return lo.SumBy(p.Chunks, func(c Chunk) int { return len(c.Files) })
}

// isViewmodel reports whether name is a first-person weapon model, which is
// never shipped to the device.
func isViewmodel(name string) bool {
	return strings.HasPrefix(name, "v_") && strings.HasSuffix(name, ".mdl")
}

// PlanArchives scans destination and splits its files into chunks of at
// most maxFiles files.
//
// Viewmodel assets are deleted from the tree. Files directly in destination
// stay loose. Files whose relative path cannot be stored in an archive index
// are reported in Plan.Excluded and left where they are. Everything else is
// ordered by relative path and sliced positionally into chunks.
func (b *Builder) PlanArchives(destination string, maxFiles int) (*Plan, error) {
	if maxFiles <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxFiles)
	}

	plan := &Plan{}
	var files []StagedFile

	err := afero.Walk(b.dst, destination, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(destination, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if isViewmodel(info.Name()) {
			b.logger.Info("skipping viewmodel", "path", rel)
			if err := b.dst.Remove(p); err != nil {
				return fmt.Errorf("failed to delete viewmodel %s: %w", rel, err)
			}
			plan.Viewmodels = append(plan.Viewmodels, rel)
			return nil
		}

		if path.Dir(rel) == "." {
			plan.Loose = append(plan.Loose, rel)
			return nil
		}

		if err := pak.ValidateName(rel); err != nil {
			b.logger.Error("path cannot be stored in archive, skipping",
				"path", rel,
				"length", len(rel),
				"error", err,
			)
			plan.Excluded = append(plan.Excluded, Exclusion{Path: rel, Err: err})
			return nil
		}

		b.logger.Debug("adding file", "path", rel)
		files = append(files, StagedFile{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", destination, err)
	}

	slices.SortFunc(files, func(x, y StagedFile) int {
		return strings.Compare(x.Path, y.Path)
	})

	for i, group := range lo.Chunk(files, maxFiles) {
		plan.Chunks = append(plan.Chunks, Chunk{Index: i, Files: group})
	}

	b.logger.Info("planned archives",
		"files", len(files),
		"archives", len(plan.Chunks),
		"loose", len(plan.Loose),
		"excluded", len(plan.Excluded),
	)

	return plan, nil
}

// BuildArchives writes one archive per chunk into destination, named by
// nameFormat and the chunk index, and removes the archived files from the
// tree. It stops at the first archive that cannot be written.
func (b *Builder) BuildArchives(destination string, plan *Plan, nameFormat string) ([]string, error) {
	archives := make([]string, 0, len(plan.Chunks))

	for _, chunk := range plan.Chunks {
		name := fmt.Sprintf(nameFormat, chunk.Index)
		out := filepath.Join(destination, name)
		logger := b.logger.With("archive", name)

		if slices.Contains(plan.Loose, name) {
			logger.Warn("archive replaces a loose file of the same name")
		}

		srcs := lo.Map(chunk.Files, func(f StagedFile, _ int) pak.Source {
			return pak.Source{
				Name: f.Path,
				Path: filepath.Join(destination, filepath.FromSlash(f.Path)),
			}
		})

		logger.Info("creating archive", "files", len(srcs))
		entries, err := pak.Write(b.dst, out, srcs)
		if err != nil {
			return archives, fmt.Errorf("failed to create %s: %w", name, err)
		}

		for _, s := range srcs {
			if err := b.dst.Remove(s.Path); err != nil {
				return archives, fmt.Errorf("failed to remove packed file %s: %w", s.Name, err)
			}
			logger.Debug("packed file", "path", s.Name)
		}

		logger.Debug("archive complete", "entries", len(entries))
		archives = append(archives, name)
	}

	return archives, nil
}

// PlanAndBuildArchives plans destination and writes its archives. It
// returns the number of archives written.
func (b *Builder) PlanAndBuildArchives(destination string, maxFiles int, nameFormat string) (int, *Plan, error) {
	plan, err := b.PlanArchives(destination, maxFiles)
	if err != nil {
		return 0, nil, err
	}

	archives, err := b.BuildArchives(destination, plan, nameFormat)
	if err != nil {
		return len(archives), plan, err
	}

	return len(archives), plan, nil
}
