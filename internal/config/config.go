package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// Config holds app configuration
type Config struct {
	// Preset names an entry of the preset table (see Presets).
	// When set, GameDir and Overlays are derived from it.
	Preset string `mapstructure:"preset"`

	// BaseDir is the Half-Life install directory, one level above the game
	// folders (valve, bshift, ...). If empty it is searched for in SearchDirs
	// and DefaultBaseDirs.
	BaseDir    string   `mapstructure:"base_dir"`
	SearchDirs []string `mapstructure:"search_dirs"`

	// GameDir is the game folder to pack when no preset is used
	GameDir  string   `mapstructure:"game_dir"`
	Overlays []string `mapstructure:"overlays"`
	Ignore   []string `mapstructure:"ignore"`

	// OutputDir is relative to BaseDir unless absolute
	OutputDir    string `mapstructure:"output_dir"`
	MaxChunkSize int    `mapstructure:"max_chunk_size"`
	ArchiveName  string `mapstructure:"archive_name"`

	// Presets adds to or replaces entries of DefaultPresets
	Presets map[string]Preset `mapstructure:"presets"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`

	// Verbose reports every copied and packed file
	Verbose bool `mapstructure:"verbose"`
}

// Target is a fully resolved build request.
type Target struct {
	GameDir      string
	Overlays     []string
	Ignore       []string
	OutputDir    string
	MaxChunkSize int
	CommandLine  string
}

var (
	ErrUnknownPreset = errors.New("unknown preset")
	ErrNoGameDir     = errors.New("either a preset or a game directory is required")
	ErrNoBaseDir     = errors.New("unable to find Half-Life directory")
)

// EffectiveLogLevel returns LogLevel, lowered to debug when Verbose is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbose && c.LogLevel != "trace" {
		return "debug"
	}
	return c.LogLevel
}

// AllPresets returns the built-in presets merged with the configured ones.
func (c *Config) AllPresets() map[string]Preset {
	return lo.Assign(DefaultPresets(), c.Presets)
}

// Resolve turns the configuration into absolute build paths.
func (c *Config) Resolve(fsys afero.Fs) (*Target, error) {
	if c.Preset != "" {
		return c.resolvePreset(fsys)
	}
	if c.GameDir == "" {
		return nil, ErrNoGameDir
	}

	gameDir, err := filepath.Abs(expandHome(c.GameDir))
	if err != nil {
		return nil, fmt.Errorf("resolving game directory: %w", err)
	}
	if exists, _ := afero.DirExists(fsys, gameDir); !exists {
		return nil, fmt.Errorf("game directory %s does not exist", gameDir)
	}

	baseDir, err := c.baseDir(fsys)
	if errors.Is(err, ErrNoBaseDir) {
		baseDir = filepath.Dir(gameDir)
	} else if err != nil {
		return nil, err
	}

	return &Target{
		GameDir:      gameDir,
		Overlays:     lo.Map(c.Overlays, func(o string, _ int) string { return resolveIn(baseDir, o) }),
		Ignore:       c.Ignore,
		OutputDir:    filepath.Join(resolveIn(baseDir, c.outputDir()), filepath.Base(gameDir)),
		MaxChunkSize: c.MaxChunkSize,
	}, nil
}

func (c *Config) resolvePreset(fsys afero.Fs) (*Target, error) {
	p, ok := c.AllPresets()[c.Preset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, c.Preset)
	}

	baseDir, err := c.baseDir(fsys)
	if err != nil {
		return nil, err
	}

	overlays := lo.Map(p.Overlays, func(o string, _ int) string { return resolveIn(baseDir, o) })
	overlays = append(overlays, lo.Map(c.Overlays, func(o string, _ int) string { return resolveIn(baseDir, o) })...)

	maxChunk := c.MaxChunkSize
	if p.MaxChunkSize > 0 {
		maxChunk = p.MaxChunkSize
	}

	return &Target{
		GameDir:      resolveIn(baseDir, p.BaseFolder),
		Overlays:     overlays,
		Ignore:       append(append([]string{}, p.IgnoreFiles...), c.Ignore...),
		OutputDir:    filepath.Join(resolveIn(baseDir, c.outputDir()), NormalizePath(p.BaseFolder)),
		MaxChunkSize: maxChunk,
		CommandLine:  p.CommandLine,
	}, nil
}

func (c *Config) outputDir() string {
	if c.OutputDir == "" {
		return "xash"
	}
	return c.OutputDir
}

func (c *Config) baseDir(fsys afero.Fs) (string, error) {
	if c.BaseDir != "" {
		return filepath.Abs(expandHome(c.BaseDir))
	}
	dir, err := FindBaseDir(fsys, append(append([]string{}, c.SearchDirs...), DefaultBaseDirs...))
	if err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

// FindBaseDir returns the first candidate that is an existing directory.
// A leading "~" is expanded to the user's home directory.
func FindBaseDir(fsys afero.Fs, candidates []string) (string, error) {
	for _, c := range candidates {
		dir := expandHome(NormalizePath(c))
		if exists, _ := afero.DirExists(fsys, dir); exists {
			return dir, nil
		}
	}
	return "", ErrNoBaseDir
}

// NormalizePath converts either kind of separator to the host separator.
// Presets are written with Windows paths.
func NormalizePath(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
}

func resolveIn(base, p string) string {
	p = expandHome(NormalizePath(p))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
