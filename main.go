package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/hlpak/internal/builder"
	"github.com/ossyrian/hlpak/internal/config"
	"github.com/ossyrian/hlpak/internal/logging"
	"github.com/ossyrian/hlpak/internal/pak"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hlpak",
	Short: "Pack a Half-Life game directory into PACK archives for Xash3D",
	Long: `hlpak copies a game directory and its overlays into an output directory,
packs every file below the top level into pak0.pak, pak1.pak, ... and leaves
top-level files loose, ready to be copied to the device.`,
	Args: cobra.NoArgs,
	RunE: build,
}

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List and verify the entries of a PACK archive",
	Args:  cobra.ExactArgs(1),
	RunE:  list,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Show available presets",
	Args:  cobra.NoArgs,
	RunE:  showPresets,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "report every copied and packed file (same as --log-level debug)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	// i/o
	rootCmd.Flags().StringP("preset", "p", "", "preset to use (see 'hlpak presets')")
	rootCmd.Flags().StringP("game-dir", "g", "", "game directory to pack when not using a preset, e.g. Half-Life/valve")
	rootCmd.Flags().StringP("base-dir", "b", "", "Half-Life directory, one level above valve (searched for if not set)")
	rootCmd.Flags().StringP("output-dir", "o", "xash", "output directory, relative to the base directory")
	rootCmd.Flags().StringSlice("overlay", nil, "directory whose files replace the game's files (repeatable)")
	rootCmd.Flags().StringSlice("ignore", nil, "file name never copied (repeatable)")

	// pak settings
	rootCmd.Flags().Int("max-chunk-size", builder.DefaultMaxFilesPerChunk, "max number of files per archive")
	rootCmd.Flags().String("archive-name", builder.DefaultArchiveName, "archive file name pattern")

	// other opts
	rootCmd.Flags().Bool("dry-run", false, "build in memory without writing output")

	viper.BindPFlag("preset", rootCmd.Flags().Lookup("preset"))
	viper.BindPFlag("game_dir", rootCmd.Flags().Lookup("game-dir"))
	viper.BindPFlag("base_dir", rootCmd.Flags().Lookup("base-dir"))
	viper.BindPFlag("output_dir", rootCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("overlays", rootCmd.Flags().Lookup("overlay"))
	viper.BindPFlag("ignore", rootCmd.Flags().Lookup("ignore"))
	viper.BindPFlag("max_chunk_size", rootCmd.Flags().Lookup("max-chunk-size"))
	viper.BindPFlag("archive_name", rootCmd.Flags().Lookup("archive-name"))
	viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(listCmd, presetsCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "hlpak"))
		}
		viper.AddConfigPath("/etc/hlpak")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("HLPAK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged flag, env and file settings and sets up logging
func loadConfig() error {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(cfg.EffectiveLogLevel(), cfg.LogOutputDir); err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}
	return nil
}

// build runs the main hlpak command
func build(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	osFs := afero.NewOsFs()

	target, err := cfg.Resolve(osFs)
	if errors.Is(err, config.ErrUnknownPreset) || errors.Is(err, config.ErrNoGameDir) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Use 'hlpak presets' to see available presets.")
	}
	if err != nil {
		return err
	}

	slog.Info("building archives",
		"game_dir", target.GameDir,
		"overlays", target.Overlays,
		"output", target.OutputDir,
		"dry_run", cfg.DryRun,
	)

	var dst afero.Fs = osFs
	if cfg.DryRun {
		dst = afero.NewMemMapFs()
	}

	b := builder.New(osFs, dst, slog.Default())
	res, err := b.Build(builder.Options{
		GameDir:          target.GameDir,
		Overlays:         target.Overlays,
		Ignore:           target.Ignore,
		OutputDir:        target.OutputDir,
		MaxFilesPerChunk: target.MaxChunkSize,
		ArchiveName:      cfg.ArchiveName,
		CommandLine:      target.CommandLine,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range res.Plan.Chunks {
		fmt.Fprintf(out, "%s: %d files\n", res.Archives[c.Index], len(c.Files))
	}
	for _, p := range res.Collect.Skipped {
		fmt.Fprintf(out, "skipped %s: not a regular file\n", p)
	}
	for _, e := range res.Plan.Excluded {
		fmt.Fprintf(out, "excluded %s: %v\n", e.Path, e.Err)
	}
	fmt.Fprintf(out, "Created %d archive(s) in %s\n", len(res.Archives), target.OutputDir)

	if n := len(res.Failed); n > 0 {
		return fmt.Errorf("%d file(s) could not be processed: %w", n, errors.Join(res.Failed...))
	}
	return nil
}

// list prints the index of a PACK archive and checks its layout
func list(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	a, err := pak.Open(afero.NewOsFs(), args[0], slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tLENGTH\tNAME")
	for _, e := range a.Entries {
		fmt.Fprintf(w, "%d\t%d\t%s\n", e.Offset, e.Length, e.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d payload bytes\n", len(a.Entries), a.PayloadSize())

	if err := a.Verify(); err != nil {
		return fmt.Errorf("archive layout is invalid: %w", err)
	}
	return nil
}

// showPresets prints the preset table
func showPresets(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	presets := cfg.AllPresets()
	names := lo.Keys(presets)
	slices.Sort(names)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available presets:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s: %s\n", name, presets[name].Description)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
